package models

import "time"

// ChangeKind classifies a state transition of a file record.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Valid reports whether k is one of the known change kinds.
func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeCreate, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// VersionHistoryEntry is an immutable, append-only record of one past state
// transition of a FileRecord. Entries are never mutated after creation.
type VersionHistoryEntry struct {
	FileID     string
	Version    int64
	ContentRef string
	Kind       ChangeKind
	ModifiedAt time.Time
}
