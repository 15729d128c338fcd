// Package models defines server-side data models persisted in the database.
package models

import "time"

// FileRecord describes one logical file owned by an account. The blob bytes
// themselves live in object storage; ContentRef points at the current blob.
type FileRecord struct {
	// ID is an opaque unique identifier, immutable for the file's lifetime.
	ID string
	// OwnerID is the account that created the file.
	OwnerID string
	// Name is the user-facing file name.
	Name string
	// FolderID optionally groups the file under a folder. Carried as opaque
	// metadata; the engine does not model folder hierarchy.
	FolderID string

	// CurrentVersion is the server-assigned, monotonic version. It strictly
	// increases on every accepted change and is never reused.
	CurrentVersion int64
	// ContentRef is the object-storage key of the current blob. Blobs are
	// immutable once written; every accepted change points at a new key.
	ContentRef string
	// Size is the byte length of the current blob.
	Size int64

	CreatedAt  time.Time
	ModifiedAt time.Time
	// DeletedAt marks a tombstone when non-nil. Tombstoned records still
	// resolve so that sync clients learn about the deletion.
	DeletedAt *time.Time
}

// Deleted reports whether the record is a tombstone.
func (f *FileRecord) Deleted() bool {
	return f.DeletedAt != nil
}
