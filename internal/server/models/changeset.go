package models

// ChangeSet is the answer to "what changed since my last sync". Deletes carry
// tombstone ids only; the client removes its local copy without fetching
// content.
type ChangeSet struct {
	Creates []*FileRecord
	Updates []*FileRecord
	Deletes []string
}

// Empty reports whether the set carries no changes.
func (c *ChangeSet) Empty() bool {
	return len(c.Creates) == 0 && len(c.Updates) == 0 && len(c.Deletes) == 0
}
