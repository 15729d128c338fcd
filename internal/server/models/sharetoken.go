package models

import "time"

// Permission is the access level granted by a share token.
type Permission string

const (
	PermissionRead  Permission = "READ"
	PermissionWrite Permission = "WRITE"
)

// Valid reports whether p is a known permission level.
func (p Permission) Valid() bool {
	return p == PermissionRead || p == PermissionWrite
}

// ShareToken is a capability granting access to one file at one permission
// level, without requiring the holder to authenticate as the owner. Tokens
// are never deleted; revocation flips Revoked and the row stays for audit.
type ShareToken struct {
	// ID is the token value handed to the recipient. Cryptographically
	// random, fixed length, unguessable.
	ID         string
	FileID     string
	Permission Permission
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
}
