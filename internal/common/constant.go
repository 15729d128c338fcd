// Package common contains shared constants and sentinel errors used across
// the sync engine components.
package common

// AuthorizationHeaderName carries the owner's bearer credential on
// authenticated requests.
const AuthorizationHeaderName = "Authorization"
