// Package xid issues identifiers for sessions and ledger entries.
package xid

import "github.com/google/uuid"

// New returns a time-ordered UUID (v7) so ids sort roughly by creation, which
// keeps ledger indexes append-friendly. It falls back to a random v4.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Valid reports whether raw parses as a UUID.
func Valid(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}
