package repository

import (
	"errors"
	"strings"
)

// Sentinel errors returned by all repositories. Callers classify with
// errors.Is; the transport layer maps them onto response codes.
var (
	// ErrNotFound indicates the requested row does not exist or is deleted.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists indicates a primary-key or unique-constraint conflict.
	ErrAlreadyExists = errors.New("record already exists")
)

// isDuplicateKeyError detects unique-constraint violations across drivers.
// pgdriver surfaces SQLSTATE 23505, modernc sqlite the UNIQUE constraint text.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}
