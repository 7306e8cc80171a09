package mcdb

import (
	"errors"

	"github.com/unkn0wn-root/mcdb/status"
)

// Per-key errors reported in BatchResult.Failed. Single-key operations
// express these outcomes as booleans instead.
var (
	ErrNotFound    = errors.New("mcdb: not found")
	ErrNotStored   = errors.New("mcdb: not stored")
	ErrCASConflict = errors.New("mcdb: cas conflict")
)

// ErrInvalidKey is returned for empty keys and keys that exceed
// MaxKeyLength once namespaced.
var ErrInvalidKey = errors.New("mcdb: invalid key")

// keyError turns a per-key result of a batch call into the error stored in
// BatchResult.Failed.
func keyError(op string, r status.Result) error {
	switch r.Outcome() {
	case status.NotFound:
		return ErrNotFound
	case status.NotStored:
		return ErrNotStored
	case status.CASConflict:
		return ErrCASConflict
	default:
		return r.Err(op)
	}
}
