package activation

import (
	"errors"
	"fmt"
)

// Validation-category errors. Each is terminal: retrying the same request
// cannot succeed, and every message is safe to show to the end user.
var (
	ErrBadFormat    = errors.New("license key format is invalid")
	ErrBadSignature = errors.New("license key is not recognized")
	ErrRevoked      = errors.New("license key has been revoked")
	ErrExpired      = errors.New("license key has expired")
	ErrNotActivated = errors.New("license key is not activated on this machine")

	// ErrSelfDeactivate is the fixed policy response to every Deactivate
	// request: end users cannot unbind a key themselves.
	ErrSelfDeactivate = errors.New("deactivation requires an administrator; contact support to unbind this key")
)

// AlreadyBoundError rejects an activation because the key is live on a
// different machine. BoundTo carries a masked identifier only.
type AlreadyBoundError struct {
	BoundTo string
}

func (e *AlreadyBoundError) Error() string {
	return fmt.Sprintf("license key is already activated on another machine (%s); an administrator can transfer the binding", e.BoundTo)
}

// StorageError wraps a persistence failure. The reason is logged internally
// and callers surface an opaque server error; the operation is safe to retry.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return "storage failure: " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

func storage(err error) error {
	return &StorageError{Err: err}
}

// maskMachineID hides the middle of a machine identifier before it leaves
// the service in an error message.
func maskMachineID(id string) string {
	if len(id) <= 8 {
		return "****"
	}
	return id[:4] + "****" + id[len(id)-4:]
}
