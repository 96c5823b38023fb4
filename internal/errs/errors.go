package errs

import (
	"errors"
	"fmt"
)

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
	// ErrIntegrity means a referenced wallet or category does not exist. The
	// unit of work that hit it is rolled back.
	ErrIntegrity = errors.New("integrity")
	// ErrLocked means the row is held by a concurrent worker and was skipped.
	ErrLocked = errors.New("locked")
)

// AsIntegrity turns a lookup miss on a referenced row into ErrIntegrity.
// Other errors pass through unchanged.
func AsIntegrity(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", err.Error(), ErrIntegrity)
	}
	return err
}
