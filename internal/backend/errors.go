package backend

import (
	"errors"
	"fmt"
)

// generationError wraps any failure of a backend generate call.
type generationError struct {
	addr   string
	status int
	err    error
}

func (e generationError) Error() string {
	if e.status != 0 {
		return fmt.Sprintf("generation failed on %s (status %d): %v", e.addr, e.status, e.err)
	}
	return fmt.Sprintf("generation failed on %s: %v", e.addr, e.err)
}

func (e generationError) Unwrap() error { return e.err }

// IsGenerationFailure reports whether err came from a failed generate call.
func IsGenerationFailure(err error) bool {
	var ge generationError
	return errors.As(err, &ge)
}
