package ports

import (
	"errors"
	"fmt"
)

// portConflictError signals that a port could not host a new backend: it is
// out of range, already reserved, or nothing listened after the grace period.
type portConflictError struct {
	port int
	msg  string
}

func (e portConflictError) Error() string {
	return fmt.Sprintf("port conflict on %d: %s", e.port, e.msg)
}

// IsPortConflict reports whether err indicates a port that could not be used.
func IsPortConflict(err error) bool {
	var pc portConflictError
	return errors.As(err, &pc)
}

// spawnError signals that the OS refused to start a backend process, or that
// the process exited before it could be verified.
type spawnError struct {
	port int
	err  error
}

func (e spawnError) Error() string {
	return fmt.Sprintf("spawn backend on %d: %v", e.port, e.err)
}

func (e spawnError) Unwrap() error { return e.err }

// IsSpawnFailure reports whether err indicates a process spawn failure.
func IsSpawnFailure(err error) bool {
	var se spawnError
	return errors.As(err, &se)
}

// exhaustedError is returned when ResolveConflict runs out of retries.
type exhaustedError struct {
	attempts int
	last     error
}

func (e exhaustedError) Error() string {
	if e.last == nil {
		return fmt.Sprintf("no backend port obtainable after %d attempts", e.attempts)
	}
	return fmt.Sprintf("no backend port obtainable after %d attempts: %v", e.attempts, e.last)
}

func (e exhaustedError) Unwrap() error { return e.last }

// IsExhausted reports whether err means no backend capacity is obtainable.
func IsExhausted(err error) bool {
	var ee exhaustedError
	return errors.As(err, &ee)
}

var errNoFreePort = errors.New("no free port in range")
