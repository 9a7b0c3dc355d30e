package dispatch

import (
	"context"
	"errors"

	"dispatchd/internal/backend"
	"dispatchd/internal/ports"
)

// Kind classifies a failed dispatch.
type Kind string

const (
	KindCapacityExhausted   Kind = "capacity_exhausted"
	KindGenerationFailure   Kind = "generation_failure"
	KindPortConflict        Kind = "port_conflict"
	KindProcessSpawnFailure Kind = "process_spawn_failure"
	KindCanceled            Kind = "canceled"
	KindInvalidRequest      Kind = "invalid_request"
)

// Failure is the structured error carried by a failed Result.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (f *Failure) Error() string { return string(f.Kind) + ": " + f.Message }

// KindOf maps err to a failure kind. A bare context error means the caller
// gave up. Unrecognized errors are generation failures.
func KindOf(err error) Kind {
	var f *Failure
	switch {
	case err == nil:
		return ""
	case errors.As(err, &f):
		return f.Kind
	case backend.IsGenerationFailure(err):
		return KindGenerationFailure
	case ports.IsExhausted(err):
		return KindCapacityExhausted
	case ports.IsSpawnFailure(err):
		return KindProcessSpawnFailure
	case ports.IsPortConflict(err):
		return KindPortConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindGenerationFailure
}

func failure(kind Kind, msg string) *Failure { return &Failure{Kind: kind, Message: msg} }

func failureFrom(err error) *Failure { return &Failure{Kind: KindOf(err), Message: err.Error()} }
