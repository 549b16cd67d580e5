package geo

import (
	"context"
	"errors"
)

type Status int

const (
	// StatusOk carries a value.
	StatusOk Status = iota
	// StatusSoft means no answer, and nothing is broken: try the next step.
	StatusSoft
	// StatusHard means stop and forward Err.
	StatusHard
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusSoft:
		return "soft"
	default:
		return "hard"
	}
}

// Result is the outcome of one resolution step.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

func Ok[T any](v T) Result[T] { return Result[T]{Value: v, Status: StatusOk} }

func Soft[T any](err error) Result[T] { return Result[T]{Status: StatusSoft, Err: err} }

func Hard[T any](err error) Result[T] { return Result[T]{Status: StatusHard, Err: err} }

func (r Result[T]) OK() bool { return r.Status == StatusOk }

// failed tags err as hard when the caller's context is done and soft
// otherwise. A dead upstream is a reason to try the next step; a dead caller
// is not.
func failed[T any](ctx context.Context, err error) Result[T] {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Hard[T](ctxErr)
	}
	if errors.Is(err, context.Canceled) {
		return Hard[T](err)
	}
	return Soft[T](err)
}
