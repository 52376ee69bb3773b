package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/crosscheck/pkg/model"
)

// Failure is why an adapter run produced no findings.
type Failure struct {
	Reason model.Reason
	Err    error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %v", f.Reason, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure classifies err. Context errors become timeout or cancelled;
// ErrUnavailable becomes not_available; anything else is exec_failed.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Reason: model.ReasonTimeout, Err: err}
	case errors.Is(err, context.Canceled):
		return &Failure{Reason: model.ReasonCancelled, Err: err}
	case errors.Is(err, ErrUnavailable):
		return &Failure{Reason: model.ReasonNotAvailable, Err: err}
	default:
		return &Failure{Reason: model.ReasonExecFailed, Err: err}
	}
}

// ParseError wraps a decode error as a parse_error failure.
func ParseError(err error) *Failure {
	return &Failure{Reason: model.ReasonParseError, Err: err}
}
