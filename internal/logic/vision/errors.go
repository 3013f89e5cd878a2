package vision

import (
	"errors"
	"fmt"
)

var (
	// ErrUsage is matched (errors.Is) by every UsageError.
	ErrUsage = errors.New("vision: operation not allowed in current state")

	// ErrInvalidOptions is returned by New for a non-positive rate or capacity.
	ErrInvalidOptions = errors.New("vision: invalid options")
)

// UsageError reports an operation called in the wrong lifecycle state.
type UsageError struct {
	Op    string
	State State
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("vision: %s not allowed in state %s", e.Op, e.State)
}

func (e *UsageError) Unwrap() error {
	return ErrUsage
}
