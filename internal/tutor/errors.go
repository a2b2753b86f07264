package tutor

import (
	"errors"
	"fmt"
)

// Kind classifies errors returned by Respond.
type Kind string

// Error kinds surfaced to callers.
const (
	KindInvalidRequest     Kind = "invalid_request"
	KindContextUnavailable Kind = "context_unavailable"
	KindInternal           Kind = "internal"
)

// Error is a classified failure of Respond.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindInternal
}
