package main

import (
	"errors"
	"fmt"
)

// Error kinds returned by Service operations. Match them with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrValidation      = errors.New("validation failed")
)

// OpError is a rejected operation. Kind is one of the Err* sentinels; Field is
// set for validation failures.
type OpError struct {
	Kind  error
	Field string
	Msg   string
}

func (e *OpError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Msg
	}
	return e.Msg
}

func (e *OpError) Unwrap() error { return e.Kind }

func notFoundf(format string, args ...any) error {
	return &OpError{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

func forbidden(msg string) error { return &OpError{Kind: ErrForbidden, Msg: msg} }

func unauthenticated(msg string) error { return &OpError{Kind: ErrUnauthenticated, Msg: msg} }

func invalid(field, msg string) error { return &OpError{Kind: ErrValidation, Field: field, Msg: msg} }
