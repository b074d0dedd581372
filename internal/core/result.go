package core

import "errors"

// Result is the stable shape every caller-facing action returns.
type Result[T any] struct {
	Success     bool     `json:"success"`
	Data        T        `json:"data,omitempty"`
	Error       *Error   `json:"error,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	CanProceed  *bool    `json:"can_proceed,omitempty"`
	AllVerified *bool    `json:"all_verified,omitempty"`
}

func OK[T any](data T, warnings ...string) Result[T] {
	return Result[T]{Success: true, Data: data, Warnings: warnings}
}

// Fail normalizes any error into the result shape.
func Fail[T any](err error) Result[T] {
	var e *Error
	if !errors.As(err, &e) {
		e = InternalError("unexpected error", err)
	}
	return Result[T]{Error: e}
}

func (r Result[T]) WithVerification(allVerified, canProceed bool) Result[T] {
	r.AllVerified = &allVerified
	r.CanProceed = &canProceed
	return r
}
