package maps

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means there is no map for the game, or no such game.
	ErrNotFound = errors.New("maps: not found")
	// ErrUnauthorized means the actor lacks the role an operation needs.
	ErrUnauthorized = errors.New("maps: unauthorized")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// UpstreamError wraps a failure of the database or the asset host.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Upstream wraps err as an UpstreamError unless it already carries a kind.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsValidation(err) || IsUnauthorized(err) || IsUpstream(err) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

func IsUpstream(err error) bool {
	var uerr *UpstreamError
	return errors.As(err, &uerr)
}
