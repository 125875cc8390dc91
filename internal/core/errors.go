package core

import (
	"errors"
	"fmt"
)

// ErrKind classifies a rejected control event. Rejections never mutate
// state and are surfaced only to the invoking connection.
type ErrKind string

const (
	KindValidation    ErrKind = "validation"
	KindAuthorization ErrKind = "authorization"
	KindNotFound      ErrKind = "not_found"
	KindConflict      ErrKind = "conflict"
	KindTransient     ErrKind = "transient"
)

type ControlError struct {
	Kind    ErrKind
	Message string
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func Invalidf(format string, args ...any) error {
	return &ControlError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Unauthorizedf(format string, args ...any) error {
	return &ControlError{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &ControlError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &ControlError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Transientf(format string, args ...any) error {
	return &ControlError{Kind: KindTransient, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the taxonomy kind, defaulting to Transient so that
// unclassified failures are reported without leaking internals.
func KindOf(err error) ErrKind {
	var ce *ControlError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindTransient
}

func IsKind(err error, kind ErrKind) bool {
	var ce *ControlError
	return errors.As(err, &ce) && ce.Kind == kind
}
