package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures that can reach a user.
type ErrorKind string

const (
	KindValidationFailed   ErrorKind = "validation_failed"
	KindNotFound           ErrorKind = "not_found"
	KindStorageUnavailable ErrorKind = "storage_unavailable"
	KindStaleReference     ErrorKind = "stale_reference"
)

// Error carries a kind plus a human-readable message. Field and Fields are set
// for validation failures so a form can show them inline.
type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Fields  map[string]string
	Err     error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrValidationFailed   = &Error{Kind: KindValidationFailed}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
	ErrStaleReference     = &Error{Kind: KindStaleReference}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

func NewValidationError(field, message string) *Error {
	e := &Error{Kind: KindValidationFailed, Message: message, Field: field}
	if field != "" {
		e.Fields = map[string]string{field: message}
	}
	return e
}

func NewNotFoundError(message string, err error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: err}
}

func NewUnavailableError(message string, err error) *Error {
	return &Error{Kind: KindStorageUnavailable, Message: message, Err: err}
}

func NewStaleReferenceError(id uint, err error) *Error {
	return &Error{Kind: KindStaleReference, Message: fmt.Sprintf("review %d is no longer available", id), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
