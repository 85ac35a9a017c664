package bidi

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidIdentifier      = errors.New("invalid identifier")
	ErrInvalidParams          = errors.New("invalid params")
	ErrRemoteCommandFailed    = errors.New("remote command failed")
	ErrCommandTimeout         = errors.New("command timeout")
	ErrTransportClosed        = errors.New("transport closed")
	ErrSessionClosed          = errors.New("session closed")
	ErrUnknownVariantTag      = errors.New("unknown variant tag")
	ErrMalformedResult        = errors.New("malformed result")
	ErrDuplicateCorrelationID = errors.New("duplicate correlation id")
	ErrCommandAlreadySent     = errors.New("command already sent")
)

// InvalidParamsError reports a local validation failure. It is raised before
// anything is written to the transport.
type InvalidParamsError struct {
	Method string
	Field  string
	Reason string
}

func (e *InvalidParamsError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("invalid params: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid params for %s: %s %s", e.Method, e.Field, e.Reason)
}

func (e *InvalidParamsError) Is(target error) bool {
	return target == ErrInvalidParams
}

// InvalidParams builds an *InvalidParamsError.
func InvalidParams(method, field, reason string) error {
	return &InvalidParamsError{Method: method, Field: field, Reason: reason}
}

// RemoteError is the decoded error envelope returned by the remote end.
type RemoteError struct {
	ID         int64
	Method     string
	Code       string
	Message    string
	Stacktrace string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s (id %d) failed [%s]: %s", e.Method, e.ID, e.Code, e.Message)
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteCommandFailed
}

// CommandTimeoutError is returned when no response arrives before the deadline.
type CommandTimeoutError struct {
	Method string
	ID     int64
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("%s (id %d): no response before deadline", e.Method, e.ID)
}

func (e *CommandTimeoutError) Is(target error) bool {
	return target == ErrCommandTimeout
}

// UnknownVariantTagError is returned when a "type" discriminator is not part
// of the dispatch table for its family.
type UnknownVariantTagError struct {
	Family string
	Tag    string
}

func (e *UnknownVariantTagError) Error() string {
	return fmt.Sprintf("unknown %s type %q", e.Family, e.Tag)
}

func (e *UnknownVariantTagError) Is(target error) bool {
	return target == ErrUnknownVariantTag
}

// MalformedResultError reports a variant missing a required sub-field.
type MalformedResultError struct {
	Family string
	Field  string
	Reason string
}

func (e *MalformedResultError) Error() string {
	return fmt.Sprintf("malformed %s: %s %s", e.Family, e.Field, e.Reason)
}

func (e *MalformedResultError) Is(target error) bool {
	return target == ErrMalformedResult
}

// Malformed builds a *MalformedResultError.
func Malformed(family, field, reason string) error {
	return &MalformedResultError{Family: family, Field: field, Reason: reason}
}

// DecodeError wraps a failure to decode the result of a successful command.
type DecodeError struct {
	Method string
	ID     int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s (id %d) result: %v", e.Method, e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes every decode failure match ErrMalformedResult, whatever the
// underlying cause. For the caller the command failed, so it also matches
// ErrRemoteCommandFailed.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedResult || target == ErrRemoteCommandFailed
}

// IsRetryable reports whether a calling module may reasonably retry the
// command. The client never retries on its own.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrCommandTimeout) || errors.Is(err, ErrTransportClosed)
}
