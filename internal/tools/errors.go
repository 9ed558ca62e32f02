package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nugget/shopkeep/internal/imagesearch"
	"github.com/nugget/shopkeep/internal/store"
)

// Kind classifies a tool failure.
type Kind string

// Failure kinds.
const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindTransient  Kind = "transient"
	KindFormat     Kind = "format"
)

// transientMessage is what the customer sees for infrastructure trouble;
// the detail goes to the log.
const transientMessage = "Hệ thống đang gặp sự cố tạm thời, vui lòng thử lại sau."

// ErrLoginRequired is the cause of failures from tools that need an
// authenticated customer.
var ErrLoginRequired = errors.New("customer is not logged in")

// Error is a typed tool failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ErrToolUnavailable is returned when a tool call names a tool that is
// not registered.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// Classify turns any error from a tool into an *Error. Store and image
// search sentinels map to their kinds; anything unrecognised is
// treated as transient.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	var unavailable *ErrToolUnavailable
	if errors.As(err, &unavailable) {
		return newError(KindNotFound, err, "%s", unavailable.Error())
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return newError(KindNotFound, err, "%s", err.Error())
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrNotCancellable),
		errors.Is(err, store.ErrOrderCancelled),
		errors.Is(err, store.ErrDuplicate):
		return newError(KindConflict, err, "%s", err.Error())
	case errors.Is(err, store.ErrInvalidLine),
		errors.Is(err, store.ErrNothingToUpdate),
		errors.Is(err, store.ErrBadCredentials),
		errors.Is(err, imagesearch.ErrUnsupportedFormat):
		return newError(KindValidation, err, "%s", err.Error())
	case errors.Is(err, imagesearch.ErrBadResponse):
		return newError(KindFormat, err, "%s", "image search returned an unreadable response")
	}
	return newError(KindTransient, err, "%s", transientMessage)
}

// IsTransient reports whether err would classify as transient, including
// context deadlines.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return Classify(err).Kind == KindTransient
}

// ErrorResult renders err as the tool-result payload the model sees:
// {"status":"error","kind":...,"message":...}.
func ErrorResult(err error) string {
	te := Classify(err)
	msg := te.Message
	if te.Kind == KindTransient {
		msg = transientMessage
	}
	b, _ := json.Marshal(map[string]string{
		"status":  "error",
		"kind":    string(te.Kind),
		"message": msg,
	})
	return string(b)
}
