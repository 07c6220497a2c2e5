package compliance

import (
	"errors"
	"net/http"

	"marketplace-backend/internal/shared/storage/db"
)

// Kind classifies engine failures so transports can map them without reading
// messages.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
)

// Error is a typed engine failure with a stable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels (ErrValidation, ErrNotFound, ErrConflict).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
)

// Store-level facts. Stores return these and the service translates them.
var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrCompanyNotFound     = errors.New("company not found")
	ErrApplicationNotFound = errors.New("application not found")
)

func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

// KindOf returns the kind of err, or "" for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusCode maps err to an HTTP status.
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode maps err to the response error code used by the API.
func ErrorCode(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

// translateStoreErr turns store facts into typed errors.
func translateStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCompanyNotFound):
		return &Error{Kind: KindNotFound, Message: "company not found", Err: err}
	case errors.Is(err, ErrDocumentNotFound):
		return &Error{Kind: KindNotFound, Message: "document not found", Err: err}
	case db.IsLockTimeout(err):
		return &Error{Kind: KindConflict, Message: "company compliance is busy, retry", Err: err}
	default:
		return err
	}
}
