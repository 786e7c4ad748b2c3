// Package apperr defines the Error Kind table of spec section 7 and routes
// unexpected failures to the two error-reporting backends the teacher
// carries: raven-go (explicit capture) and bugsnag-go (panic capture, wired
// in cmd/keydirectoryd).
package apperr

import (
	"fmt"

	"github.com/getsentry/raven-go"
	"github.com/pkg/errors"
)

// Kind is one of the error kinds from spec section 7, each with a fixed
// HTTP status for the transport layer to render.
type Kind string

const (
	InvalidRequest    Kind = "InvalidRequest"
	MalformedKey      Kind = "MalformedKey"
	NoValidUserIds    Kind = "NoValidUserIds"
	UserIdMismatch    Kind = "UserIdMismatch"
	NoOrganisationUid Kind = "NoOrganisationUid"
	UserIdNotFound    Kind = "UserIdNotFound"
	KeyNotFound       Kind = "KeyNotFound"
	SignaturesNotFound Kind = "SignaturesNotFound"
	InvalidNonce      Kind = "InvalidNonce"
	PersistFailed     Kind = "PersistFailed"
	InternalParseError Kind = "InternalParseError"
)

var statusByKind = map[Kind]int{
	InvalidRequest:     400,
	MalformedKey:       400,
	NoValidUserIds:     400,
	UserIdMismatch:     400,
	NoOrganisationUid:  400,
	UserIdNotFound:     404,
	KeyNotFound:        404,
	SignaturesNotFound: 404,
	InvalidNonce:       403,
	PersistFailed:      500,
	InternalParseError: 500,
}

// Error is a classified failure. Expose mirrors spec section 7: parse and
// validation errors are safe to echo to the caller; storage/mailer/internal
// failures are not.
type Error struct {
	Kind   Kind
	Msg    string
	Expose bool
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code the §6 transport should render for
// this error kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return 500
}

// New builds a client-facing error (400/403/404 class), safe to echo.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Expose: true}
}

// Wrap builds a 500-class error from an underlying cause (storage, mailer,
// parse-library internals). It is never safe to echo verbatim and is
// reported to Sentry from the single chokepoint Report.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:   kind,
		Msg:    fmt.Sprintf(format, args...),
		Expose: false,
		cause:  errors.WithStack(cause),
	}
}

// Report sends 500-class errors to Sentry via raven-go. 400/403/404-class
// errors are expected client mistakes and are not reported. The teacher
// carries both raven-go and bugsnag-go; this is the raven chokepoint, the
// bugsnag path only ever sees recovered panics (cmd/keydirectoryd).
func Report(err error) {
	if err == nil {
		return
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Expose {
			return
		}
	}
	raven.CaptureError(err, map[string]string{"component": "keydirectory"})
}
