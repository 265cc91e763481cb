// Package errors defines the closed set of failures the storefront client
// reports to its callers and the table that maps low-level failures onto it.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

// Kind classifies a failure.
type Kind string

const (
	KindTimeout            Kind = "timeout"
	KindConnectivity       Kind = "connectivity"
	KindAuthentication     Kind = "authentication"
	KindAuthorization      Kind = "authorization"
	KindNotFound           Kind = "not_found"
	KindServer             Kind = "server"
	KindValidation         Kind = "validation"
	KindUnexpectedResponse Kind = "unexpected_response"
	KindGeneric            Kind = "generic"

	// Session refinements of authentication/validation failures.
	KindInvalidCredentials Kind = "invalid_credentials"
	KindDuplicateEmail     Kind = "duplicate_email"
)

var messages = map[Kind]string{
	KindTimeout:            "Request timed out. Please retry.",
	KindConnectivity:       "Cannot connect to server. Check internet or backend status.",
	KindAuthentication:     "Your session has expired. Please log in again.",
	KindAuthorization:      "You do not have permission to perform this action.",
	KindNotFound:           "The requested resource was not found.",
	KindServer:             "The server encountered an error. Please try again later.",
	KindValidation:         "Some required information is missing or invalid.",
	KindUnexpectedResponse: "Received an unexpected response from the server.",
	KindGeneric:            "Something went wrong. Please try again.",
	KindInvalidCredentials: "Invalid email or password.",
	KindDuplicateEmail:     "An account with this email already exists.",
}

// UserMessage returns the user-facing message for kind.
func UserMessage(kind Kind) string {
	if msg, ok := messages[kind]; ok {
		return msg
	}
	return messages[KindGeneric]
}

// Error is a classified failure. Message is safe to show to a user; Detail
// carries whatever the server or the transport reported.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so sentinel comparisons such as
// errors.Is(err, &Error{Kind: KindTimeout}) work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of kind with the default user message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Message: UserMessage(kind), Detail: detail}
}

// Validation creates a client-side precondition failure. msg is shown as is.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Detail: msg}
}

// Validationf formats a validation message.
func Validationf(format string, args ...interface{}) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// UnexpectedResponse reports a response whose shape does not match the contract.
func UnexpectedResponse(detail string) *Error {
	return New(KindUnexpectedResponse, detail)
}

// Refine returns a copy of e re-labelled as kind, keeping status, detail and cause.
func Refine(err error, kind Kind) *Error {
	e := Classify(err)
	return &Error{Kind: kind, Status: e.Status, Message: UserMessage(kind), Detail: e.Detail, Err: e.Err}
}

// KindOf returns the kind of err after classification. nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// StatusCarrier is implemented by errors that carry an HTTP status.
type StatusCarrier interface {
	HTTPStatus() int
}

// TimeoutCarrier is implemented by errors that know whether they timed out.
type TimeoutCarrier interface {
	Timeout() bool
}

// ConnectivityCarrier is implemented by transport errors that failed before a
// response was received.
type ConnectivityCarrier interface {
	Connectivity() bool
}

var statusKinds = map[int]Kind{
	http.StatusUnauthorized:        KindAuthentication,
	http.StatusForbidden:           KindAuthorization,
	http.StatusNotFound:            KindNotFound,
	http.StatusInternalServerError: KindServer,
}

type rule struct {
	name     string
	classify func(err error) (*Error, bool)
}

// rules are evaluated in order; the last one always matches.
var rules = []rule{
	{"classified", func(err error) (*Error, bool) {
		var e *Error
		if stderrors.As(err, &e) {
			return e, true
		}
		return nil, false
	}},
	{"http-status", func(err error) (*Error, bool) {
		var sc StatusCarrier
		if !stderrors.As(err, &sc) {
			return nil, false
		}
		status := sc.HTTPStatus()
		kind, ok := statusKinds[status]
		if !ok {
			kind = KindGeneric
		}
		return &Error{Kind: kind, Status: status, Message: UserMessage(kind), Detail: err.Error(), Err: err}, true
	}},
	{"timeout", func(err error) (*Error, bool) {
		var tc TimeoutCarrier
		if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &tc) && tc.Timeout()) {
			return &Error{Kind: KindTimeout, Message: UserMessage(KindTimeout), Detail: err.Error(), Err: err}, true
		}
		return nil, false
	}},
	{"canceled", func(err error) (*Error, bool) {
		if stderrors.Is(err, context.Canceled) {
			return &Error{Kind: KindGeneric, Message: UserMessage(KindGeneric), Detail: err.Error(), Err: err}, true
		}
		return nil, false
	}},
	{"connectivity", func(err error) (*Error, bool) {
		if isConnectivity(err) {
			return &Error{Kind: KindConnectivity, Message: UserMessage(KindConnectivity), Detail: err.Error(), Err: err}, true
		}
		return nil, false
	}},
	{"generic", func(err error) (*Error, bool) {
		return &Error{Kind: KindGeneric, Message: UserMessage(KindGeneric), Detail: err.Error(), Err: err}, true
	}},
}

// Classify maps any error onto the taxonomy. It never returns nil for a
// non-nil err.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	for _, r := range rules {
		if e, ok := r.classify(err); ok {
			return e
		}
	}
	// unreachable: the generic rule always matches
	return New(KindGeneric, err.Error())
}

func isConnectivity(err error) bool {
	var cc ConnectivityCarrier
	if stderrors.As(err, &cc) && cc.Connectivity() {
		return true
	}
	var opErr *net.OpError
	if stderrors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return true
	}
	return stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, io.EOF)
}
