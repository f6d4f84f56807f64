// Package apierror is the error taxonomy shared by every guard and handler
// of the public API, and the single place errors are rendered as JSON.
//
// 4xx messages are returned to the caller verbatim. Anything else is logged
// with full detail under a random error id and answered with a generic
// "Internal server error" body carrying only that id.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/keithlinneman/storefront-api/internal/log"
)

type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindMethodNotAllowed
	KindValidationFailed
	KindRateLimited
	KindPayloadTooLarge
)

var kindStatus = map[Kind]int{
	KindInternal:         http.StatusInternalServerError,
	KindBadRequest:       http.StatusBadRequest,
	KindUnauthorized:     http.StatusUnauthorized,
	KindForbidden:        http.StatusForbidden,
	KindNotFound:         http.StatusNotFound,
	KindMethodNotAllowed: http.StatusMethodNotAllowed,
	KindValidationFailed: http.StatusUnprocessableEntity,
	KindRateLimited:      http.StatusTooManyRequests,
	KindPayloadTooLarge:  http.StatusRequestEntityTooLarge,
}

var kindNames = map[Kind]string{
	KindInternal:         "internal",
	KindBadRequest:       "bad_request",
	KindUnauthorized:     "unauthorized",
	KindForbidden:        "forbidden",
	KindNotFound:         "not_found",
	KindMethodNotAllowed: "method_not_allowed",
	KindValidationFailed: "validation_failed",
	KindRateLimited:      "rate_limited",
	KindPayloadTooLarge:  "payload_too_large",
}

// Status is the HTTP status code for k. Unknown kinds map to 500.
func (k Kind) Status() int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

const (
	MsgInternal     = "Internal server error"
	MsgValidation   = "Validation failed"
	MsgRateLimited  = "Too many requests. Please try again later."
	MsgUnauthorized = "Unauthorized"
	MsgForbidden    = "Forbidden"
	MsgNotFound     = "Not found"
	MsgMethod       = "Method not allowed"
	MsgTooLarge     = "Request body too large"
)

// FieldError is one violated constraint, addressed by a dotted path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Kind       Kind
	Message    string
	Details    []FieldError
	RetryAfter int
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Status() int { return e.Kind.Status() }

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, cause: cause}
}

func Unauthorized(msg string) *Error {
	if msg == "" {
		msg = MsgUnauthorized
	}
	return newErr(KindUnauthorized, msg, nil)
}

// UnauthorizedCause keeps the verification failure for logs; the caller only
// sees msg.
func UnauthorizedCause(msg string, cause error) *Error {
	e := Unauthorized(msg)
	e.cause = cause
	return e
}

func Forbidden(msg string) *Error {
	if msg == "" {
		msg = MsgForbidden
	}
	return newErr(KindForbidden, msg, nil)
}

func NotFound(msg string) *Error {
	if msg == "" {
		msg = MsgNotFound
	}
	return newErr(KindNotFound, msg, nil)
}

func MethodNotAllowed() *Error { return newErr(KindMethodNotAllowed, MsgMethod, nil) }

func BadRequest(msg string, cause error) *Error { return newErr(KindBadRequest, msg, cause) }

func ValidationFailed(details []FieldError) *Error {
	e := newErr(KindValidationFailed, MsgValidation, nil)
	e.Details = details
	return e
}

func RateLimited(retryAfter int) *Error {
	e := newErr(KindRateLimited, MsgRateLimited, nil)
	e.RetryAfter = retryAfter
	return e
}

func PayloadTooLarge(cause error) *Error { return newErr(KindPayloadTooLarge, MsgTooLarge, cause) }

// Internal marks cause as a server fault. Its text is never sent to clients.
func Internal(cause error) *Error { return newErr(KindInternal, MsgInternal, cause) }

// As finds an *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the kind of err; unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

type body struct {
	Success    bool         `json:"success"`
	Error      string       `json:"error"`
	Details    []FieldError `json:"details,omitempty"`
	RetryAfter int          `json:"retryAfter,omitempty"`
	ErrorID    string       `json:"errorId,omitempty"`
}

// Write renders err as the terminal response for r.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	e, ok := As(err)
	if !ok || e.Status() >= http.StatusInternalServerError {
		WriteInternal(w, r, err)
		return
	}

	b := body{Error: e.Message}
	switch e.Kind {
	case KindValidationFailed:
		b.Details = e.Details
		if b.Details == nil {
			b.Details = []FieldError{}
		}
	case KindRateLimited:
		b.RetryAfter = e.RetryAfter
		if e.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
		}
	}
	WriteJSON(w, e.Status(), b)
}

// WriteInternal logs err under a fresh error id and sends the generic 500
// body. It returns the id.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) string {
	id := uuid.NewString()
	log.FromContext(r.Context()).Error(r.Context(), err, "internal error",
		"error_id", id,
		"method", r.Method,
		"path", r.URL.Path,
	)
	WriteInternalID(w, id)
	return id
}

// WriteInternalID sends the generic 500 body for an error the caller has
// already logged under id.
func WriteInternalID(w http.ResponseWriter, id string) {
	WriteJSON(w, http.StatusInternalServerError, body{Error: MsgInternal, ErrorID: id})
}

// WriteJSON writes v with status. Encoding failures are not reported; the
// header is already committed by then.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
