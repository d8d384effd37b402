// Package apierrors centralizes the gateway's error taxonomy so every
// call site converts failures to the same wire shape and status code.
package apierrors

import "net/http"

// Kind is one of the enumerated gateway error types.
type Kind string

const (
	KindInvalidRequest      Kind = "invalid_request_error"
	KindAuthentication      Kind = "authentication_error"
	KindBudgetExceeded      Kind = "budget_exceeded"
	KindRateLimit           Kind = "rate_limit_error"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindAllProvidersFailed  Kind = "all_providers_failed"
	KindModelNotFound       Kind = "model_not_found"
	KindStreamError         Kind = "stream_error"
	KindServiceUnavailable Kind = "service_unavailable"
	KindServerError         Kind = "server_error"
)

// statusFor maps each kind to its HTTP status code. stream_error has no
// HTTP status of its own; it is only ever emitted on the SSE channel.
var statusFor = map[Kind]int{
	KindInvalidRequest:      http.StatusBadRequest,
	KindAuthentication:      http.StatusUnauthorized,
	KindBudgetExceeded:      http.StatusTooManyRequests,
	KindRateLimit:           http.StatusTooManyRequests,
	KindProviderUnavailable: http.StatusBadGateway,
	KindAllProvidersFailed:  http.StatusBadGateway,
	KindModelNotFound:       http.StatusNotFound,
	KindServiceUnavailable:  http.StatusServiceUnavailable,
	KindServerError:         http.StatusInternalServerError,
}

// Status returns the HTTP status code for a kind, defaulting to 500.
func (k Kind) Status() int {
	if s, ok := statusFor[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is the gateway's typed error: it carries everything needed to
// render the {error:{message,type,details}} envelope.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	return e.Message
}

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithDetails attaches a details payload and returns the receiver.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// Envelope is the wire shape written on every error response.
type Envelope struct {
	Error EnvelopeBody `json:"error"`
}

// EnvelopeBody is the inner {message,type,details} object.
type EnvelopeBody struct {
	Message string                 `json:"message"`
	Type    string                 `json:"type"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ToEnvelope converts an *Error into its wire envelope.
func (e *Error) ToEnvelope() Envelope {
	return Envelope{Error: EnvelopeBody{
		Message: e.Message,
		Type:    string(e.Kind),
		Details: e.Details,
	}}
}
