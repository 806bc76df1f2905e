package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

const genericUpstreamMessage = "The upstream model service returned an error."

// Envelope is the OpenAI-compatible error body.
type Envelope struct {
	Error EnvelopeError `json:"error"`
}

type EnvelopeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// StatusOf returns the HTTP status a failure is reported with.
func StatusOf(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindDeploymentNotFound, KindRouteNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindQuotaExceeded, KindRateLimited:
		return http.StatusTooManyRequests
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNoContent:
		return http.StatusNoContent
	case KindUpstream:
		if e.Status == 0 {
			return http.StatusBadGateway
		}
		return e.Status
	default:
		return http.StatusInternalServerError
	}
}

// NewEnvelope builds the body for err. Internal failures never expose their cause.
func NewEnvelope(err error) Envelope {
	status := StatusOf(err)
	msg := "The server encountered an internal error."

	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		msg = e.Message
	}
	if e != nil && e.Kind == KindUpstream && msg == "" {
		msg = genericUpstreamMessage
	}
	return Envelope{Error: EnvelopeError{Code: status, Message: msg}}
}

// WriteError is the single place failure responses are written.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	if status == http.StatusNoContent {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var e *Error
	if errors.As(err, &e) && e.Kind == KindUpstream && len(e.Body) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(e.Body)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewEnvelope(err))
}

// MarshalEnvelope returns the envelope bytes for err, used when a failure has to be
// embedded in an already started stream.
func MarshalEnvelope(err error) []byte {
	b, _ := json.Marshal(NewEnvelope(err))
	return b
}
