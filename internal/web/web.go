// internal/web/web.go
// JSON request and response helpers shared by the service handlers.
package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"libraripro/internal/apperr"
)

// Envelope is the top-level JSON object of every response, e.g. {"book": {...}}.
type Envelope map[string]any

// WriteJSON writes data with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data Envelope) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

// ReadJSON decodes exactly one JSON value from a body capped at 1 MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("body must not be empty")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("body must only contain a single JSON value")
	}
	return nil
}

// ErrorBody is the payload under the "error" key. Fields is set for validation failures.
type ErrorBody struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Entity  string            `json:"entity,omitempty"`
	ID      string            `json:"id,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

const (
	KindValidation   = "validation"
	KindNotFound     = "not_found"
	KindConflict     = "conflict"
	KindBadRequest   = "bad_request"
	KindRateLimited  = "rate_limited"
	KindUnauthorized = "unauthorized"
	KindInternal     = "internal"
)

// Error maps err onto a status code and writes it. Errors outside the apperr
// taxonomy are logged and reported as 500 without detail.
func Error(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		ve *apperr.ValidationError
		nf *apperr.NotFoundError
		ce *apperr.ConflictError
	)

	switch {
	case errors.As(err, &ve):
		respond(w, r, logger, http.StatusUnprocessableEntity, ErrorBody{Kind: KindValidation, Message: ve.Error(), Fields: ve.Fields})
	case errors.As(err, &nf):
		respond(w, r, logger, http.StatusNotFound, ErrorBody{Kind: KindNotFound, Message: nf.Error(), Entity: nf.Entity, ID: nf.ID})
	case errors.As(err, &ce):
		respond(w, r, logger, http.StatusConflict, ErrorBody{Kind: KindConflict, Message: ce.Error()})
	default:
		logger.Error(err.Error(),
			slog.String("request_method", r.Method),
			slog.String("request_url", r.URL.String()),
		)
		respond(w, r, logger, http.StatusInternalServerError, ErrorBody{
			Kind:    KindInternal,
			Message: "the server encountered a problem and could not process your request",
		})
	}
}

func BadRequest(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	respond(w, r, logger, http.StatusBadRequest, ErrorBody{Kind: KindBadRequest, Message: err.Error()})
}

func NotFound(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	respond(w, r, logger, http.StatusNotFound, ErrorBody{Kind: KindNotFound, Message: "the requested resource could not be found"})
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	respond(w, r, logger, http.StatusMethodNotAllowed, ErrorBody{
		Kind:    KindBadRequest,
		Message: "the " + r.Method + " method is not supported for this resource",
	})
}

func RateLimited(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	respond(w, r, logger, http.StatusTooManyRequests, ErrorBody{Kind: KindRateLimited, Message: "rate limit exceeded"})
}

func Unauthorized(w http.ResponseWriter, r *http.Request, logger *slog.Logger, message string) {
	respond(w, r, logger, http.StatusUnauthorized, ErrorBody{Kind: KindUnauthorized, Message: message})
}

func respond(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, body ErrorBody) {
	if err := WriteJSON(w, status, Envelope{"error": body}); err != nil {
		logger.Error(err.Error(), slog.String("request_url", r.URL.String()))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// AsError converts a decoded ErrorBody back into the matching apperr value.
func (b ErrorBody) AsError() error {
	switch b.Kind {
	case KindValidation:
		return apperr.Validation(b.Fields)
	case KindNotFound:
		if b.Entity != "" {
			return apperr.NotFound(b.Entity, b.ID)
		}
		return errors.New(b.Message)
	case KindConflict:
		return &apperr.ConflictError{Message: b.Message}
	default:
		return errors.New(b.Message)
	}
}
