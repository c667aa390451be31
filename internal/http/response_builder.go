package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"flatmates/internal/core"
)

// HeaderSyncWarning reports that the last snapshot did not reach the backend.
const HeaderSyncWarning = "X-Sync-Warning"

// JSONResponseBuilder assembles a JSON response with a fluent API.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	data       interface{}
}

// NewJSONResponse starts a 200 response with no body.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Data sets the value encoded as the body.
func (b *JSONResponseBuilder) Data(v interface{}) *JSONResponseBuilder {
	b.data = v
	return b
}

// SyncWarning adds the sync warning header when w is not nil.
func (b *JSONResponseBuilder) SyncWarning(w *core.PersistenceWarning) *JSONResponseBuilder {
	if w != nil {
		b.headers[HeaderSyncWarning] = w.Error()
	}
	return b
}

// Write sends the response. 204 and nil data produce an empty body.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.data == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.data)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// ErrorResponse builds an error response with message.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Data(ErrorBody{Error: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ErrorFor maps a domain error onto a status code: validation 422, unknown
// id 404, undecodable body 400, oversized body 413, anything else 500.
func ErrorFor(err error) *JSONResponseBuilder {
	var (
		verr     *core.ValidationError
		tooBig   *http.MaxBytesError
		notFound *core.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		return NewJSONResponse().
			Status(http.StatusUnprocessableEntity).
			Data(ErrorBody{Error: verr.Error(), Field: verr.Field})
	case errors.Is(err, core.ErrValidation):
		return ErrorResponse(http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &notFound):
		return NotFoundError(notFound.Error())
	case errors.As(err, &tooBig):
		return ErrorResponse(http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, errMalformedBody):
		return BadRequestError(err.Error())
	default:
		return InternalServerError("internal error")
	}
}
