// Package http serves the dashboard over a JSON API.
//
// This file implements the builder used by every handler to write JSON
// responses and errors in one consistent shape.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"bilancio/internal/backend"
	"bilancio/internal/log"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value to encode.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorResponse creates a standard JSON error response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(ErrorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// BackendError maps a backend or service error to a response and logs it.
func BackendError(r *http.Request, err error) *JSONResponseBuilder {
	logger := log.FromContext(r.Context())
	var fe *backend.FetchError
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return NotFoundError("record not found")
	case errors.Is(err, backend.ErrAlreadyPaid):
		return ErrorResponse(http.StatusConflict, "record already paid")
	case errors.Is(err, backend.ErrInvalidRecord):
		return UnprocessableEntityError(err.Error())
	case errors.As(err, &fe):
		logger.WarnContext(r.Context(), "Backend unavailable", log.FieldError, err)
		return ErrorResponse(http.StatusBadGateway, "backend unavailable: "+fe.Resource)
	default:
		logger.ErrorContext(r.Context(), "Request failed", log.FieldError, err)
		return InternalServerError("internal error")
	}
}
