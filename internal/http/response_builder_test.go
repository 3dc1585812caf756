package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bilancio/internal/backend"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/records/1").
		Body(map[string]int{"n": 1}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Header().Get("Location") != "/api/records/1" {
		t.Errorf("Location header missing")
	}
	if strings.TrimSpace(w.Body.String()) != `{"n":1}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("got %d with %d bytes", w.Code, w.Body.Len())
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		builder *JSONResponseBuilder
		want    int
	}{
		{"bad request", BadRequestError("x"), http.StatusBadRequest},
		{"not found", NotFoundError("x"), http.StatusNotFound},
		{"unprocessable", UnprocessableEntityError("x"), http.StatusUnprocessableEntity},
		{"internal", InternalServerError("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)
			if w.Code != tt.want {
				t.Errorf("Status code = %d, want %d", w.Code, tt.want)
			}
			if !strings.Contains(w.Body.String(), `"error":"x"`) {
				t.Errorf("Body = %q", w.Body.String())
			}
		})
	}
}

func TestBackendErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("mark paid x: %w", backend.ErrNotFound), http.StatusNotFound},
		{"already paid", fmt.Errorf("mark paid x: %w", backend.ErrAlreadyPaid), http.StatusConflict},
		{"invalid", fmt.Errorf("%w: negative amount", backend.ErrInvalidRecord), http.StatusUnprocessableEntity},
		{"fetch", backend.AsFetchError("records", errors.New("timeout")), http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			BackendError(r, tt.err).Write(w)
			if w.Code != tt.want {
				t.Errorf("Status code = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
