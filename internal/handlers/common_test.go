package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "tomodachi-cheki/internal/errors"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", fmt.Errorf("receiverName is required: %w", apperrors.ErrValidation), http.StatusBadRequest},
		{"not yet received", fmt.Errorf("photo p1: %w", apperrors.ErrNotYetReceived), http.StatusBadRequest},
		{"unauthorized", apperrors.ErrUnauthorized, http.StatusUnauthorized},
		{"not found", fmt.Errorf("photo not found: %w", apperrors.ErrNotFound), http.StatusNotFound},
		{"expired", fmt.Errorf("photo p1: %w", apperrors.ErrExpired), http.StatusGone},
		{"claimed", fmt.Errorf("photo p1: %w", apperrors.ErrAlreadyClaimed), http.StatusConflict},
		{"conflict", fmt.Errorf("email already registered: %w", apperrors.ErrConflict), http.StatusConflict},
		{"unavailable", fmt.Errorf("%w: %w", apperrors.ErrUnavailable, errors.New("db down")), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := statusForError(tt.err)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestStatusForError_ReceiveRejectedIsCoarse(t *testing.T) {
	for _, cause := range []error{apperrors.ErrNotFound, apperrors.ErrExpired, apperrors.ErrAlreadyReceived} {
		status, message := statusForError(fmt.Errorf("%w: %w", apperrors.ErrReceiveRejected, cause))
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "photo not found or already received", message)
	}
}

func TestStatusForError_HidesInternalDetails(t *testing.T) {
	_, message := statusForError(errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal server error", message)
}

type mapObjects map[string][]byte

func (m mapObjects) Object(path string) ([]byte, bool) {
	data, ok := m[path]
	return data, ok
}

func TestServeObject(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/objects/*", ServeObject(mapObjects{"device-1/p1.jpg": []byte("jpeg")}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/objects/device-1/p1.jpg", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jpeg", rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/objects/missing.jpg", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
