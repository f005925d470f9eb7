// internal/controller/response.go
package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, appErrors.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case appErrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, appErrors.ErrRunInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError hides internal error text behind a generic message.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		if logger != nil {
			logger.Error("❌ Request failed", zap.Error(err))
		}
		writeErrorMessage(w, status, "internal server error")
		return
	}
	writeErrorMessage(w, status, err.Error())
}

// decodeBody reads a JSON body into v. An empty body is a validation error.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return appErrors.Validation("request body is required")
		}
		return appErrors.Validation(fmt.Sprintf("invalid body: %v", err))
	}
	return nil
}

// pathID returns the {id} URL parameter. Ids that are not UUIDs cannot
// exist, so they are reported with notFound.
func pathID(r *http.Request, notFound func(string) error) (string, error) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return "", notFound(id)
	}
	return id, nil
}
