package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/pai-academy/internal/auth"
	"github.com/p-n-ai/pai-academy/internal/course"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/user"
)

const maxBodyBytes = 1 << 20

var (
	errUnauthorized = errors.New("not authorized, no token")
	errForbidden    = errors.New("not allowed to access this resource")
)

// badRequest marks an error as the client's fault.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

type errorResponse struct {
	Message string      `json:"message"`
	Errors  fieldErrors `json:"errors,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

// writeError maps domain errors to HTTP statuses. Unknown errors are logged
// and hidden behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fields fieldErrors
	if errors.As(err, &fields) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "validation failed", Errors: fields})
		return
	}

	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Message: msg})
}

func statusFor(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br),
		errors.Is(err, user.ErrInvalid),
		errors.Is(err, course.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthorized),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, user.ErrNotFound),
		errors.Is(err, user.ErrNotEnrolled),
		errors.Is(err, course.ErrNotFound),
		errors.Is(err, progress.ErrLessonNotFound):
		return http.StatusNotFound
	case errors.Is(err, user.ErrEmailTaken),
		errors.Is(err, user.ErrAlreadyEnrolled),
		errors.Is(err, user.ErrVersionConflict),
		errors.Is(err, course.ErrInUse):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// readBody reads a size-limited request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, badRequest{fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// decode parses a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return badRequest{fmt.Errorf("invalid JSON body: %w", err)}
	}
	return s.validator.Struct(dst)
}
