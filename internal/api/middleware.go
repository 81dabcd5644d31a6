package api

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/p-n-ai/pai-academy/internal/user"
)

type ctxKey struct{}

// currentUser returns the authenticated user, or nil for anonymous requests.
func currentUser(ctx context.Context) *user.User {
	u, _ := ctx.Value(ctxKey{}).(*user.User)
	return u
}

func isAdmin(u *user.User) bool {
	return u != nil && u.Role == user.RoleAdmin
}

// bearerToken extracts the token from the Authorization header. Browsers
// cannot set headers on websocket upgrades, so the token query parameter is
// accepted as well.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// resolve attaches the caller to the request context when a token is sent.
// A token that is sent but invalid is an error even on public routes.
func (s *Server) resolve(r *http.Request) (*http.Request, error) {
	token := bearerToken(r)
	if token == "" {
		return r, nil
	}
	u, err := s.auth.Authenticate(r.Context(), token)
	if err != nil {
		return nil, err
	}
	return r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)), nil
}

// public serves h with optional authentication.
func (s *Server) public(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authed, err := s.resolve(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		h(w, authed)
	})
}

// protect serves h to authenticated users, restricted to roles when given.
func (s *Server) protect(h http.HandlerFunc, roles ...user.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authed, err := s.resolve(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		u := currentUser(authed.Context())
		if u == nil {
			writeError(w, r, errUnauthorized)
			return
		}
		if len(roles) > 0 && !slices.Contains(roles, u.Role) {
			writeError(w, r, errForbidden)
			return
		}
		h(w, authed)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rec.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// LogRequests logs one line per request.
func LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// CORS allows browser clients served from origin. An empty origin disables
// the headers.
func CORS(origin string, next http.Handler) http.Handler {
	if origin == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
