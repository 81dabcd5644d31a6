// Package api exposes the learning platform over HTTP.
package api

import (
	"fmt"
	"net/http"

	"github.com/p-n-ai/pai-academy/internal/auth"
	"github.com/p-n-ai/pai-academy/internal/course"
	"github.com/p-n-ai/pai-academy/internal/progress"
	"github.com/p-n-ai/pai-academy/internal/report"
	"github.com/p-n-ai/pai-academy/internal/user"
)

// Config holds the services the HTTP handlers delegate to.
type Config struct {
	Auth     *auth.Service
	Courses  *course.Service
	Progress *progress.Engine
	Broker   progress.Broker
	Reports  *report.Generator
}

// Server holds HTTP handlers for the /api routes.
type Server struct {
	auth      *auth.Service
	courses   *course.Service
	progress  *progress.Engine
	broker    progress.Broker
	reports   *report.Generator
	validator *requestValidator
	schema    *payloadSchema
}

func New(cfg Config) (*Server, error) {
	if cfg.Auth == nil || cfg.Courses == nil || cfg.Progress == nil || cfg.Broker == nil || cfg.Reports == nil {
		return nil, fmt.Errorf("api: all services are required")
	}
	schema, err := newPayloadSchema(courseSchema)
	if err != nil {
		return nil, err
	}
	return &Server{
		auth:      cfg.Auth,
		courses:   cfg.Courses,
		progress:  cfg.Progress,
		broker:    cfg.Broker,
		reports:   cfg.Reports,
		validator: newRequestValidator(),
		schema:    schema,
	}, nil
}

// Register mounts the API routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	staff := []user.Role{user.RoleAdmin, user.RoleInstructor}
	admin := []user.Role{user.RoleAdmin}

	// Auth
	mux.Handle("POST /api/auth/register", s.public(s.handleRegister))
	mux.Handle("POST /api/auth/login", s.public(s.handleLogin))
	mux.Handle("GET /api/auth/me", s.protect(s.handleMe))
	mux.Handle("PUT /api/auth/profile", s.protect(s.handleUpdateProfile))

	// Courses
	mux.Handle("GET /api/courses", s.public(s.handleListCourses))
	mux.Handle("GET /api/courses/recommendations", s.protect(s.handleRecommendations))
	mux.Handle("GET /api/courses/{id}", s.public(s.handleGetCourse))
	mux.Handle("POST /api/courses", s.protect(s.handleCreateCourse, staff...))
	mux.Handle("PUT /api/courses/{id}", s.protect(s.handleUpdateCourse, staff...))
	mux.Handle("DELETE /api/courses/{id}", s.protect(s.handleDeleteCourse, admin...))
	mux.Handle("POST /api/courses/{id}/enroll", s.protect(s.handleEnroll))

	// Progress
	mux.Handle("POST /api/progress/lesson/complete", s.protect(s.handleCompleteLesson))
	mux.Handle("POST /api/progress/quiz/submit", s.protect(s.handleSubmitQuiz))
	mux.Handle("GET /api/progress", s.protect(s.handleProgress))
	mux.Handle("GET /api/progress/weekly", s.protect(s.handleWeekly))
	mux.Handle("GET /api/progress/live", s.protect(s.handleLive))

	// Admin
	mux.Handle("GET /api/admin/reports/progress", s.protect(s.handleProgressReport, admin...))
}
