package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/p-n-ai/pai-academy/internal/course"
	"github.com/p-n-ai/pai-academy/internal/user"
)

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f course.Filter

	if v := q.Get("difficulty"); v != "" {
		d, err := course.ParseDifficulty(v)
		if err != nil {
			writeError(w, r, badRequest{err})
			return
		}
		f.Difficulty = d
	}
	if v := q.Get("status"); v != "" {
		st, err := course.ParseStatus(v)
		if err != nil {
			writeError(w, r, badRequest{err})
			return
		}
		f.Status = st
	}
	if v := q.Get("tags"); v != "" {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				f.Tags = append(f.Tags, tag)
			}
		}
	}
	f.Search = strings.TrimSpace(q.Get("search"))

	courses, err := s.courses.List(r.Context(), f, isAdmin(currentUser(r.Context())))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	c, err := s.visibleCourse(r.Context(), currentUser(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func canEdit(u *user.User) bool {
	return u != nil && (u.Role == user.RoleAdmin || u.Role == user.RoleInstructor)
}

// visibleCourse loads a course u may see. Drafts are reported as missing to
// anyone who cannot edit courses.
func (s *Server) visibleCourse(ctx context.Context, u *user.User, id string) (*course.Course, error) {
	c, err := s.courses.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != course.Published && !canEdit(u) {
		return nil, course.ErrNotFound
	}
	return c, nil
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r.Context())
	recs, err := s.courses.Recommend(r.Context(), u.EnrolledCourseIDs())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// readCourse validates the body against the course schema and decodes it.
func (s *Server) readCourse(w http.ResponseWriter, r *http.Request) (course.Course, error) {
	body, err := readBody(w, r)
	if err != nil {
		return course.Course{}, err
	}
	if err := s.schema.Validate(body); err != nil {
		if _, ok := err.(fieldErrors); ok {
			return course.Course{}, err
		}
		return course.Course{}, badRequest{err}
	}
	var c course.Course
	if err := json.Unmarshal(body, &c); err != nil {
		return course.Course{}, badRequest{err}
	}
	return c, nil
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	in, err := s.readCourse(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.courses.Create(r.Context(), in, currentUser(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	in, err := s.readCourse(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	c, err := s.courses.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := s.courses.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Course deleted")
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r.Context())
	c, err := s.visibleCourse(r.Context(), u, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.progress.Enroll(r.Context(), u.ID, c.ID); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Enrolled successfully")
}
