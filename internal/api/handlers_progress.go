package api

import (
	"net/http"
)

type completeLessonRequest struct {
	CourseID string `json:"courseId" validate:"required"`
	LessonID string `json:"lessonId" validate:"required"`
}

type completeLessonResponse struct {
	Message   string `json:"message"`
	Progress  int    `json:"progress"`
	Completed bool   `json:"completed"`
}

type submitQuizRequest struct {
	CourseID string         `json:"courseId" validate:"required"`
	Answers  map[string]int `json:"answers"`
}

func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	var req completeLessonRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.progress.CompleteLesson(r.Context(), currentUser(r.Context()).ID, req.CourseID, req.LessonID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completeLessonResponse{
		Message:   "Lesson completed",
		Progress:  res.Progress,
		Completed: res.Completed,
	})
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	var req submitQuizRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u := currentUser(r.Context())
	if _, err := s.visibleCourse(r.Context(), u, req.CourseID); err != nil {
		writeError(w, r, err)
		return
	}

	score, err := s.progress.SubmitQuiz(r.Context(), u.ID, req.CourseID, req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	summary, err := s.progress.Summary(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	rows, err := s.progress.Weekly(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
