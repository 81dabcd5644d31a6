package api

import (
	"net/http"

	"github.com/p-n-ai/pai-academy/internal/auth"
	"github.com/p-n-ai/pai-academy/internal/user"
)

type registerRequest struct {
	Name     string `json:"name" validate:"notblank,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type profileRequest struct {
	Name     string `json:"name" validate:"max=50"`
	Bio      string `json:"bio" validate:"max=500"`
	Location string `json:"location" validate:"max=100"`
}

type sessionResponse struct {
	ID     string    `json:"_id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Role   user.Role `json:"role"`
	Avatar string    `json:"avatar"`
	Streak int       `json:"streak"`
	Token  string    `json:"token"`
}

func newSessionResponse(s auth.Session) sessionResponse {
	return sessionResponse{
		ID:     s.User.ID,
		Name:   s.User.Name,
		Email:  s.User.Email,
		Role:   s.User.Role,
		Avatar: s.User.Avatar,
		Streak: s.User.Streak,
		Token:  s.Token,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := s.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	profile, err := s.auth.Me(r.Context(), currentUser(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := s.auth.UpdateProfile(r.Context(), currentUser(r.Context()).ID, req.Name, req.Bio, req.Location)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
