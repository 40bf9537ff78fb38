package server

import (
	"errors"
	"net/http"

	"studycompanion/pkg/domain"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.allowAuth(w, r, "auth.signup") {
		return
	}
	var req credentialsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.app.SignUp(r.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		s.audit(r, "auth.signup", "fail", "reason", errorReason(err))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.signup", "success", "user_id", resp.User.ID)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowAuth(w, r, "auth.login") {
		return
	}
	var req credentialsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.audit(r, "auth.login", "fail", "reason", errorReason(err))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", resp.User.ID)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.allowAuth(w, r, "auth.refresh") {
		return
	}
	var req refreshRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.app.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.audit(r, "auth.refresh", "fail", "reason", errorReason(err))
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req refreshRequest
	if r.ContentLength != 0 && !s.decodeJSON(w, r, &req) {
		return
	}
	token, _ := bearerToken(r)
	if err := s.app.Logout(r.Context(), user, token, req.RefreshToken); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.logout", "success", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if !s.allowAuth(w, r, "auth.password.forgot") {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.password.forgot", "success")
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "if the account exists, a reset link has been sent",
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if !s.allowAuth(w, r, "auth.password.reset") {
		return
	}
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		s.audit(r, "auth.password.reset", "fail", "reason", errorReason(err))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.password.reset", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Username string `json:"username"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.app.UpdateProfile(r.Context(), user, req.Username)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.app.ChangePassword(r.Context(), user, req.CurrentPassword, req.NewPassword)
	if err != nil {
		s.audit(r, "auth.password.change", "fail", "user_id", user.ID, "reason", errorReason(err))
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.password.change", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, resp)
}

// errorReason gives audit logs a stable label without leaking input.
func errorReason(err error) string {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "INTERNAL"
}
