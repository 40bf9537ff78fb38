package server

import (
	"net/http"

	"studycompanion/pkg/domain"
	"studycompanion/pkg/pomodoro"
	"studycompanion/services/api/internal/app"
)

// Pomodoro.

func (s *Server) pomodoroResult(w http.ResponseWriter, r *http.Request, st pomodoro.State, err error) {
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePomodoro(w http.ResponseWriter, r *http.Request, user domain.User) {
	st, err := s.app.PomodoroState(r.Context(), user)
	s.pomodoroResult(w, r, st, err)
}

func (s *Server) handlePomodoroStart(w http.ResponseWriter, r *http.Request, user domain.User) {
	st, err := s.app.StartPomodoro(r.Context(), user)
	s.pomodoroResult(w, r, st, err)
}

func (s *Server) handlePomodoroPause(w http.ResponseWriter, r *http.Request, user domain.User) {
	st, err := s.app.PausePomodoro(r.Context(), user)
	s.pomodoroResult(w, r, st, err)
}

func (s *Server) handlePomodoroReset(w http.ResponseWriter, r *http.Request, user domain.User) {
	st, err := s.app.ResetPomodoro(r.Context(), user)
	s.pomodoroResult(w, r, st, err)
}

func (s *Server) handlePomodoroMode(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Mode pomodoro.Mode `json:"mode"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	st, err := s.app.SetPomodoroMode(r.Context(), user, req.Mode)
	s.pomodoroResult(w, r, st, err)
}

func (s *Server) handlePomodoroDuration(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	st, err := s.app.UpdatePomodoroDuration(r.Context(), user, pomodoro.Mode(r.PathValue("mode")), req.Minutes)
	s.pomodoroResult(w, r, st, err)
}

// Sticky notes.

func (s *Server) handleListStickyNotes(w http.ResponseWriter, r *http.Request, user domain.User) {
	notes, err := s.app.ListStickyNotes(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, notes)
}

func (s *Server) handleCreateStickyNote(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.StickyPatch
	if !s.decodeJSON(w, r, &req) {
		return
	}
	note, err := s.app.CreateStickyNote(r.Context(), user, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleUpdateStickyNote(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.StickyPatch
	if !s.decodeJSON(w, r, &req) {
		return
	}
	note, err := s.app.UpdateStickyNote(r.Context(), user, r.PathValue("id"), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteStickyNote(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.deleted(w, r, s.app.DeleteStickyNote(r.Context(), user, r.PathValue("id")))
}

// Todos. The caller's IANA timezone comes from the tz query parameter.

func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request, user domain.User) {
	todos, err := s.app.ListTodos(r.Context(), user, r.URL.Query().Get("tz"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, todos)
}

func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Text string `json:"text"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	todo, err := s.app.CreateTodo(r.Context(), user, req.Text, r.URL.Query().Get("tz"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, todo)
}

func (s *Server) handleUpdateTodo(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.TodoPatch
	if !s.decodeJSON(w, r, &req) {
		return
	}
	todo, err := s.app.UpdateTodo(r.Context(), user, r.PathValue("id"), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.deleted(w, r, s.app.DeleteTodo(r.Context(), user, r.PathValue("id")))
}
