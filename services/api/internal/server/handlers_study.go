package server

import (
	"net/http"

	"studycompanion/pkg/domain"
	"studycompanion/services/api/internal/app"
)

type summaryRequest struct {
	app.Source
}

type flashcardsRequest struct {
	app.Source
	Count  int  `json:"count"`
	Strict bool `json:"strict"`
}

type saveFlashcardsRequest struct {
	Title string             `json:"title"`
	Cards []domain.Flashcard `json:"cards"`
}

type quizInfoRequest struct {
	app.Source
	Difficulty   domain.Difficulty `json:"difficulty"`
	NumQuestions int               `json:"numQuestions"`
}

type generateQuizRequest struct {
	app.Source
	Info   domain.QuizInfo `json:"info"`
	Strict bool            `json:"strict"`
}

type attemptRequest struct {
	Answers map[string]string `json:"answers"`
}

// Summaries and notes.

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req summaryRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	summary, err := s.app.GenerateSummary(r.Context(), user, req.Source)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *Server) handleSaveNote(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Summary string `json:"summary"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	note, err := s.app.SaveNote(r.Context(), user, req.Summary)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request, user domain.User) {
	notes, err := s.app.ListNotes(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, notes)
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request, user domain.User) {
	note, err := s.app.GetNote(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.deleted(w, r, s.app.DeleteNote(r.Context(), user, r.PathValue("id")))
}

// Flashcards.

func (s *Server) handleGenerateFlashcards(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req flashcardsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	cards, err := s.app.GenerateFlashcards(r.Context(), user, req.Source, req.Count, req.Strict)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, cards)
}

func (s *Server) handleSaveFlashcards(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req saveFlashcardsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	set, err := s.app.SaveFlashcardSet(r.Context(), user, req.Title, req.Cards)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, set)
}

func (s *Server) handleListFlashcards(w http.ResponseWriter, r *http.Request, user domain.User) {
	sets, err := s.app.ListFlashcardSets(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, sets)
}

func (s *Server) handleGetFlashcards(w http.ResponseWriter, r *http.Request, user domain.User) {
	set, err := s.app.GetFlashcardSet(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleDeleteFlashcards(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.deleted(w, r, s.app.DeleteFlashcardSet(r.Context(), user, r.PathValue("id")))
}

// Quizzes.

func (s *Server) handleQuizInfo(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req quizInfoRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	info, err := s.app.GenerateQuizInfo(r.Context(), user, req.Source, req.Difficulty, req.NumQuestions)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req generateQuizRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	questions, err := s.app.GenerateQuiz(r.Context(), user, req.Source, req.Info, req.Strict)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, questions)
}

func (s *Server) handleSaveQuiz(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.QuizDraft
	if !s.decodeJSON(w, r, &req) {
		return
	}
	quiz, err := s.app.SaveQuiz(r.Context(), user, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (s *Server) handleListQuizzes(w http.ResponseWriter, r *http.Request, user domain.User) {
	quizzes, err := s.app.ListQuizzes(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, quizzes)
}

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request, user domain.User) {
	quiz, err := s.app.GetQuiz(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (s *Server) handleDeleteQuiz(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.deleted(w, r, s.app.DeleteQuiz(r.Context(), user, r.PathValue("id")))
}

func (s *Server) handleSubmitAttempt(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req attemptRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	attempt, err := s.app.SubmitAttempt(r.Context(), user, r.PathValue("id"), req.Answers)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request, user domain.User) {
	attempts, err := s.app.ListAttempts(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, attempts)
}

// Chat.

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		Message string `json:"message"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	reply, err := s.app.Ask(r.Context(), user, req.Message)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// handleSaveChat serves both POST /api/chats and PUT /api/chats/{id}; the
// path id wins over the body.
func (s *Server) handleSaveChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.ChatDraft
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if id := r.PathValue("id"); id != "" {
		req.ID = id
	}
	chat, err := s.app.SaveChat(r.Context(), user, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSON(w, status, chat)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request, user domain.User) {
	chats, err := s.app.ListChats(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, chats)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	chat, err := s.app.GetChat(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.deleted(w, r, s.app.DeleteChat(r.Context(), user, r.PathValue("id")))
}

func (s *Server) deleted(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
