package server

import (
	"errors"
	"io"
	"net/http"

	"studycompanion/pkg/domain"
)

// readUpload returns the multipart "file" field, enforcing the upload limit.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if r.ContentLength > s.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large", "BODY_TOO_LARGE")
		return "", nil, false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large", "BODY_TOO_LARGE")
			return "", nil, false
		}
		writeError(w, http.StatusBadRequest, "invalid form data", "INVALID_INPUT")
		return "", nil, false
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required (field: file)", "INVALID_INPUT")
		return "", nil, false
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file", "INVALID_INPUT")
		return "", nil, false
	}
	return header.Filename, data, true
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request, _ domain.User) {
	filename, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	text, err := s.app.ExtractText(r.Context(), filename, data)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"filename": filename,
		"text":     text,
	})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request, user domain.User) {
	filename, data, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	doc, err := s.app.UploadDocument(r.Context(), user, filename, data)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request, user domain.User) {
	docs, err := s.app.ListDocuments(r.Context(), user)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeList(w, docs)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request, user domain.User) {
	doc, err := s.app.GetDocument(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request, user domain.User) {
	s.deleted(w, r, s.app.DeleteDocument(r.Context(), user, r.PathValue("id")))
}
