package server

import (
	"errors"
	"net/http"

	"studycompanion/internal/util"
	"studycompanion/services/api/internal/app"
)

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{app.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
	{app.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{app.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
	{app.ErrInvalidRefreshToken, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN"},
	{app.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{app.ErrEmailExists, http.StatusConflict, "EMAIL_EXISTS"},
	{app.ErrInvalidResetToken, http.StatusBadRequest, "INVALID_RESET_TOKEN"},
	{app.ErrInvalidAIResponse, http.StatusBadGateway, "AI_INVALID_RESPONSE"},
	{app.ErrGenerationFailed, http.StatusBadGateway, "GENERATION_FAILED"},
	{app.ErrUnsupportedFile, http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE"},
	{app.ErrFileProcessing, http.StatusUnprocessableEntity, "FILE_PROCESSING_FAILED"},
	{app.ErrDocumentNotReady, http.StatusConflict, "DOCUMENT_NOT_READY"},
	{app.ErrStore, http.StatusInternalServerError, "STORE_FAILED"},
}

// writeAppError maps an application error to its status and code. Server
// side failures are logged and answered with the sentinel text only.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := http.StatusInternalServerError, "INTERNAL", http.StatusText(http.StatusInternalServerError)
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			status, code, msg = e.status, e.code, e.err.Error()
			break
		}
	}
	if status < 500 {
		writeError(w, status, err.Error(), code)
		return
	}
	util.LoggerFromContext(r.Context()).Error("request failed", "status", status, "code", code, "err", err)
	writeError(w, status, msg, code)
}
