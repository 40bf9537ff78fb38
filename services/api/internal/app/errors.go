package app

import (
	"errors"
	"fmt"

	"studycompanion/pkg/store"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("user not authenticated")

	// ErrInvalidCredentials is shown to end users and must not reveal whether
	// the email exists.
	ErrInvalidCredentials  = errors.New("Incorrect email address or password")
	ErrEmailExists         = errors.New("email already exists")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidResetToken   = errors.New("reset token is invalid or expired")

	ErrGenerationFailed  = errors.New("text generation failed")
	ErrInvalidAIResponse = errors.New("AI response not valid JSON")

	ErrUnsupportedFile  = errors.New("unsupported file type")
	ErrFileProcessing   = errors.New("file processing error")
	ErrDocumentNotReady = errors.New("document is not ready")

	ErrStore = errors.New("network/save failure")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// storeErr maps persistence failures onto the application taxonomy.
func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}
