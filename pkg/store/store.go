package store

import (
	"context"
	"errors"
	"time"

	"studycompanion/pkg/domain"
)

// ErrNotFound is returned by mutations that target a missing row or a row
// owned by someone else; callers cannot tell the two apart.
var ErrNotFound = errors.New("record not found")

// ErrEmailTaken is returned by CreateUser when another account owns the email.
var ErrEmailTaken = errors.New("email already registered")

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) error
	// UpdateUsername and UpdatePasswordHash touch only their own column so a
	// stale copy of the user can never roll back a concurrent change.
	UpdateUsername(ctx context.Context, id, username string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
	HasUserEmail(ctx context.Context, email string) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
}

// StudyStore persists generated study material. Every call is scoped by user id.
type StudyStore interface {
	SaveNote(ctx context.Context, n domain.Note) error
	ListNotes(ctx context.Context, userID string) ([]domain.Note, error)
	GetNote(ctx context.Context, userID, id string) (domain.Note, bool, error)
	DeleteNote(ctx context.Context, userID, id string) error

	SaveFlashcardSet(ctx context.Context, set domain.FlashcardSet) error
	ListFlashcardSets(ctx context.Context, userID string) ([]domain.FlashcardSet, error)
	GetFlashcardSet(ctx context.Context, userID, id string) (domain.FlashcardSet, bool, error)
	DeleteFlashcardSet(ctx context.Context, userID, id string) error

	// SaveQuiz writes the quiz row and all its questions atomically.
	SaveQuiz(ctx context.Context, q domain.Quiz) error
	ListQuizzes(ctx context.Context, userID string) ([]domain.Quiz, error)
	GetQuiz(ctx context.Context, userID, id string) (domain.Quiz, bool, error)
	DeleteQuiz(ctx context.Context, userID, id string) error
	SaveQuizAttempt(ctx context.Context, a domain.QuizAttempt) error
	ListQuizAttempts(ctx context.Context, userID, quizID string) ([]domain.QuizAttempt, error)

	// UpsertChat creates the chat or replaces its title and messages. A chat id
	// owned by another user yields ErrNotFound.
	UpsertChat(ctx context.Context, c domain.Chat) (domain.Chat, error)
	ListChats(ctx context.Context, userID string) ([]domain.Chat, error)
	GetChat(ctx context.Context, userID, id string) (domain.Chat, bool, error)
	DeleteChat(ctx context.Context, userID, id string) error
}

// DocumentStore tracks uploaded files and their extracted text.
type DocumentStore interface {
	SaveDocument(ctx context.Context, d domain.Document) error
	ListDocuments(ctx context.Context, userID string) ([]domain.Document, error)
	GetDocument(ctx context.Context, userID, id string) (domain.Document, bool, error)
	// GetDocumentByID is for background workers that act on behalf of the owner.
	GetDocumentByID(ctx context.Context, id string) (domain.Document, bool, error)
	SetDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error
	// CompleteDocument stores the extracted text and marks the document ready.
	CompleteDocument(ctx context.Context, id, text string) error
	DeleteDocument(ctx context.Context, userID, id string) error
}

// WidgetStore persists dashboard widgets.
type WidgetStore interface {
	SaveStickyNote(ctx context.Context, n domain.StickyNote) error
	ListStickyNotes(ctx context.Context, userID string) ([]domain.StickyNote, error)
	GetStickyNote(ctx context.Context, userID, id string) (domain.StickyNote, bool, error)
	DeleteStickyNote(ctx context.Context, userID, id string) error

	SaveTodo(ctx context.Context, t domain.Todo) error
	// ListTodos returns the todos of day and drops the user's todos of any other day.
	ListTodos(ctx context.Context, userID, day string) ([]domain.Todo, error)
	GetTodo(ctx context.Context, userID, id string) (domain.Todo, bool, error)
	DeleteTodo(ctx context.Context, userID, id string) error
}

// Store is the full relational persistence surface.
type Store interface {
	UserStore
	StudyStore
	DocumentStore
	WidgetStore
}

// SessionStore issues and checks access tokens.
type SessionStore interface {
	NewSession(ctx context.Context, userID string) (Session, error)
	Verify(ctx context.Context, token string) (string, error)
	DeleteSession(ctx context.Context, token string) error
	RevokeUserSessions(ctx context.Context, userID string, since time.Time) error
	JWKS() []JWK
}

// JWK is one entry of the JWKS document.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}
