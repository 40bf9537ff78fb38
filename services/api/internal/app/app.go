package app

import (
	"context"
	"errors"
	"time"

	"studycompanion/pkg/ai"
	"studycompanion/pkg/pomodoro"
	"studycompanion/pkg/queue"
	"studycompanion/pkg/storage"
	"studycompanion/pkg/store"
)

// DocumentQueue hands uploaded documents to the ingest worker.
type DocumentQueue interface {
	Enqueue(ctx context.Context, documentID string) (queue.Job, error)
}

// Config wires the application to its backing services.
type Config struct {
	Store         store.Store
	Sessions      store.SessionStore
	RefreshTokens store.RefreshTokenStore
	ResetTokens   store.ResetTokenStore
	ResetNotifier ResetNotifier
	Generator     ai.TextGenerator
	Objects       storage.ObjectStore
	Queue         DocumentQueue
	Pomodoro      *pomodoro.Service

	RefreshTTL            time.Duration
	ResetTTL              time.Duration
	DefaultFlashcardCount int
	// MaxTextBytes caps decompressed markup and extracted text during
	// extraction; zero uses the extractor's default.
	MaxTextBytes int64
	Now          func() time.Time
}

// App holds the use cases behind the HTTP API.
type App struct {
	store         store.Store
	sessions      store.SessionStore
	refreshTokens store.RefreshTokenStore
	resetTokens   store.ResetTokenStore
	notifier      ResetNotifier
	generator     ai.TextGenerator
	objects       storage.ObjectStore
	queue         DocumentQueue
	pomodoro      *pomodoro.Service

	refreshTTL     time.Duration
	resetTTL       time.Duration
	flashcardCount int
	maxTextBytes   int64
	now            func() time.Time
}

// New validates cfg and constructs the application.
func New(cfg Config) (*App, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("store required")
	case cfg.Sessions == nil || cfg.RefreshTokens == nil || cfg.ResetTokens == nil:
		return nil, errors.New("session, refresh and reset token stores required")
	case cfg.Generator == nil:
		return nil, errors.New("text generator required")
	case cfg.Objects == nil || cfg.Queue == nil:
		return nil, errors.New("object store and document queue required")
	case cfg.Pomodoro == nil:
		return nil, errors.New("pomodoro service required")
	}
	a := &App{
		store:          cfg.Store,
		sessions:       cfg.Sessions,
		refreshTokens:  cfg.RefreshTokens,
		resetTokens:    cfg.ResetTokens,
		notifier:       cfg.ResetNotifier,
		generator:      cfg.Generator,
		objects:        cfg.Objects,
		queue:          cfg.Queue,
		pomodoro:       cfg.Pomodoro,
		refreshTTL:     cfg.RefreshTTL,
		resetTTL:       cfg.ResetTTL,
		flashcardCount: cfg.DefaultFlashcardCount,
		maxTextBytes:   cfg.MaxTextBytes,
		now:            cfg.Now,
	}
	if a.notifier == nil {
		a.notifier = LogResetNotifier{}
	}
	if a.refreshTTL <= 0 {
		a.refreshTTL = 7 * 24 * time.Hour
	}
	if a.resetTTL <= 0 {
		a.resetTTL = 30 * time.Minute
	}
	if a.flashcardCount <= 0 {
		a.flashcardCount = defaultFlashcardCount
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

func (a *App) clock() time.Time {
	return a.now().UTC()
}
