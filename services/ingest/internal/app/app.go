// Package app turns queued document uploads into extracted study text.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"studycompanion/internal/util"
	"studycompanion/pkg/domain"
	"studycompanion/pkg/extract"
	"studycompanion/pkg/queue"
	"studycompanion/pkg/storage"
	"studycompanion/pkg/store"
)

// DocumentStore is the slice of the store the worker needs.
type DocumentStore interface {
	GetDocumentByID(ctx context.Context, id string) (domain.Document, bool, error)
	SetDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error
	CompleteDocument(ctx context.Context, id, text string) error
}

// Config holds runtime dependencies.
type Config struct {
	Store            DocumentStore
	Objects          storage.ObjectStore
	MaxRetries       int
	MaxDocumentBytes int64
	// MaxTextBytes caps decompressed markup and extracted text; zero means
	// eight times MaxDocumentBytes.
	MaxTextBytes int64
}

// App processes document jobs.
type App struct {
	store        DocumentStore
	objects      storage.ObjectStore
	maxRetries   int
	maxBytes     int64
	maxTextBytes int64
}

// errPermanent marks failures that a retry cannot fix.
var errPermanent = errors.New("permanent failure")

// New constructs the ingest worker.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("document store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	maxBytes := cfg.MaxDocumentBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	maxText := cfg.MaxTextBytes
	if maxText <= 0 {
		maxText = 8 * maxBytes
	}
	return &App{
		store:        cfg.Store,
		objects:      cfg.Objects,
		maxRetries:   maxRetries,
		maxBytes:     maxBytes,
		maxTextBytes: maxText,
	}, nil
}

// HandleJob is the queue handler. Permanent failures mark the document
// failed and return nil so the message is not retried; transient ones are
// returned, and the document is marked failed only on the last attempt.
func (a *App) HandleJob(ctx context.Context, job queue.Job) error {
	logger := util.LoggerFromContext(ctx).With("job_id", job.ID, "document_id", job.DocumentID, "attempt", job.Attempts)
	err := a.process(ctx, job.DocumentID)
	switch {
	case err == nil:
		logger.Info("document ready")
		return nil
	case errors.Is(err, errPermanent):
		logger.Warn("document failed", "err", err)
		a.fail(ctx, job.DocumentID, err)
		return nil
	case job.Final(a.maxRetries):
		logger.Error("document failed after retries", "err", err)
		a.fail(ctx, job.DocumentID, err)
		return err
	default:
		return err
	}
}

func (a *App) process(ctx context.Context, documentID string) error {
	doc, ok, err := a.store.GetDocumentByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if !ok {
		// Deleted while queued.
		return fmt.Errorf("%w: document %s no longer exists", errPermanent, documentID)
	}
	if doc.Status == domain.DocumentReady {
		return nil
	}
	if err := a.store.SetDocumentStatus(ctx, doc.ID, domain.DocumentProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	data, err := a.download(ctx, doc.StorageKey)
	if err != nil {
		return err
	}
	text, err := extract.ExtractTextLimit(doc.OriginalFilename, data, a.maxTextBytes)
	if err != nil {
		return fmt.Errorf("%w: %w", errPermanent, err)
	}
	if err := a.store.CompleteDocument(ctx, doc.ID, text); err != nil {
		return fmt.Errorf("save text: %w", err)
	}
	return nil
}

func (a *App) download(ctx context.Context, key string) ([]byte, error) {
	rc, err := a.objects.Get(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %w", errPermanent, err)
	}
	if err != nil {
		return nil, fmt.Errorf("download object: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, a.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	if int64(len(data)) > a.maxBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", errPermanent, a.maxBytes)
	}
	return data, nil
}

func (a *App) fail(ctx context.Context, documentID string, cause error) {
	msg := failureMessage(cause)
	err := a.store.SetDocumentStatus(ctx, documentID, domain.DocumentFailed, msg)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		util.LoggerFromContext(ctx).Warn("mark document failed", "document_id", documentID, "err", err)
	}
}

// failureMessage is what the owner sees on the document.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, extract.ErrUnsupported):
		return "unsupported file type"
	case errors.Is(err, extract.ErrTooLarge):
		return "extracted text is too large"
	case errors.Is(err, extract.ErrNoText):
		return "no text could be extracted from the file"
	case errors.Is(err, storage.ErrObjectNotFound):
		return "uploaded file is missing"
	case errors.Is(err, errPermanent):
		return strings.TrimPrefix(err.Error(), errPermanent.Error()+": ")
	default:
		return "file processing error"
	}
}
