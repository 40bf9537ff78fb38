package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"studycompanion/internal/util"
	"studycompanion/pkg/domain"
	"studycompanion/pkg/extract"
	"studycompanion/pkg/storage"
)

// ExtractText converts an uploaded file to plain text without storing it.
func (a *App) ExtractText(ctx context.Context, filename string, data []byte) (string, error) {
	text, err := extract.ExtractTextLimit(filename, data, a.maxTextBytes)
	if err != nil {
		return "", extractErr(err)
	}
	util.LoggerFromContext(ctx).Debug("text extracted", "filename", filename, "bytes", len(data), "chars", len(text))
	return text, nil
}

func extractErr(err error) error {
	switch {
	case errors.Is(err, extract.ErrUnsupported):
		return fmt.Errorf("%w: %w", ErrUnsupportedFile, err)
	default:
		return fmt.Errorf("%w: %w", ErrFileProcessing, err)
	}
}

// UploadDocument stores the file and queues it for text extraction.
func (a *App) UploadDocument(ctx context.Context, user domain.User, filename string, data []byte) (domain.Document, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return domain.Document{}, invalidf("filename required")
	}
	if len(data) == 0 {
		return domain.Document{}, invalidf("file is empty")
	}
	kind, err := extract.Detect(filename, data)
	if err != nil {
		return domain.Document{}, extractErr(err)
	}
	now := a.clock()
	doc := domain.Document{
		ID:               util.NewUUID(),
		UserID:           user.ID,
		Title:            titleFromFilename(filename),
		OriginalFilename: filepath.Base(filename),
		ContentType:      extract.ContentType(kind),
		SizeBytes:        int64(len(data)),
		Status:           domain.DocumentQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	doc.StorageKey = storage.DocumentKey(user.ID, doc.ID, filename)
	if err := a.objects.Put(ctx, doc.StorageKey, bytes.NewReader(data), doc.SizeBytes, doc.ContentType); err != nil {
		return domain.Document{}, fmt.Errorf("%w: store upload: %w", ErrStore, err)
	}
	if err := a.store.SaveDocument(ctx, doc); err != nil {
		_ = a.objects.Delete(ctx, doc.StorageKey)
		return domain.Document{}, storeErr("save document", err)
	}
	job, err := a.queue.Enqueue(ctx, doc.ID)
	if err != nil {
		msg := "could not queue document for processing"
		if serr := a.store.SetDocumentStatus(ctx, doc.ID, domain.DocumentFailed, msg); serr != nil {
			util.LoggerFromContext(ctx).Error("mark document failed", "document_id", doc.ID, "err", serr)
		}
		return domain.Document{}, fmt.Errorf("%w: enqueue document: %w", ErrStore, err)
	}
	util.LoggerFromContext(ctx).Info("document queued", "document_id", doc.ID, "job_id", job.ID, "kind", kind)
	return doc, nil
}

func (a *App) ListDocuments(ctx context.Context, user domain.User) ([]domain.Document, error) {
	docs, err := a.store.ListDocuments(ctx, user.ID)
	if err != nil {
		return nil, storeErr("list documents", err)
	}
	return docs, nil
}

// GetDocument returns the document; extracted text is only present once ready.
func (a *App) GetDocument(ctx context.Context, user domain.User, id string) (domain.Document, error) {
	doc, ok, err := a.store.GetDocument(ctx, user.ID, id)
	if err != nil {
		return domain.Document{}, storeErr("get document", err)
	}
	if !ok {
		return domain.Document{}, ErrNotFound
	}
	if doc.Status != domain.DocumentReady {
		doc.Text = ""
	}
	return doc, nil
}

// DeleteDocument removes the row and then the stored object.
func (a *App) DeleteDocument(ctx context.Context, user domain.User, id string) error {
	doc, err := a.GetDocument(ctx, user, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteDocument(ctx, user.ID, id); err != nil {
		return storeErr("delete document", err)
	}
	if doc.StorageKey == "" {
		return nil
	}
	if err := a.objects.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		util.LoggerFromContext(ctx).Warn("delete document object", "document_id", id, "err", err)
	}
	return nil
}

func titleFromFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	title := strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if title == "" {
		return base
	}
	return truncateRunes(title, maxTitleRunes)
}
