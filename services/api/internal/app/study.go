package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"studycompanion/internal/util"
	"studycompanion/pkg/ai"
	"studycompanion/pkg/domain"
)

const (
	// maxSourceRunes bounds the content pasted into a single prompt.
	maxSourceRunes        = 100_000
	maxTitleRunes         = 200
	defaultFlashcardCount = 40
	maxFlashcardCount     = 100

	noSummaryFallback = "No summary generated."
)

// Source is the study material for a generation call: pasted text or a
// processed document, never both.
type Source struct {
	Text       string `json:"text"`
	DocumentID string `json:"documentId"`
}

func (a *App) resolveSource(ctx context.Context, user domain.User, src Source) (string, error) {
	text := strings.TrimSpace(src.Text)
	docID := strings.TrimSpace(src.DocumentID)
	switch {
	case text != "" && docID != "":
		return "", invalidf("provide either text or documentId")
	case docID != "":
		doc, ok, err := a.store.GetDocument(ctx, user.ID, docID)
		if err != nil {
			return "", storeErr("fetch document", err)
		}
		if !ok {
			return "", ErrNotFound
		}
		if doc.Status != domain.DocumentReady {
			return "", fmt.Errorf("%w: status %s", ErrDocumentNotReady, doc.Status)
		}
		text = strings.TrimSpace(doc.Text)
		if text == "" {
			return "", ErrFileProcessing
		}
	case text == "":
		return "", invalidf("text required")
	}
	return truncateRunes(text, maxSourceRunes), nil
}

func (a *App) generate(ctx context.Context, prompt string, opts ai.Options) (string, error) {
	text, err := a.generator.GenerateText(ctx, studySystemPrompt, prompt, opts)
	if err != nil {
		if errors.Is(err, ai.ErrEmptyResponse) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	return text, nil
}

// decodeModelJSON decodes model output into out. Unparseable output is only an
// error in strict mode; otherwise the caller falls back to an empty result.
func decodeModelJSON(ctx context.Context, text string, out any, strict bool, feature string) (bool, error) {
	if err := ai.DecodeJSON(text, out); err != nil {
		if strict {
			return false, fmt.Errorf("%w: %w", ErrInvalidAIResponse, err)
		}
		util.LoggerFromContext(ctx).Warn("model returned invalid JSON", "feature", feature, "err", err)
		return false, nil
	}
	return true, nil
}

// GenerateSummary returns a markdown summary of the source.
func (a *App) GenerateSummary(ctx context.Context, user domain.User, src Source) (string, error) {
	text, err := a.resolveSource(ctx, user, src)
	if err != nil {
		return "", err
	}
	summary, err := a.generate(ctx, summaryPrompt(text), summaryOptions)
	if err != nil {
		return "", err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return noSummaryFallback, nil
	}
	return summary, nil
}

// SaveNote stores a summary as a note. Notes cannot be edited afterwards.
func (a *App) SaveNote(ctx context.Context, user domain.User, summary string) (domain.Note, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return domain.Note{}, invalidf("summary required")
	}
	note := domain.Note{
		ID:        util.NewUUID(),
		UserID:    user.ID,
		Summary:   summary,
		CreatedAt: a.clock(),
	}
	if err := a.store.SaveNote(ctx, note); err != nil {
		return domain.Note{}, storeErr("save note", err)
	}
	return note, nil
}

func (a *App) ListNotes(ctx context.Context, user domain.User) ([]domain.Note, error) {
	notes, err := a.store.ListNotes(ctx, user.ID)
	if err != nil {
		return nil, storeErr("list notes", err)
	}
	return notes, nil
}

func (a *App) GetNote(ctx context.Context, user domain.User, id string) (domain.Note, error) {
	note, ok, err := a.store.GetNote(ctx, user.ID, id)
	if err != nil {
		return domain.Note{}, storeErr("get note", err)
	}
	if !ok {
		return domain.Note{}, ErrNotFound
	}
	return note, nil
}

func (a *App) DeleteNote(ctx context.Context, user domain.User, id string) error {
	if err := a.store.DeleteNote(ctx, user.ID, id); err != nil {
		return storeErr("delete note", err)
	}
	return nil
}

// GenerateFlashcards asks the model for count question/answer pairs. A zero
// count uses the configured default.
func (a *App) GenerateFlashcards(ctx context.Context, user domain.User, src Source, count int, strict bool) ([]domain.Flashcard, error) {
	if count < 0 {
		return nil, invalidf("count must be positive")
	}
	if count == 0 {
		count = a.flashcardCount
	}
	count = min(count, maxFlashcardCount)
	text, err := a.resolveSource(ctx, user, src)
	if err != nil {
		return nil, err
	}
	raw, err := a.generate(ctx, flashcardPrompt(text, count), flashcardOptions)
	if err != nil {
		return nil, err
	}
	var parsed []domain.Flashcard
	if ok, err := decodeModelJSON(ctx, raw, &parsed, strict, "flashcards"); !ok {
		return []domain.Flashcard{}, err
	}
	cards := make([]domain.Flashcard, 0, len(parsed))
	for _, c := range parsed {
		c.Question = strings.TrimSpace(c.Question)
		c.Answer = strings.TrimSpace(c.Answer)
		if c.Question == "" || c.Answer == "" {
			continue
		}
		cards = append(cards, c)
		if len(cards) == count {
			break
		}
	}
	return cards, nil
}

// SaveFlashcardSet stores a whole set. Cards cannot be edited individually.
func (a *App) SaveFlashcardSet(ctx context.Context, user domain.User, title string, cards []domain.Flashcard) (domain.FlashcardSet, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.FlashcardSet{}, invalidf("title required")
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		return domain.FlashcardSet{}, invalidf("title must be at most %d characters", maxTitleRunes)
	}
	if len(cards) == 0 {
		return domain.FlashcardSet{}, invalidf("at least one flashcard required")
	}
	clean := make([]domain.Flashcard, len(cards))
	for i, c := range cards {
		c.Question = strings.TrimSpace(c.Question)
		c.Answer = strings.TrimSpace(c.Answer)
		if c.Question == "" || c.Answer == "" {
			return domain.FlashcardSet{}, invalidf("flashcard %d needs a question and an answer", i+1)
		}
		clean[i] = c
	}
	set := domain.FlashcardSet{
		ID:        util.NewUUID(),
		UserID:    user.ID,
		Title:     title,
		Cards:     clean,
		CreatedAt: a.clock(),
	}
	if err := a.store.SaveFlashcardSet(ctx, set); err != nil {
		return domain.FlashcardSet{}, storeErr("save flashcards", err)
	}
	return set, nil
}

func (a *App) ListFlashcardSets(ctx context.Context, user domain.User) ([]domain.FlashcardSet, error) {
	sets, err := a.store.ListFlashcardSets(ctx, user.ID)
	if err != nil {
		return nil, storeErr("list flashcards", err)
	}
	return sets, nil
}

func (a *App) GetFlashcardSet(ctx context.Context, user domain.User, id string) (domain.FlashcardSet, error) {
	set, ok, err := a.store.GetFlashcardSet(ctx, user.ID, id)
	if err != nil {
		return domain.FlashcardSet{}, storeErr("get flashcards", err)
	}
	if !ok {
		return domain.FlashcardSet{}, ErrNotFound
	}
	return set, nil
}

func (a *App) DeleteFlashcardSet(ctx context.Context, user domain.User, id string) error {
	if err := a.store.DeleteFlashcardSet(ctx, user.ID, id); err != nil {
		return storeErr("delete flashcards", err)
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
