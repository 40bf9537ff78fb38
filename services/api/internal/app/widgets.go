package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
	_ "time/tzdata"
	"unicode/utf8"

	"studycompanion/internal/util"
	"studycompanion/pkg/domain"
	"studycompanion/pkg/pomodoro"
)

const (
	maxStickyTextRunes = 2000
	maxTodoTextRunes   = 500
	dayLayout          = "2006-01-02"
)

var stickyPalette = []domain.StickyColor{
	domain.StickyYellow,
	domain.StickyPink,
	domain.StickyBlue,
	domain.StickyGreen,
	domain.StickyPurple,
}

// Pomodoro.

func pomodoroErr(err error) error {
	if errors.Is(err, pomodoro.ErrInvalidMode) || errors.Is(err, pomodoro.ErrInvalidDuration) {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return fmt.Errorf("%w: pomodoro: %w", ErrStore, err)
}

func (a *App) PomodoroState(ctx context.Context, user domain.User) (pomodoro.State, error) {
	st, err := a.pomodoro.Get(ctx, user.ID)
	if err != nil {
		return pomodoro.State{}, pomodoroErr(err)
	}
	return st, nil
}

func (a *App) StartPomodoro(ctx context.Context, user domain.User) (pomodoro.State, error) {
	st, err := a.pomodoro.Start(ctx, user.ID)
	if err != nil {
		return pomodoro.State{}, pomodoroErr(err)
	}
	return st, nil
}

func (a *App) PausePomodoro(ctx context.Context, user domain.User) (pomodoro.State, error) {
	st, err := a.pomodoro.Pause(ctx, user.ID)
	if err != nil {
		return pomodoro.State{}, pomodoroErr(err)
	}
	return st, nil
}

func (a *App) ResetPomodoro(ctx context.Context, user domain.User) (pomodoro.State, error) {
	st, err := a.pomodoro.Reset(ctx, user.ID)
	if err != nil {
		return pomodoro.State{}, pomodoroErr(err)
	}
	return st, nil
}

func (a *App) SetPomodoroMode(ctx context.Context, user domain.User, mode pomodoro.Mode) (pomodoro.State, error) {
	st, err := a.pomodoro.SetMode(ctx, user.ID, mode)
	if err != nil {
		return pomodoro.State{}, pomodoroErr(err)
	}
	return st, nil
}

func (a *App) UpdatePomodoroDuration(ctx context.Context, user domain.User, mode pomodoro.Mode, minutes int) (pomodoro.State, error) {
	st, err := a.pomodoro.UpdateDuration(ctx, user.ID, mode, minutes)
	if err != nil {
		return pomodoro.State{}, pomodoroErr(err)
	}
	return st, nil
}

// Sticky notes.

// StickyPatch lists the fields to set; nil fields are left unchanged.
type StickyPatch struct {
	Text  *string             `json:"text"`
	Color *domain.StickyColor `json:"color"`
	X     *float64            `json:"x"`
	Y     *float64            `json:"y"`
}

func (p StickyPatch) apply(n domain.StickyNote) (domain.StickyNote, error) {
	if p.Text != nil {
		if utf8.RuneCountInString(*p.Text) > maxStickyTextRunes {
			return n, invalidf("text must be at most %d characters", maxStickyTextRunes)
		}
		n.Text = *p.Text
	}
	if p.Color != nil {
		if !p.Color.Valid() {
			return n, invalidf("unknown color %q", *p.Color)
		}
		n.Color = *p.Color
	}
	if p.X != nil {
		n.X = *p.X
	}
	if p.Y != nil {
		n.Y = *p.Y
	}
	return n, nil
}

// CreateStickyNote adds a note; a missing color is picked from the palette.
func (a *App) CreateStickyNote(ctx context.Context, user domain.User, p StickyPatch) (domain.StickyNote, error) {
	now := a.clock()
	note, err := p.apply(domain.StickyNote{
		ID:        util.NewUUID(),
		UserID:    user.ID,
		Color:     stickyPalette[rand.IntN(len(stickyPalette))],
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.StickyNote{}, err
	}
	if err := a.store.SaveStickyNote(ctx, note); err != nil {
		return domain.StickyNote{}, storeErr("save sticky note", err)
	}
	return note, nil
}

func (a *App) UpdateStickyNote(ctx context.Context, user domain.User, id string, p StickyPatch) (domain.StickyNote, error) {
	note, ok, err := a.store.GetStickyNote(ctx, user.ID, id)
	if err != nil {
		return domain.StickyNote{}, storeErr("get sticky note", err)
	}
	if !ok {
		return domain.StickyNote{}, ErrNotFound
	}
	if note, err = p.apply(note); err != nil {
		return domain.StickyNote{}, err
	}
	note.UpdatedAt = a.clock()
	if err := a.store.SaveStickyNote(ctx, note); err != nil {
		return domain.StickyNote{}, storeErr("save sticky note", err)
	}
	return note, nil
}

func (a *App) ListStickyNotes(ctx context.Context, user domain.User) ([]domain.StickyNote, error) {
	notes, err := a.store.ListStickyNotes(ctx, user.ID)
	if err != nil {
		return nil, storeErr("list sticky notes", err)
	}
	return notes, nil
}

func (a *App) DeleteStickyNote(ctx context.Context, user domain.User, id string) error {
	if err := a.store.DeleteStickyNote(ctx, user.ID, id); err != nil {
		return storeErr("delete sticky note", err)
	}
	return nil
}

// Todos.

// TodoPatch lists the fields to set; nil fields are left unchanged.
type TodoPatch struct {
	Text *string `json:"text"`
	Done *bool   `json:"done"`
}

// today formats the current date in the IANA zone tz (UTC when empty).
func (a *App) today(tz string) (string, error) {
	loc := time.UTC
	if tz = strings.TrimSpace(tz); tz != "" && tz != "UTC" {
		if tz == "Local" {
			return "", invalidf("unknown time zone %q", tz)
		}
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return "", invalidf("unknown time zone %q", tz)
		}
	}
	return a.now().In(loc).Format(dayLayout), nil
}

func cleanTodoText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", invalidf("text required")
	}
	if utf8.RuneCountInString(text) > maxTodoTextRunes {
		return "", invalidf("text must be at most %d characters", maxTodoTextRunes)
	}
	return text, nil
}

// ListTodos returns today's list. Todos from earlier days expire on read.
func (a *App) ListTodos(ctx context.Context, user domain.User, tz string) ([]domain.Todo, error) {
	day, err := a.today(tz)
	if err != nil {
		return nil, err
	}
	todos, err := a.store.ListTodos(ctx, user.ID, day)
	if err != nil {
		return nil, storeErr("list todos", err)
	}
	return todos, nil
}

func (a *App) CreateTodo(ctx context.Context, user domain.User, text, tz string) (domain.Todo, error) {
	text, err := cleanTodoText(text)
	if err != nil {
		return domain.Todo{}, err
	}
	day, err := a.today(tz)
	if err != nil {
		return domain.Todo{}, err
	}
	todo := domain.Todo{
		ID:        util.NewUUID(),
		UserID:    user.ID,
		Text:      text,
		Day:       day,
		CreatedAt: a.clock(),
	}
	if err := a.store.SaveTodo(ctx, todo); err != nil {
		return domain.Todo{}, storeErr("save todo", err)
	}
	return todo, nil
}

func (a *App) UpdateTodo(ctx context.Context, user domain.User, id string, p TodoPatch) (domain.Todo, error) {
	todo, ok, err := a.store.GetTodo(ctx, user.ID, id)
	if err != nil {
		return domain.Todo{}, storeErr("get todo", err)
	}
	if !ok {
		return domain.Todo{}, ErrNotFound
	}
	if p.Text != nil {
		if todo.Text, err = cleanTodoText(*p.Text); err != nil {
			return domain.Todo{}, err
		}
	}
	if p.Done != nil {
		todo.Done = *p.Done
	}
	if err := a.store.SaveTodo(ctx, todo); err != nil {
		return domain.Todo{}, storeErr("save todo", err)
	}
	return todo, nil
}

func (a *App) DeleteTodo(ctx context.Context, user domain.User, id string) error {
	if err := a.store.DeleteTodo(ctx, user.ID, id); err != nil {
		return storeErr("delete todo", err)
	}
	return nil
}
