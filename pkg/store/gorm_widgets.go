package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"studycompanion/pkg/domain"
)

// Sticky notes.

func (s *GormStore) SaveStickyNote(ctx context.Context, n domain.StickyNote) error {
	model := StickyNoteModel{
		ID:        n.ID,
		UserID:    n.UserID,
		Text:      n.Text,
		Color:     string(n.Color),
		X:         n.X,
		Y:         n.Y,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "color", "x", "y", "updated_at"}),
	}).Create(&model).Error
}

func (s *GormStore) ListStickyNotes(ctx context.Context, userID string) ([]domain.StickyNote, error) {
	var models []StickyNoteModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.StickyNote, 0, len(models))
	for _, m := range models {
		out = append(out, stickyNoteFromModel(m))
	}
	return out, nil
}

func (s *GormStore) GetStickyNote(ctx context.Context, userID, id string) (domain.StickyNote, bool, error) {
	var model StickyNoteModel
	ok, err := first(s.db.WithContext(ctx), &model, "id = ? AND user_id = ?", id, userID)
	if !ok || err != nil {
		return domain.StickyNote{}, false, err
	}
	return stickyNoteFromModel(model), true, nil
}

func (s *GormStore) DeleteStickyNote(ctx context.Context, userID, id string) error {
	return deleteOwned(s.db.WithContext(ctx), &StickyNoteModel{}, userID, id)
}

func stickyNoteFromModel(m StickyNoteModel) domain.StickyNote {
	return domain.StickyNote{
		ID:        m.ID,
		UserID:    m.UserID,
		Text:      m.Text,
		Color:     domain.StickyColor(m.Color),
		X:         m.X,
		Y:         m.Y,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// Todos.

func (s *GormStore) SaveTodo(ctx context.Context, t domain.Todo) error {
	model := TodoModel{
		ID:        t.ID,
		UserID:    t.UserID,
		Day:       t.Day,
		Text:      t.Text,
		Done:      t.Done,
		CreatedAt: t.CreatedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "done"}),
	}).Create(&model).Error
}

func (s *GormStore) ListTodos(ctx context.Context, userID, day string) ([]domain.Todo, error) {
	var models []TodoModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND day <> ?", userID, day).Delete(&TodoModel{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND day = ?", userID, day).Order("created_at ASC").Find(&models).Error
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Todo, 0, len(models))
	for _, m := range models {
		out = append(out, todoFromModel(m))
	}
	return out, nil
}

func (s *GormStore) GetTodo(ctx context.Context, userID, id string) (domain.Todo, bool, error) {
	var model TodoModel
	ok, err := first(s.db.WithContext(ctx), &model, "id = ? AND user_id = ?", id, userID)
	if !ok || err != nil {
		return domain.Todo{}, false, err
	}
	return todoFromModel(model), true, nil
}

func (s *GormStore) DeleteTodo(ctx context.Context, userID, id string) error {
	return deleteOwned(s.db.WithContext(ctx), &TodoModel{}, userID, id)
}

func todoFromModel(m TodoModel) domain.Todo {
	return domain.Todo{
		ID:        m.ID,
		UserID:    m.UserID,
		Text:      m.Text,
		Done:      m.Done,
		Day:       m.Day,
		CreatedAt: m.CreatedAt,
	}
}

var _ Store = (*GormStore)(nil)
