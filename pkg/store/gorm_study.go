package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"studycompanion/pkg/domain"
)

// Notes.

func (s *GormStore) SaveNote(ctx context.Context, n domain.Note) error {
	model := NoteModel{ID: n.ID, UserID: n.UserID, Summary: n.Summary, CreatedAt: n.CreatedAt}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) ListNotes(ctx context.Context, userID string) ([]domain.Note, error) {
	var models []NoteModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Note, 0, len(models))
	for _, m := range models {
		out = append(out, noteFromModel(m))
	}
	return out, nil
}

func (s *GormStore) GetNote(ctx context.Context, userID, id string) (domain.Note, bool, error) {
	var model NoteModel
	ok, err := first(s.db.WithContext(ctx), &model, "id = ? AND user_id = ?", id, userID)
	if !ok || err != nil {
		return domain.Note{}, false, err
	}
	return noteFromModel(model), true, nil
}

func (s *GormStore) DeleteNote(ctx context.Context, userID, id string) error {
	return deleteOwned(s.db.WithContext(ctx), &NoteModel{}, userID, id)
}

func noteFromModel(m NoteModel) domain.Note {
	return domain.Note{ID: m.ID, UserID: m.UserID, Summary: m.Summary, CreatedAt: m.CreatedAt}
}

// Flashcard sets.

func (s *GormStore) SaveFlashcardSet(ctx context.Context, set domain.FlashcardSet) error {
	cards, err := encodeJSON(set.Cards)
	if err != nil {
		return fmt.Errorf("encode cards: %w", err)
	}
	model := FlashcardSetModel{ID: set.ID, UserID: set.UserID, Title: set.Title, Cards: cards, CreatedAt: set.CreatedAt}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) ListFlashcardSets(ctx context.Context, userID string) ([]domain.FlashcardSet, error) {
	var models []FlashcardSetModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.FlashcardSet, 0, len(models))
	for _, m := range models {
		out = append(out, flashcardSetFromModel(m))
	}
	return out, nil
}

func (s *GormStore) GetFlashcardSet(ctx context.Context, userID, id string) (domain.FlashcardSet, bool, error) {
	var model FlashcardSetModel
	ok, err := first(s.db.WithContext(ctx), &model, "id = ? AND user_id = ?", id, userID)
	if !ok || err != nil {
		return domain.FlashcardSet{}, false, err
	}
	return flashcardSetFromModel(model), true, nil
}

func (s *GormStore) DeleteFlashcardSet(ctx context.Context, userID, id string) error {
	return deleteOwned(s.db.WithContext(ctx), &FlashcardSetModel{}, userID, id)
}

func flashcardSetFromModel(m FlashcardSetModel) domain.FlashcardSet {
	cards := decodeJSON[[]domain.Flashcard](m.Cards)
	if cards == nil {
		cards = []domain.Flashcard{}
	}
	return domain.FlashcardSet{ID: m.ID, UserID: m.UserID, Title: m.Title, Cards: cards, CreatedAt: m.CreatedAt}
}

// Quizzes.

func (s *GormStore) SaveQuiz(ctx context.Context, q domain.Quiz) error {
	quiz := QuizModel{
		ID:            q.ID,
		UserID:        q.UserID,
		Title:         q.Title,
		Topic:         q.Topic,
		Difficulty:    string(q.Difficulty),
		QuestionCount: len(q.Questions),
		CreatedAt:     q.CreatedAt,
	}
	questions := make([]QuestionModel, 0, len(q.Questions))
	for i, question := range q.Questions {
		options, err := encodeJSON(question.Options)
		if err != nil {
			return fmt.Errorf("encode options: %w", err)
		}
		questions = append(questions, QuestionModel{
			ID:            question.ID,
			QuizID:        q.ID,
			Position:      i,
			Question:      question.Question,
			Options:       options,
			CorrectOption: question.CorrectOption,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&quiz).Error; err != nil {
			return err
		}
		if len(questions) == 0 {
			return nil
		}
		return tx.CreateInBatches(&questions, 100).Error
	})
}

func (s *GormStore) ListQuizzes(ctx context.Context, userID string) ([]domain.Quiz, error) {
	var models []QuizModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Quiz, 0, len(models))
	for _, m := range models {
		out = append(out, quizFromModel(m))
	}
	return out, nil
}

func (s *GormStore) GetQuiz(ctx context.Context, userID, id string) (domain.Quiz, bool, error) {
	db := s.db.WithContext(ctx)
	var model QuizModel
	ok, err := first(db, &model, "id = ? AND user_id = ?", id, userID)
	if !ok || err != nil {
		return domain.Quiz{}, false, err
	}
	var questions []QuestionModel
	if err := db.Where("quiz_id = ?", id).Order("position ASC").Find(&questions).Error; err != nil {
		return domain.Quiz{}, false, err
	}
	quiz := quizFromModel(model)
	quiz.Questions = make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:            q.ID,
			QuizID:        q.QuizID,
			Position:      q.Position,
			Question:      q.Question,
			Options:       decodeJSON[map[string]string](q.Options),
			CorrectOption: q.CorrectOption,
		})
	}
	return quiz, true, nil
}

func (s *GormStore) DeleteQuiz(ctx context.Context, userID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteOwned(tx, &QuizModel{}, userID, id); err != nil {
			return err
		}
		if err := tx.Where("quiz_id = ?", id).Delete(&QuestionModel{}).Error; err != nil {
			return err
		}
		return tx.Where("quiz_id = ?", id).Delete(&QuizAttemptModel{}).Error
	})
}

func (s *GormStore) SaveQuizAttempt(ctx context.Context, a domain.QuizAttempt) error {
	answers, err := encodeJSON(a.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	model := QuizAttemptModel{
		ID:        a.ID,
		QuizID:    a.QuizID,
		UserID:    a.UserID,
		Answers:   answers,
		Score:     a.Score,
		Total:     a.Total,
		CreatedAt: a.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) ListQuizAttempts(ctx context.Context, userID, quizID string) ([]domain.QuizAttempt, error) {
	var models []QuizAttemptModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.QuizAttempt, 0, len(models))
	for _, m := range models {
		out = append(out, domain.QuizAttempt{
			ID:        m.ID,
			QuizID:    m.QuizID,
			UserID:    m.UserID,
			Answers:   decodeJSON[map[string]string](m.Answers),
			Score:     m.Score,
			Total:     m.Total,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

func quizFromModel(m QuizModel) domain.Quiz {
	return domain.Quiz{
		ID:            m.ID,
		UserID:        m.UserID,
		Title:         m.Title,
		Topic:         m.Topic,
		Difficulty:    domain.Difficulty(m.Difficulty),
		QuestionCount: m.QuestionCount,
		CreatedAt:     m.CreatedAt,
	}
}

// Chats.

func (s *GormStore) UpsertChat(ctx context.Context, c domain.Chat) (domain.Chat, error) {
	messages, err := encodeJSON(c.Messages)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("encode messages: %w", err)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing ChatModel
		ok, err := first(tx, &existing, "id = ?", c.ID)
		if err != nil {
			return err
		}
		if !ok {
			return tx.Create(&ChatModel{
				ID:        c.ID,
				UserID:    c.UserID,
				Title:     c.Title,
				Messages:  messages,
				CreatedAt: c.CreatedAt,
				UpdatedAt: c.UpdatedAt,
			}).Error
		}
		if existing.UserID != c.UserID {
			return ErrNotFound
		}
		c.CreatedAt = existing.CreatedAt
		return tx.Model(&ChatModel{}).Where("id = ?", c.ID).Updates(map[string]any{
			"title":      c.Title,
			"messages":   messages,
			"updated_at": c.UpdatedAt,
		}).Error
	})
	if err != nil {
		return domain.Chat{}, err
	}
	return c, nil
}

func (s *GormStore) ListChats(ctx context.Context, userID string) ([]domain.Chat, error) {
	var models []ChatModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Chat, 0, len(models))
	for _, m := range models {
		out = append(out, chatFromModel(m))
	}
	return out, nil
}

func (s *GormStore) GetChat(ctx context.Context, userID, id string) (domain.Chat, bool, error) {
	var model ChatModel
	ok, err := first(s.db.WithContext(ctx), &model, "id = ? AND user_id = ?", id, userID)
	if !ok || err != nil {
		return domain.Chat{}, false, err
	}
	return chatFromModel(model), true, nil
}

func (s *GormStore) DeleteChat(ctx context.Context, userID, id string) error {
	return deleteOwned(s.db.WithContext(ctx), &ChatModel{}, userID, id)
}

func chatFromModel(m ChatModel) domain.Chat {
	messages := decodeJSON[[]domain.ChatMessage](m.Messages)
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	return domain.Chat{
		ID:        m.ID,
		UserID:    m.UserID,
		Title:     m.Title,
		Messages:  messages,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
