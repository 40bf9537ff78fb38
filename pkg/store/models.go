package store

import (
	"time"

	"gorm.io/datatypes"
)

type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Username     string
	PasswordHash string    `gorm:"not null"`
	Status       string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

type NoteModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Summary   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (NoteModel) TableName() string { return "notes" }

type FlashcardSetModel struct {
	ID        string         `gorm:"primaryKey"`
	UserID    string         `gorm:"not null;index"`
	Title     string         `gorm:"not null"`
	Cards     datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null;index"`
}

func (FlashcardSetModel) TableName() string { return "flashcards" }

type QuizModel struct {
	ID            string `gorm:"primaryKey"`
	UserID        string `gorm:"not null;index"`
	Title         string `gorm:"not null"`
	Topic         string
	Difficulty    string    `gorm:"not null"`
	QuestionCount int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null;index"`
}

func (QuizModel) TableName() string { return "quizzes" }

type QuestionModel struct {
	ID            string         `gorm:"primaryKey"`
	QuizID        string         `gorm:"not null;index"`
	Position      int            `gorm:"not null"`
	Question      string         `gorm:"type:text;not null"`
	Options       datatypes.JSON `gorm:"not null"`
	CorrectOption string         `gorm:"size:1;not null"`
}

func (QuestionModel) TableName() string { return "questions" }

type QuizAttemptModel struct {
	ID        string         `gorm:"primaryKey"`
	QuizID    string         `gorm:"not null;index"`
	UserID    string         `gorm:"not null;index"`
	Answers   datatypes.JSON `gorm:"not null"`
	Score     int            `gorm:"not null"`
	Total     int            `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
}

func (QuizAttemptModel) TableName() string { return "quiz_attempts" }

type ChatModel struct {
	ID        string         `gorm:"primaryKey"`
	UserID    string         `gorm:"not null;index"`
	Title     string         `gorm:"not null"`
	Messages  datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null;index"`
}

func (ChatModel) TableName() string { return "chats" }

type DocumentModel struct {
	ID               string `gorm:"primaryKey"`
	UserID           string `gorm:"not null;index"`
	Title            string `gorm:"not null"`
	OriginalFilename string `gorm:"not null"`
	StorageKey       string `gorm:"not null"`
	ContentType      string
	SizeBytes        int64  `gorm:"not null"`
	Status           string `gorm:"not null"`
	ErrorMessage     string
	Text             string    `gorm:"type:text"`
	CreatedAt        time.Time `gorm:"not null;index"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (DocumentModel) TableName() string { return "documents" }

type StickyNoteModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Text      string `gorm:"type:text"`
	Color     string `gorm:"not null"`
	X         float64
	Y         float64
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (StickyNoteModel) TableName() string { return "sticky_notes" }

type TodoModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index:idx_todos_user_day"`
	Day       string    `gorm:"size:10;not null;index:idx_todos_user_day"`
	Text      string    `gorm:"not null"`
	Done      bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (TodoModel) TableName() string { return "todos" }

func allModels() []any {
	return []any{
		&UserModel{}, &NoteModel{}, &FlashcardSetModel{}, &QuizModel{}, &QuestionModel{},
		&QuizAttemptModel{}, &ChatModel{}, &DocumentModel{}, &StickyNoteModel{}, &TodoModel{},
	}
}
