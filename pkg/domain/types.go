package domain

import "time"

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Note is a saved AI summary. Notes are immutable once written.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}

type Flashcard struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FlashcardSet is stored and deleted as a whole; cards keep generation order.
type FlashcardSet struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Title     string      `json:"title"`
	Cards     []Flashcard `json:"cards"`
	CreatedAt time.Time   `json:"createdAt"`
}

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "Beginner"
	DifficultyIntermediate Difficulty = "Intermediate"
	DifficultyAdvanced     Difficulty = "Advanced"
	DifficultyExpert       Difficulty = "Expert"
)

// Valid reports whether d is one of the four known levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced, DifficultyExpert:
		return true
	}
	return false
}

// OptionLetters are the keys of Question.Options in display order.
var OptionLetters = []string{"A", "B", "C", "D"}

type Question struct {
	ID            string            `json:"id"`
	QuizID        string            `json:"quizId,omitempty"`
	Position      int               `json:"position"`
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectOption string            `json:"correct_option"`
}

type Quiz struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	Title         string     `json:"title"`
	Topic         string     `json:"topic"`
	Difficulty    Difficulty `json:"difficulty"`
	QuestionCount int        `json:"questionCount"`
	Questions     []Question `json:"questions,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// QuizInfo is the metadata the model proposes before questions are generated.
type QuizInfo struct {
	Title        string     `json:"title"`
	Topic        string     `json:"topic"`
	NumQuestions int        `json:"num_questions"`
	Difficulty   Difficulty `json:"difficulty"`
}

type QuizAttempt struct {
	ID        string            `json:"id"`
	QuizID    string            `json:"quizId"`
	UserID    string            `json:"userId"`
	Answers   map[string]string `json:"answers"`
	Score     int               `json:"score"`
	Total     int               `json:"total"`
	CreatedAt time.Time         `json:"createdAt"`
}

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}

type Chat struct {
	ID        string        `json:"id"`
	UserID    string        `json:"userId"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type DocumentStatus string

const (
	DocumentQueued     DocumentStatus = "queued"
	DocumentProcessing DocumentStatus = "processing"
	DocumentReady      DocumentStatus = "ready"
	DocumentFailed     DocumentStatus = "failed"
)

// Document is an uploaded study file and, once processed, its plain text.
type Document struct {
	ID               string         `json:"id"`
	UserID           string         `json:"userId"`
	Title            string         `json:"title"`
	OriginalFilename string         `json:"originalFilename"`
	StorageKey       string         `json:"-"`
	ContentType      string         `json:"contentType"`
	SizeBytes        int64          `json:"sizeBytes"`
	Status           DocumentStatus `json:"status"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	Text             string         `json:"text,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

type StickyColor string

const (
	StickyYellow StickyColor = "yellow"
	StickyPink   StickyColor = "pink"
	StickyBlue   StickyColor = "blue"
	StickyGreen  StickyColor = "green"
	StickyPurple StickyColor = "purple"
)

// Valid reports whether c is one of the palette colors.
func (c StickyColor) Valid() bool {
	switch c {
	case StickyYellow, StickyPink, StickyBlue, StickyGreen, StickyPurple:
		return true
	}
	return false
}

type StickyNote struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	Text      string      `json:"text"`
	Color     StickyColor `json:"color"`
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Todo belongs to a single calendar day (YYYY-MM-DD in the owner's timezone).
type Todo struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Text      string    `json:"text"`
	Done      bool      `json:"done"`
	Day       string    `json:"day"`
	CreatedAt time.Time `json:"createdAt"`
}
