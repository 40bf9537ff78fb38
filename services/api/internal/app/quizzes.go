package app

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"

	"studycompanion/internal/util"
	"studycompanion/pkg/domain"
)

const (
	defaultQuizTitle     = "Untitled Quiz"
	defaultQuizTopic     = "General"
	defaultQuestionCount = 10
	maxQuestionCount     = 100
)

// flexInt accepts both 12 and "12"; models are inconsistent about quoting.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = flexInt(f)
	return nil
}

type modelQuizInfo struct {
	Title        string  `json:"title"`
	Topic        string  `json:"topic"`
	NumQuestions flexInt `json:"num_questions"`
	Difficulty   string  `json:"difficulty"`
}

type modelQuestion struct {
	Question      string            `json:"question"`
	Options       map[string]string `json:"options"`
	CorrectOption string            `json:"correct_option"`
}

// QuizDraft carries what the caller wants saved.
type QuizDraft struct {
	Title      string            `json:"title"`
	Topic      string            `json:"topic"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Questions  []domain.Question `json:"questions"`
}

func clampQuestions(n int) int {
	switch {
	case n <= 0:
		return defaultQuestionCount
	case n > maxQuestionCount:
		return maxQuestionCount
	}
	return n
}

func parseDifficulty(s string) domain.Difficulty {
	for _, d := range []domain.Difficulty{
		domain.DifficultyBeginner,
		domain.DifficultyIntermediate,
		domain.DifficultyAdvanced,
		domain.DifficultyExpert,
	} {
		if strings.EqualFold(strings.TrimSpace(s), string(d)) {
			return d
		}
	}
	return domain.DifficultyBeginner
}

// normalizeQuizInfo fills defaults and clamps the question count.
func normalizeQuizInfo(info domain.QuizInfo) domain.QuizInfo {
	info.Title = truncateRunes(strings.TrimSpace(info.Title), maxTitleRunes)
	if info.Title == "" {
		info.Title = defaultQuizTitle
	}
	info.Topic = truncateRunes(strings.TrimSpace(info.Topic), maxTitleRunes)
	if info.Topic == "" {
		info.Topic = defaultQuizTopic
	}
	info.NumQuestions = clampQuestions(info.NumQuestions)
	info.Difficulty = parseDifficulty(string(info.Difficulty))
	return info
}

// GenerateQuizInfo proposes a title and topic. Difficulty and question count
// chosen by the caller win over what the model suggests.
func (a *App) GenerateQuizInfo(ctx context.Context, user domain.User, src Source, difficulty domain.Difficulty, numQuestions int) (domain.QuizInfo, error) {
	if numQuestions < 0 || numQuestions > maxQuestionCount {
		return domain.QuizInfo{}, invalidf("numQuestions must be between 1 and %d", maxQuestionCount)
	}
	if difficulty != "" && !difficulty.Valid() {
		return domain.QuizInfo{}, invalidf("unknown difficulty %q", difficulty)
	}
	text, err := a.resolveSource(ctx, user, src)
	if err != nil {
		return domain.QuizInfo{}, err
	}
	requestedDifficulty := difficulty
	if requestedDifficulty == "" {
		requestedDifficulty = domain.DifficultyBeginner
	}
	raw, err := a.generate(ctx, quizInfoPrompt(text, requestedDifficulty, clampQuestions(numQuestions)), quizInfoOptions)
	if err != nil {
		return domain.QuizInfo{}, err
	}
	var parsed modelQuizInfo
	ok, err := decodeModelJSON(ctx, raw, &parsed, false, "quiz_info")
	if err != nil {
		return domain.QuizInfo{}, err
	}
	if !ok {
		// A rejected reply may be half decoded; use the defaults instead.
		parsed = modelQuizInfo{}
	}
	info := domain.QuizInfo{
		Title:        parsed.Title,
		Topic:        parsed.Topic,
		NumQuestions: int(parsed.NumQuestions),
		Difficulty:   domain.Difficulty(parsed.Difficulty),
	}
	if numQuestions > 0 {
		info.NumQuestions = numQuestions
	}
	if difficulty != "" {
		info.Difficulty = difficulty
	}
	return normalizeQuizInfo(info), nil
}

// GenerateQuiz asks the model for questions matching info. Questions without
// four options or a valid answer letter are dropped.
func (a *App) GenerateQuiz(ctx context.Context, user domain.User, src Source, info domain.QuizInfo, strict bool) ([]domain.Question, error) {
	if info.NumQuestions < 0 || info.NumQuestions > maxQuestionCount {
		return nil, invalidf("numQuestions must be between 1 and %d", maxQuestionCount)
	}
	info = normalizeQuizInfo(info)
	text, err := a.resolveSource(ctx, user, src)
	if err != nil {
		return nil, err
	}
	raw, err := a.generate(ctx, quizPrompt(text, info), quizOptions)
	if err != nil {
		return nil, err
	}
	var parsed []modelQuestion
	if ok, err := decodeModelJSON(ctx, raw, &parsed, strict, "quiz"); !ok {
		return []domain.Question{}, err
	}
	questions := make([]domain.Question, 0, len(parsed))
	for _, mq := range parsed {
		q, ok := cleanQuestion(domain.Question{
			Question:      mq.Question,
			Options:       mq.Options,
			CorrectOption: mq.CorrectOption,
		})
		if !ok {
			continue
		}
		q.ID = util.NewUUID()
		q.Position = len(questions)
		questions = append(questions, q)
		if len(questions) == info.NumQuestions {
			break
		}
	}
	return questions, nil
}

// cleanQuestion trims text, uppercases option keys and checks that the four
// options and the answer letter are present.
func cleanQuestion(q domain.Question) (domain.Question, bool) {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return q, false
	}
	opts := make(map[string]string, len(domain.OptionLetters))
	for k, v := range q.Options {
		opts[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	for _, letter := range domain.OptionLetters {
		if opts[letter] == "" {
			return q, false
		}
	}
	if len(opts) != len(domain.OptionLetters) {
		return q, false
	}
	q.Options = opts
	q.CorrectOption = strings.ToUpper(strings.TrimSpace(q.CorrectOption))
	if !validLetter(q.CorrectOption) {
		return q, false
	}
	return q, true
}

func validLetter(s string) bool {
	for _, letter := range domain.OptionLetters {
		if s == letter {
			return true
		}
	}
	return false
}

// SaveQuiz persists the quiz and its questions in one transaction. Question
// ids are always reassigned so that a generated quiz can be saved twice.
func (a *App) SaveQuiz(ctx context.Context, user domain.User, draft QuizDraft) (domain.Quiz, error) {
	if len(draft.Questions) == 0 {
		return domain.Quiz{}, invalidf("at least one question required")
	}
	if len(draft.Questions) > maxQuestionCount {
		return domain.Quiz{}, invalidf("at most %d questions allowed", maxQuestionCount)
	}
	if draft.Difficulty != "" && !draft.Difficulty.Valid() {
		return domain.Quiz{}, invalidf("unknown difficulty %q", draft.Difficulty)
	}
	if utf8.RuneCountInString(strings.TrimSpace(draft.Title)) > maxTitleRunes {
		return domain.Quiz{}, invalidf("title must be at most %d characters", maxTitleRunes)
	}
	info := normalizeQuizInfo(domain.QuizInfo{
		Title:        draft.Title,
		Topic:        draft.Topic,
		NumQuestions: len(draft.Questions),
		Difficulty:   draft.Difficulty,
	})
	quiz := domain.Quiz{
		ID:            util.NewUUID(),
		UserID:        user.ID,
		Title:         info.Title,
		Topic:         info.Topic,
		Difficulty:    info.Difficulty,
		QuestionCount: len(draft.Questions),
		Questions:     make([]domain.Question, 0, len(draft.Questions)),
		CreatedAt:     a.clock(),
	}
	for i, q := range draft.Questions {
		clean, ok := cleanQuestion(q)
		if !ok {
			return domain.Quiz{}, invalidf("question %d needs text, options A-D and a correct option", i+1)
		}
		clean.ID = util.NewUUID()
		clean.QuizID = quiz.ID
		clean.Position = i
		quiz.Questions = append(quiz.Questions, clean)
	}
	if err := a.store.SaveQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, storeErr("save quiz", err)
	}
	return quiz, nil
}

func (a *App) ListQuizzes(ctx context.Context, user domain.User) ([]domain.Quiz, error) {
	quizzes, err := a.store.ListQuizzes(ctx, user.ID)
	if err != nil {
		return nil, storeErr("list quizzes", err)
	}
	return quizzes, nil
}

func (a *App) GetQuiz(ctx context.Context, user domain.User, id string) (domain.Quiz, error) {
	quiz, ok, err := a.store.GetQuiz(ctx, user.ID, id)
	if err != nil {
		return domain.Quiz{}, storeErr("get quiz", err)
	}
	if !ok {
		return domain.Quiz{}, ErrNotFound
	}
	return quiz, nil
}

func (a *App) DeleteQuiz(ctx context.Context, user domain.User, id string) error {
	if err := a.store.DeleteQuiz(ctx, user.ID, id); err != nil {
		return storeErr("delete quiz", err)
	}
	return nil
}

// SubmitAttempt scores answers (question id to option letter) against the
// stored quiz. Unanswered questions count as wrong.
func (a *App) SubmitAttempt(ctx context.Context, user domain.User, quizID string, answers map[string]string) (domain.QuizAttempt, error) {
	quiz, err := a.GetQuiz(ctx, user, quizID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	byID := make(map[string]domain.Question, len(quiz.Questions))
	for _, q := range quiz.Questions {
		byID[q.ID] = q
	}
	clean := make(map[string]string, len(answers))
	score := 0
	for qid, letter := range answers {
		q, ok := byID[qid]
		if !ok {
			return domain.QuizAttempt{}, invalidf("unknown question %q", qid)
		}
		letter = strings.ToUpper(strings.TrimSpace(letter))
		if !validLetter(letter) {
			return domain.QuizAttempt{}, invalidf("answer for %q must be one of A, B, C, D", qid)
		}
		clean[qid] = letter
		if letter == q.CorrectOption {
			score++
		}
	}
	attempt := domain.QuizAttempt{
		ID:        util.NewUUID(),
		QuizID:    quiz.ID,
		UserID:    user.ID,
		Answers:   clean,
		Score:     score,
		Total:     len(quiz.Questions),
		CreatedAt: a.clock(),
	}
	if err := a.store.SaveQuizAttempt(ctx, attempt); err != nil {
		return domain.QuizAttempt{}, storeErr("save attempt", err)
	}
	return attempt, nil
}

func (a *App) ListAttempts(ctx context.Context, user domain.User, quizID string) ([]domain.QuizAttempt, error) {
	if _, err := a.GetQuiz(ctx, user, quizID); err != nil {
		return nil, err
	}
	attempts, err := a.store.ListQuizAttempts(ctx, user.ID, quizID)
	if err != nil {
		return nil, storeErr("list attempts", err)
	}
	return attempts, nil
}

var _ json.Unmarshaler = (*flexInt)(nil)
