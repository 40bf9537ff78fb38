package app

import (
	"context"
	"strings"
	"unicode/utf8"

	"studycompanion/internal/util"
	"studycompanion/pkg/domain"
)

const (
	chatFallbackReply = "I'm not sure how to respond."
	defaultChatTitle  = "New chat"
	chatTitleRunes    = 60
	maxChatReplyLines = 5
	maxChatInputRunes = 4000
	maxChatMessages   = 500
)

// ChatDraft is a chat as sent by the client. An empty ID creates a new chat.
type ChatDraft struct {
	ID       string               `json:"id"`
	Title    string               `json:"title"`
	Messages []domain.ChatMessage `json:"messages"`
}

// Ask returns a short plain-text reply to message.
func (a *App) Ask(ctx context.Context, user domain.User, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", invalidf("message required")
	}
	if utf8.RuneCountInString(message) > maxChatInputRunes {
		return "", invalidf("message must be at most %d characters", maxChatInputRunes)
	}
	reply, err := a.generate(ctx, chatPrompt(message), chatOptions)
	if err != nil {
		return "", err
	}
	reply = limitLines(reply, maxChatReplyLines)
	if reply == "" {
		return chatFallbackReply, nil
	}
	return reply, nil
}

// limitLines keeps the first n non-blank lines.
func limitLines(text string, n int) string {
	lines := make([]string, 0, n)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == n {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// SaveChat creates the chat or replaces its title and messages. Saving the
// same draft twice leaves a single chat.
func (a *App) SaveChat(ctx context.Context, user domain.User, draft ChatDraft) (domain.Chat, error) {
	id := strings.TrimSpace(draft.ID)
	if id == "" {
		id = util.NewUUID()
	} else if !util.IsUUID(id) {
		return domain.Chat{}, invalidf("invalid chat id")
	}
	if len(draft.Messages) == 0 {
		return domain.Chat{}, invalidf("at least one message required")
	}
	if len(draft.Messages) > maxChatMessages {
		return domain.Chat{}, invalidf("at most %d messages allowed", maxChatMessages)
	}
	messages := make([]domain.ChatMessage, len(draft.Messages))
	for i, m := range draft.Messages {
		if m.Role != domain.ChatRoleUser && m.Role != domain.ChatRoleAssistant {
			return domain.Chat{}, invalidf("message %d has unknown role %q", i+1, m.Role)
		}
		if strings.TrimSpace(m.Text) == "" {
			return domain.Chat{}, invalidf("message %d is empty", i+1)
		}
		messages[i] = m
	}
	now := a.clock()
	chat, err := a.store.UpsertChat(ctx, domain.Chat{
		ID:        id,
		UserID:    user.ID,
		Title:     chatTitle(draft.Title, messages),
		Messages:  messages,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Chat{}, storeErr("save chat", err)
	}
	return chat, nil
}

func chatTitle(title string, messages []domain.ChatMessage) string {
	if title = strings.TrimSpace(title); title != "" {
		return truncateRunes(title, maxTitleRunes)
	}
	for _, m := range messages {
		if m.Role != domain.ChatRoleUser {
			continue
		}
		if text := strings.Join(strings.Fields(m.Text), " "); text != "" {
			return truncateRunes(text, chatTitleRunes)
		}
	}
	return defaultChatTitle
}

func (a *App) ListChats(ctx context.Context, user domain.User) ([]domain.Chat, error) {
	chats, err := a.store.ListChats(ctx, user.ID)
	if err != nil {
		return nil, storeErr("list chats", err)
	}
	return chats, nil
}

func (a *App) GetChat(ctx context.Context, user domain.User, id string) (domain.Chat, error) {
	chat, ok, err := a.store.GetChat(ctx, user.ID, id)
	if err != nil {
		return domain.Chat{}, storeErr("get chat", err)
	}
	if !ok {
		return domain.Chat{}, ErrNotFound
	}
	return chat, nil
}

func (a *App) DeleteChat(ctx context.Context, user domain.User, id string) error {
	if err := a.store.DeleteChat(ctx, user.ID, id); err != nil {
		return storeErr("delete chat", err)
	}
	return nil
}
