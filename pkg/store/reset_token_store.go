package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResetTokenStore keeps single-use password reset tokens.
type ResetTokenStore interface {
	SaveResetToken(ctx context.Context, token, userID string, ttl time.Duration) error
	// ConsumeResetToken returns the owner and deletes the token in one step.
	ConsumeResetToken(ctx context.Context, token string) (string, bool, error)
}

// RedisResetTokenStore stores sha256(token) -> user id with a TTL.
type RedisResetTokenStore struct {
	client redis.Cmdable
}

func NewRedisResetTokenStore(client redis.Cmdable) *RedisResetTokenStore {
	return &RedisResetTokenStore{client: client}
}

func (s *RedisResetTokenStore) SaveResetToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(userID) == "" {
		return errors.New("reset token and user id required")
	}
	return s.client.Set(ctx, resetTokenKey(hashToken(token)), userID, ttl).Err()
}

func (s *RedisResetTokenStore) ConsumeResetToken(ctx context.Context, token string) (string, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false, nil
	}
	userID, err := s.client.GetDel(ctx, resetTokenKey(hashToken(token))).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func resetTokenKey(hash string) string { return "password_reset:" + hash }
