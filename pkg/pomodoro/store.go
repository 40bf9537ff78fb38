package pomodoro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const maxUpdateRetries = 5

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Store persists one State per user. Update applies fn atomically with
// respect to concurrent updates of the same user.
type Store interface {
	Load(ctx context.Context, userID string) (State, bool, error)
	Update(ctx context.Context, userID string, fn func(State) (State, error)) (State, error)
}

// RedisStore keeps each state as JSON under pomodoro:{userID}.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "pomodoro"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":" + userID
}

func (s *RedisStore) Load(ctx context.Context, userID string) (State, bool, error) {
	return s.load(ctx, s.client, userID)
}

func (s *RedisStore) load(ctx context.Context, c getter, userID string) (State, bool, error) {
	raw, err := c.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultState(), false, nil
	}
	if err != nil {
		return State{}, false, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return DefaultState(), false, nil
	}
	return st.normalize(), true, nil
}

// Update runs fn inside WATCH/MULTI and retries when another writer won.
func (s *RedisStore) Update(ctx context.Context, userID string, fn func(State) (State, error)) (State, error) {
	key := s.key(userID)
	var out State
	txf := func(tx *redis.Tx) error {
		current, _, err := s.load(ctx, tx, userID)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		if err == nil {
			out = next
		}
		return err
	}
	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return State{}, fmt.Errorf("pomodoro update for %s: too much contention", userID)
}
