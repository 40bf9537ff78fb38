package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenReplay means an already rotated token was presented again;
	// the whole token family is revoked when this happens.
	ErrRefreshTokenReplay = errors.New("refresh token replay detected")
)

// RefreshTokenStore issues opaque refresh tokens grouped in rotation families.
type RefreshTokenStore interface {
	NewToken(ctx context.Context, userID string, ttl time.Duration) (string, error)
	RotateToken(ctx context.Context, token string, ttl time.Duration) (userID, next string, err error)
	DeleteToken(ctx context.Context, token string) error
	TokenOwner(ctx context.Context, token string) (userID string, ok bool, err error)
	RevokeUserTokens(ctx context.Context, userID string) error
}

// KEYS: family hash, next token key
// ARGV: presented hash, next hash, ttl ms, family id
var rotateRefreshScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "current")
local user = redis.call("HGET", KEYS[1], "user")
if not current or not user then
  return {"invalid", ""}
end
if current ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  return {"replay", user}
end
redis.call("HSET", KEYS[1], "current", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
redis.call("SET", KEYS[2], ARGV[4], "PX", ARGV[3])
return {"ok", user}
`)

// RedisRefreshTokenStore keeps only token hashes in Redis. Rotated tokens keep
// pointing at their family until they expire so that reuse is detectable.
type RedisRefreshTokenStore struct {
	client redis.Cmdable
}

// NewRedisRefreshTokenStore builds the store on an existing client.
func NewRedisRefreshTokenStore(client redis.Cmdable) *RedisRefreshTokenStore {
	return &RedisRefreshTokenStore{client: client}
}

func (s *RedisRefreshTokenStore) NewToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token, err := randomHex(32)
	if err != nil {
		return "", err
	}
	familyID, err := randomHex(16)
	if err != nil {
		return "", err
	}
	hash := hashToken(token)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, refreshFamilyKey(familyID), "user", userID, "current", hash)
	pipe.PExpire(ctx, refreshFamilyKey(familyID), ttl)
	pipe.Set(ctx, refreshTokenKey(hash), familyID, ttl)
	pipe.SAdd(ctx, refreshUserKey(userID), familyID)
	pipe.PExpire(ctx, refreshUserKey(userID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisRefreshTokenStore) RotateToken(ctx context.Context, token string, ttl time.Duration) (string, string, error) {
	hash := hashToken(token)
	familyID, err := s.client.Get(ctx, refreshTokenKey(hash)).Result()
	if errors.Is(err, redis.Nil) {
		return "", "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", "", err
	}
	next, err := randomHex(32)
	if err != nil {
		return "", "", err
	}
	nextHash := hashToken(next)
	res, err := rotateRefreshScript.Run(ctx, s.client,
		[]string{refreshFamilyKey(familyID), refreshTokenKey(nextHash)},
		hash, nextHash, ttl.Milliseconds(), familyID,
	).StringSlice()
	if err != nil {
		return "", "", err
	}
	switch res[0] {
	case "ok":
		if err := s.client.SAdd(ctx, refreshUserKey(res[1]), familyID).Err(); err != nil {
			return "", "", err
		}
		_ = s.client.PExpire(ctx, refreshUserKey(res[1]), ttl).Err()
		return res[1], next, nil
	case "replay":
		_ = s.client.SRem(ctx, refreshUserKey(res[1]), familyID).Err()
		return "", "", ErrRefreshTokenReplay
	default:
		return "", "", ErrInvalidRefreshToken
	}
}

// DeleteToken revokes the family token belongs to. Unknown tokens are ignored.
func (s *RedisRefreshTokenStore) DeleteToken(ctx context.Context, token string) error {
	familyID, err := s.client.Get(ctx, refreshTokenKey(hashToken(token))).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	user, err := s.client.HGet(ctx, refreshFamilyKey(familyID), "user").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, refreshFamilyKey(familyID))
	if user != "" {
		pipe.SRem(ctx, refreshUserKey(user), familyID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// TokenOwner resolves the user a live refresh token was issued to.
func (s *RedisRefreshTokenStore) TokenOwner(ctx context.Context, token string) (string, bool, error) {
	familyID, err := s.client.Get(ctx, refreshTokenKey(hashToken(token))).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	user, err := s.client.HGet(ctx, refreshFamilyKey(familyID), "user").Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return user, true, nil
}

func (s *RedisRefreshTokenStore) RevokeUserTokens(ctx context.Context, userID string) error {
	families, err := s.client.SMembers(ctx, refreshUserKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	keys := make([]string, 0, len(families)+1)
	for _, familyID := range families {
		keys = append(keys, refreshFamilyKey(familyID))
	}
	keys = append(keys, refreshUserKey(userID))
	return s.client.Del(ctx, keys...).Err()
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func refreshTokenKey(hash string) string      { return "refresh:token:" + hash }
func refreshFamilyKey(familyID string) string { return "refresh:family:" + familyID }
func refreshUserKey(userID string) string     { return "refresh:user:" + userID }
