package store

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func newTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func writeKeyFiles(t *testing.T, key *rsa.PrivateKey) (privPath, pubPath string) {
	t.Helper()
	dir := t.TempDir()
	privPath = filepath.Join(dir, "jwt.pem")
	pubPath = filepath.Join(dir, "jwt.pub.pem")
	priv := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	if err := os.WriteFile(privPath, priv, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pubPath, pub, 0o644); err != nil {
		t.Fatal(err)
	}
	return privPath, pubPath
}

func TestJWTSessionStoreRoundTrip(t *testing.T) {
	client, _ := newTestRedis(t)
	s := NewJWTSessionStoreWithKey(newTestKey(t), JWTConfig{KeyID: "k1", TTL: time.Minute}, NewRedisTokenRevoker(client))
	ctx := context.Background()

	sess, err := s.NewSession(ctx, "user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if sess.Token == "" || time.Until(sess.ExpiresAt) > time.Minute {
		t.Fatalf("unexpected session %+v", sess)
	}
	userID, err := s.Verify(ctx, sess.Token)
	if err != nil || userID != "user-1" {
		t.Fatalf("verify = %q, %v", userID, err)
	}

	keys := s.JWKS()
	if len(keys) != 1 || keys[0].Kid != "k1" || keys[0].Alg != "RS256" || keys[0].N == "" || keys[0].E == "" {
		t.Fatalf("unexpected jwks %+v", keys)
	}
}

func TestJWTSessionStoreRejects(t *testing.T) {
	key := newTestKey(t)
	ctx := context.Background()
	issuer := NewJWTSessionStoreWithKey(key, JWTConfig{Audience: "aud-a"}, nil)
	sess, err := issuer.NewSession(ctx, "user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	otherAudience := NewJWTSessionStoreWithKey(key, JWTConfig{Audience: "aud-b"}, nil)
	if _, err := otherAudience.Verify(ctx, sess.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("audience mismatch: %v", err)
	}
	otherKey := NewJWTSessionStoreWithKey(newTestKey(t), JWTConfig{Audience: "aud-a"}, nil)
	if _, err := otherKey.Verify(ctx, sess.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature: %v", err)
	}
	if _, err := issuer.Verify(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: %v", err)
	}

	later := time.Now().Add(time.Hour)
	issuer.now = func() time.Time { return later }
	if _, err := issuer.Verify(ctx, sess.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: %v", err)
	}
}

func TestJWTSessionStoreRevocation(t *testing.T) {
	client, _ := newTestRedis(t)
	s := NewJWTSessionStoreWithKey(newTestKey(t), JWTConfig{TTL: time.Minute}, NewRedisTokenRevoker(client))
	ctx := context.Background()

	first, _ := s.NewSession(ctx, "user-1")
	if err := s.DeleteSession(ctx, first.Token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := s.Verify(ctx, first.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("revoked jti: %v", err)
	}

	old := time.Now().Add(-10 * time.Second)
	s.now = func() time.Time { return old }
	second, _ := s.NewSession(ctx, "user-1")
	s.now = time.Now
	if err := s.RevokeUserSessions(ctx, "user-1", time.Now()); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if _, err := s.Verify(ctx, second.Token); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("user cutoff: %v", err)
	}
	fresh, _ := s.NewSession(ctx, "user-1")
	if _, err := s.Verify(ctx, fresh.Token); err != nil {
		t.Fatalf("token issued after cutoff should pass: %v", err)
	}
}

func TestNewJWTSessionStoreLoadsRotatedKeys(t *testing.T) {
	oldKey, newKey := newTestKey(t), newTestKey(t)
	_, oldPub := writeKeyFiles(t, oldKey)
	newPriv, _ := writeKeyFiles(t, newKey)
	ctx := context.Background()

	oldToken, _ := NewJWTSessionStoreWithKey(oldKey, JWTConfig{KeyID: "old"}, nil).NewSession(ctx, "user-2")

	s, err := NewJWTSessionStore(JWTConfig{
		PrivateKeyPath: newPriv,
		KeyID:          "new",
		VerifyKeyFiles: map[string]string{"old": oldPub},
	}, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if userID, err := s.Verify(ctx, oldToken.Token); err != nil || userID != "user-2" {
		t.Fatalf("verify with rotated key = %q, %v", userID, err)
	}
	if got := len(s.JWKS()); got != 2 {
		t.Fatalf("jwks entries = %d, want 2", got)
	}
}

func TestRedisTokenRevokerKeepsLatestCutoff(t *testing.T) {
	client, _ := newTestRedis(t)
	r := NewRedisTokenRevoker(client)
	ctx := context.Background()
	first := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := r.RevokeUser(ctx, "u", first, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := r.RevokeUser(ctx, "u", first.Add(-time.Minute), time.Hour); err != nil {
		t.Fatal(err)
	}
	got, err := r.RevokedBefore(ctx, "u")
	if err != nil || !got.Equal(first) {
		t.Fatalf("cutoff = %v, %v; want %v", got, err, first)
	}
	if err := r.RevokeUser(ctx, "u", first.Add(time.Minute), time.Hour); err != nil {
		t.Fatal(err)
	}
	if got, _ := r.RevokedBefore(ctx, "u"); !got.Equal(first.Add(time.Minute)) {
		t.Fatalf("cutoff = %v, want later one", got)
	}
	if got, _ := r.RevokedBefore(ctx, "nobody"); !got.IsZero() {
		t.Fatalf("unknown user cutoff = %v", got)
	}
}
