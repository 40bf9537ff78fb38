package store

import (
	"context"
	"testing"
	"time"
)

func TestRedisResetTokenStoreSingleUse(t *testing.T) {
	client, mr := newTestRedis(t)
	s := NewRedisResetTokenStore(client)
	ctx := context.Background()

	if err := s.SaveResetToken(ctx, "tok-1", "user-1", time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if mr.Exists("password_reset:tok-1") {
		t.Fatal("token stored in clear text")
	}
	userID, ok, err := s.ConsumeResetToken(ctx, "tok-1")
	if err != nil || !ok || userID != "user-1" {
		t.Fatalf("consume = %q %v %v", userID, ok, err)
	}
	if _, ok, _ := s.ConsumeResetToken(ctx, "tok-1"); ok {
		t.Fatal("token consumed twice")
	}
}

func TestRedisResetTokenStoreExpires(t *testing.T) {
	client, mr := newTestRedis(t)
	s := NewRedisResetTokenStore(client)
	ctx := context.Background()

	if err := s.SaveResetToken(ctx, "tok-2", "user-2", time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, ok, _ := s.ConsumeResetToken(ctx, "tok-2"); ok {
		t.Fatal("expired token accepted")
	}
}
