package security

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestAlerter(t *testing.T) (*AuditAlerter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	alerter, err := NewAuditAlerter(client, "test:alerts")
	if err != nil {
		t.Fatalf("new alerter: %v", err)
	}
	return alerter, mr
}

func TestAuditAlerterObserveTriggers(t *testing.T) {
	alerter, _ := newTestAlerter(t)
	var last AlertResult
	for i := 0; i < 10; i++ {
		result, err := alerter.Observe(context.Background(), "auth.login", "fail", "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if i < 9 && result.Triggered {
			t.Fatalf("triggered early at %d", i+1)
		}
		last = result
	}
	if !last.Triggered || last.Count != 10 || last.Window != 5*time.Minute {
		t.Fatalf("expected alert threshold to trigger, got %+v", last)
	}

	other, err := alerter.Observe(context.Background(), "auth.login", "fail", "10.0.0.9")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if other.Triggered || other.Count != 1 {
		t.Fatalf("counters must be per address, got %+v", other)
	}
}

func TestAuditAlerterWindowExpires(t *testing.T) {
	alerter, mr := newTestAlerter(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alerter.now = func() time.Time { return now }
	for i := 0; i < 20; i++ {
		if _, err := alerter.Observe(context.Background(), "auth.login", "rate_limited", "127.0.0.1"); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}
	now = now.Add(time.Minute)
	mr.FastForward(time.Minute)
	result, err := alerter.Observe(context.Background(), "auth.login", "rate_limited", "127.0.0.1")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if result.Triggered || result.Count != 1 {
		t.Fatalf("expected fresh window, got %+v", result)
	}
}

func TestAuditAlerterIgnoresUnknownRule(t *testing.T) {
	alerter, _ := newTestAlerter(t)
	tests := []struct{ event, outcome string }{
		{"auth.login", "success"},
		{"auth.custom", "fail"},
	}
	for _, tt := range tests {
		result, err := alerter.Observe(context.Background(), tt.event, tt.outcome, "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if result.Triggered || result.Count != 0 {
			t.Fatalf("%s/%s: unexpected result %+v", tt.event, tt.outcome, result)
		}
	}
	var nilAlerter *AuditAlerter
	if _, err := nilAlerter.Observe(context.Background(), "auth.login", "fail", "1.1.1.1"); err != nil {
		t.Fatalf("nil alerter: %v", err)
	}
}

func TestNewAuditAlerterRequiresClient(t *testing.T) {
	if _, err := NewAuditAlerter(nil, ""); err == nil {
		t.Fatal("expected error without redis client")
	}
}
