// Package security counts failed authentication events and flags bursts.
package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// AlertResult contains alert evaluation output.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

type rule struct {
	threshold int64
	window    time.Duration
}

// AuditAlerter aggregates security events per client address in fixed
// windows and reports when a rule's threshold is reached.
type AuditAlerter struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewAuditAlerter creates an alerter backed by Redis counters.
func NewAuditAlerter(client redis.Cmdable, prefix string) (*AuditAlerter, error) {
	if client == nil {
		return nil, errors.New("audit alerter requires a redis client")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "studycompanion:alerts"
	}
	return &AuditAlerter{client: client, prefix: prefix, now: time.Now}, nil
}

// Observe records a security event. Events without a rule are ignored.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	var result AlertResult
	if a == nil {
		return result, nil
	}
	r, ok := alertRule(event, outcome)
	if !ok {
		return result, nil
	}
	windowMs := r.window.Milliseconds()
	slot := a.now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, sanitizeSegment(event), sanitizeSegment(outcome), sanitizeSegment(ip), slot)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return result, err
	}
	result.Count = count
	result.Threshold = r.threshold
	result.Window = r.window
	result.Triggered = count >= r.threshold
	return result, nil
}

func alertRule(event, outcome string) (rule, bool) {
	event = strings.TrimSpace(event)
	switch strings.TrimSpace(outcome) {
	case "rate_limited":
		return rule{20, time.Minute}, true
	case "fail":
	default:
		return rule{}, false
	}
	switch event {
	case "auth.login", "auth.signup":
		return rule{10, 5 * time.Minute}, true
	case "auth.refresh", "auth.password.change", "auth.password.reset":
		return rule{15, 5 * time.Minute}, true
	case "api.token.verify":
		return rule{25, 5 * time.Minute}, true
	}
	return rule{}, false
}

func sanitizeSegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return strings.NewReplacer(":", "_", "|", "_", " ", "_").Replace(in)
}
