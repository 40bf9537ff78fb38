package app

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"studycompanion/pkg/ai"
	"studycompanion/pkg/domain"
	"studycompanion/pkg/pomodoro"
	"studycompanion/pkg/queue"
	"studycompanion/pkg/storage"
	"studycompanion/pkg/store"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	opts    []ai.Options
}

func (g *fakeGenerator) GenerateText(_ context.Context, _, userPrompt string, opts ai.Options) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, userPrompt)
	g.opts = append(g.opts, opts)
	return g.reply, g.err
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memObjects) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type recordingNotifier struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, token string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[email] = token
	return nil
}

type testEnv struct {
	app      *App
	cfg      Config
	gen      *fakeGenerator
	objects  *memObjects
	queue    *queue.RedisJobQueue
	notifier *recordingNotifier
	redis    *miniredis.Miniredis
	store    *store.GormStore
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := store.OpenGormStore(sqlite.Open("file:" + name + "?mode=memory&cache=shared"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := db.SetPool(1, 1, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q, err := queue.NewRedisJobQueue(client, queue.Config{Stream: "test:documents", Group: "test"})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	env := &testEnv{
		gen:      &fakeGenerator{},
		objects:  &memObjects{objects: map[string][]byte{}},
		queue:    q,
		notifier: &recordingNotifier{tokens: map[string]string{}},
		redis:    mr,
		store:    db,
		now:      time.Now().UTC(),
	}
	sessions := store.NewJWTSessionStoreWithKey(signingKey(t), store.JWTConfig{KeyID: "test", TTL: 15 * time.Minute}, store.NewRedisTokenRevoker(client))
	env.cfg = Config{
		Store:         db,
		Sessions:      sessions,
		RefreshTokens: store.NewRedisRefreshTokenStore(client),
		ResetTokens:   store.NewRedisResetTokenStore(client),
		ResetNotifier: env.notifier,
		Generator:     env.gen,
		Objects:       env.objects,
		Queue:         q,
		Pomodoro:      pomodoro.NewService(pomodoro.NewRedisStore(client, "")),
	}
	a, err := New(env.cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	env.app = a
	return env
}

func (e *testEnv) signUp(t *testing.T, email string) AuthResult {
	t.Helper()
	res, err := e.app.SignUp(context.Background(), email, "correct horse 1", "")
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	return res
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestSignUpLoginRefreshLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.app.SignUp(ctx, "  Ada@Example.com ", "analytical1", "ada")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if res.User.Email != "ada@example.com" || res.User.Username != "ada" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	user, err := env.app.Authenticate(ctx, res.AccessToken)
	if err != nil || user.ID != res.User.ID {
		t.Fatalf("authenticate = %+v, %v", user, err)
	}

	login, err := env.app.Login(ctx, "ada@example.com", "analytical1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := env.app.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if _, err := env.app.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("replayed refresh token: %v", err)
	}

	if err := env.app.Logout(ctx, user, res.AccessToken, res.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.app.Authenticate(ctx, res.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("token after logout: %v", err)
	}
	if _, err := env.app.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("refresh after logout: %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUp(t, "taken@example.com")

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"duplicate email", "TAKEN@example.com", "password123", ErrEmailExists},
		{"bad email", "not-an-email", "password123", ErrInvalidInput},
		{"short password", "a@example.com", "abc1", ErrInvalidInput},
		{"no digit", "b@example.com", "passwordonly", ErrInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.app.SignUp(ctx, tc.email, tc.password, ""); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLoginDoesNotRevealAccounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUp(t, "grace@example.com")

	_, wrongPassword := env.app.Login(ctx, "grace@example.com", "nope12345")
	_, unknown := env.app.Login(ctx, "nobody@example.com", "nope12345")
	if !errors.Is(wrongPassword, ErrInvalidCredentials) || !errors.Is(unknown, ErrInvalidCredentials) {
		t.Fatalf("errors = %v / %v", wrongPassword, unknown)
	}
	if wrongPassword.Error() != unknown.Error() {
		t.Fatalf("messages differ: %q vs %q", wrongPassword, unknown)
	}
}

func TestChangePasswordRevokesEarlierCredentials(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.signUp(t, "linus@example.com")

	res, err := env.app.ChangePassword(ctx, first.User, "correct horse 1", "battery staple 2")
	if err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := env.app.Authenticate(ctx, first.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("old access token: %v", err)
	}
	if _, err := env.app.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("old refresh token: %v", err)
	}
	if _, err := env.app.Authenticate(ctx, res.AccessToken); err != nil {
		t.Fatalf("new access token: %v", err)
	}
	if _, err := env.app.Login(ctx, "linus@example.com", "battery staple 2"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	if _, err := env.app.ChangePassword(ctx, res.User, "wrong password 1", "another pass 3"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password: %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.signUp(t, "barbara@example.com")

	if err := env.app.RequestPasswordReset(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email should succeed silently: %v", err)
	}
	if len(env.notifier.tokens) != 0 {
		t.Fatalf("notifier called for unknown email: %v", env.notifier.tokens)
	}

	if err := env.app.RequestPasswordReset(ctx, "Barbara@example.com"); err != nil {
		t.Fatalf("request reset: %v", err)
	}
	token := env.notifier.tokens["barbara@example.com"]
	if len(token) != resetTokenLength {
		t.Fatalf("reset token = %q", token)
	}

	if err := env.app.ResetPassword(ctx, token, "fresh start 9"); err != nil {
		t.Fatalf("reset password: %v", err)
	}
	if err := env.app.ResetPassword(ctx, token, "fresh start 10"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("second use: %v", err)
	}
	if _, err := env.app.Authenticate(ctx, first.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("session survived reset: %v", err)
	}
	if _, err := env.app.Login(ctx, "barbara@example.com", "fresh start 9"); err != nil {
		t.Fatalf("login after reset: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signUp(t, "ken@example.com")

	user, err := env.app.UpdateProfile(ctx, res.User, "  ken  ")
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if user.Username != "ken" {
		t.Fatalf("username = %q", user.Username)
	}
	got, err := env.app.Authenticate(ctx, res.AccessToken)
	if err != nil || got.Username != "ken" {
		t.Fatalf("stored user = %+v, %v", got, err)
	}
	if _, err := env.app.UpdateProfile(ctx, res.User, strings.Repeat("x", maxUsernameLength+1)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("long username: %v", err)
	}
}

func mustUser(t *testing.T, env *testEnv, email string) domain.User {
	t.Helper()
	return env.signUp(t, email).User
}

func TestUpdateProfileKeepsConcurrentPasswordChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signUp(t, "ann@example.com")
	stale, err := env.app.Authenticate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := env.app.ChangePassword(ctx, stale, "correct horse 1", "battery staple 2"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	updated, err := env.app.UpdateProfile(ctx, stale, "ann")
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Username != "ann" || updated.PasswordHash == stale.PasswordHash {
		t.Fatalf("updated user = %+v", updated)
	}
	if _, err := env.app.Login(ctx, "ann@example.com", "battery staple 2"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
	if _, err := env.app.Login(ctx, "ann@example.com", "correct horse 1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password after profile update: %v", err)
	}
}

func TestChangePasswordChecksStoredHash(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signUp(t, "joan@example.com")
	if _, err := env.app.ChangePassword(ctx, res.User, "correct horse 1", "battery staple 2"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := env.app.ChangePassword(ctx, res.User, "correct horse 1", "third pass 3"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("stale current password accepted: %v", err)
	}
}

// blindEmailCheck hides existing accounts from the pre-insert email check, as
// happens when two signups race.
type blindEmailCheck struct {
	store.Store
}

func (blindEmailCheck) HasUserEmail(context.Context, string) (bool, error) { return false, nil }

func TestSignUpRaceReportsEmailExists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signUp(t, "race@example.com")

	cfg := env.cfg
	cfg.Store = blindEmailCheck{Store: env.store}
	racing, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if _, err := racing.SignUp(ctx, "race@example.com", "correct horse 1", ""); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("err = %v, want %v", err, ErrEmailExists)
	}
}

func TestLogoutIgnoresForeignRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.signUp(t, "alice@example.com")
	bob := env.signUp(t, "bob@example.com")

	if err := env.app.Logout(ctx, alice.User, alice.AccessToken, bob.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.app.Refresh(ctx, bob.RefreshToken); err != nil {
		t.Fatalf("bob's refresh token was revoked: %v", err)
	}
	if _, err := env.app.Authenticate(ctx, alice.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("alice's access token after logout: %v", err)
	}
}
