package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"studycompanion/pkg/ai"
	"studycompanion/pkg/pomodoro"
	"studycompanion/pkg/queue"
	"studycompanion/pkg/storage"
	"studycompanion/pkg/store"
	"studycompanion/services/api/internal/app"
	"studycompanion/services/api/internal/security"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

func signingKey() *rsa.PrivateKey {
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

type stubGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (g *stubGenerator) GenerateText(context.Context, string, string, ai.Options) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.reply, g.err
}

func (g *stubGenerator) set(reply string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reply = reply
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
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

type testServer struct {
	url    string
	gen    *stubGenerator
	redis  *miniredis.Miniredis
	routes []string
}

type serverOption func(*Config)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := store.OpenGormStore(sqlite.Open("file:srv_" + name + "?mode=memory&cache=shared"))
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
	alerter, err := security.NewAuditAlerter(client, "test:alerts")
	if err != nil {
		t.Fatalf("new alerter: %v", err)
	}
	gen := &stubGenerator{}
	a, err := app.New(app.Config{
		Store:         db,
		Sessions:      store.NewJWTSessionStoreWithKey(signingKey(), store.JWTConfig{KeyID: "test", TTL: 15 * time.Minute}, store.NewRedisTokenRevoker(client)),
		RefreshTokens: store.NewRedisRefreshTokenStore(client),
		ResetTokens:   store.NewRedisResetTokenStore(client),
		Generator:     gen,
		Objects:       &memObjects{objects: map[string][]byte{}},
		Queue:         q,
		Pomodoro:      pomodoro.NewService(pomodoro.NewRedisStore(client, "")),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{
		App:                    a,
		Redis:                  client,
		Alerter:                alerter,
		AuthRateLimitPerMinute: 100,
		AIRateLimitPerMinute:   100,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testServer{url: ts.URL, gen: gen, redis: mr, routes: srv.Routes()}
}

// do sends a JSON request and decodes a JSON reply into out when non-nil.
func (s *testServer) do(t *testing.T, method, path, token string, body, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.url+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func (s *testServer) signUp(t *testing.T, email string) string {
	t.Helper()
	var res app.AuthResult
	resp := s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    email,
		"password": "correct horse 1",
	}, &res)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup %s: status %d", email, resp.StatusCode)
	}
	return res.AccessToken
}

func TestNewRequiresAppAndRedis(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without app")
	}
	a := &app.App{}
	if _, err := New(Config{App: a}); err == nil {
		t.Fatal("expected error without redis")
	}
}

func TestHealthAndMiddleware(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.url + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("expected request id header")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers, got %v", resp.Header)
	}

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	srv.do(t, http.MethodGet, "/.well-known/jwks.json", "", nil, &jwks)
	if len(jwks.Keys) != 1 || jwks.Keys[0]["kid"] != "test" {
		t.Fatalf("unexpected jwks: %+v", jwks)
	}
}

func TestReadyReportsDependencyFailure(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.Ready = func(context.Context) error { return errors.New("db down") }
	})
	var body errorBody
	resp := srv.do(t, http.MethodGet, "/readyz", "", nil, &body)
	if resp.StatusCode != http.StatusServiceUnavailable || body.Code != "NOT_READY" {
		t.Fatalf("expected 503 NOT_READY, got %d %+v", resp.StatusCode, body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t)
	cases := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body errorBody
			resp := srv.do(t, http.MethodGet, "/api/notes", tc.token, nil, &body)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
			if body.Code != "UNAUTHORIZED" || body.Error != app.ErrUnauthorized.Error() {
				t.Fatalf("unexpected body: %+v", body)
			}
		})
	}
}

func TestAuthFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signUp(t, "ada@example.com")

	var body errorBody
	resp := srv.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "ada@example.com",
		"password": "correct horse 1",
	}, &body)
	if resp.StatusCode != http.StatusConflict || body.Code != "EMAIL_EXISTS" {
		t.Fatalf("expected 409 EMAIL_EXISTS, got %d %+v", resp.StatusCode, body)
	}

	resp = srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "wrong password 1",
	}, &body)
	if resp.StatusCode != http.StatusUnauthorized || body.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("expected 401 INVALID_CREDENTIALS, got %d %+v", resp.StatusCode, body)
	}

	var login app.AuthResult
	resp = srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "correct horse 1",
	}, &login)
	if resp.StatusCode != http.StatusOK || login.RefreshToken == "" {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var me map[string]any
	srv.do(t, http.MethodPatch, "/api/me", token, map[string]string{"username": "ada"}, &me)
	if me["username"] != "ada" {
		t.Fatalf("expected username update, got %v", me)
	}
	if _, ok := me["passwordHash"]; ok {
		t.Fatal("password hash must not be serialized")
	}

	resp = srv.do(t, http.MethodPost, "/api/auth/logout", login.AccessToken, map[string]string{
		"refreshToken": login.RefreshToken,
	}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on logout, got %d", resp.StatusCode)
	}
	resp = srv.do(t, http.MethodGet, "/api/me", login.AccessToken, nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to fail, got %d", resp.StatusCode)
	}
	resp = srv.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": login.RefreshToken,
	}, &body)
	if resp.StatusCode != http.StatusUnauthorized || body.Code != "INVALID_REFRESH_TOKEN" {
		t.Fatalf("expected revoked refresh token to fail, got %d %+v", resp.StatusCode, body)
	}
}

func TestLoginRateLimit(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.AuthRateLimitPerMinute = 1 })
	body := map[string]string{"email": "u@example.com", "password": "whatever 1"}
	resp := srv.do(t, http.MethodPost, "/api/auth/login", "", body, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("first request expected 401, got %d", resp.StatusCode)
	}
	resp = srv.do(t, http.MethodPost, "/api/auth/login", "", body, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	var failed, limited bool
	for _, key := range srv.redis.Keys() {
		failed = failed || strings.HasPrefix(key, "test:alerts:auth.login:fail:")
		limited = limited || strings.HasPrefix(key, "test:alerts:auth.login:rate_limited:")
	}
	if !failed || !limited {
		t.Fatalf("expected alert counters for both outcomes, got %v", srv.redis.Keys())
	}
}

func TestGenerationRateLimitIsPerUser(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.AIRateLimitPerMinute = 1 })
	srv.gen.set("# Topic\n\nSummary body")
	first := srv.signUp(t, "first@example.com")
	second := srv.signUp(t, "second@example.com")
	req := map[string]string{"text": "photosynthesis converts light into chemical energy"}

	var out map[string]string
	resp := srv.do(t, http.MethodPost, "/api/summaries", first, req, &out)
	if resp.StatusCode != http.StatusOK || out["summary"] != "# Topic\n\nSummary body" {
		t.Fatalf("unexpected summary response: %d %v", resp.StatusCode, out)
	}
	resp = srv.do(t, http.MethodPost, "/api/summaries", first, req, nil)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for second call, got %d", resp.StatusCode)
	}
	resp = srv.do(t, http.MethodPost, "/api/summaries", second, req, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("other user should not be limited, got %d", resp.StatusCode)
	}
}

func TestNotesAreScopedToOwner(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.signUp(t, "owner@example.com")
	other := srv.signUp(t, "other@example.com")

	var note struct {
		ID      string `json:"id"`
		Summary string `json:"summary"`
	}
	resp := srv.do(t, http.MethodPost, "/api/notes", owner, map[string]string{"summary": "# Cells"}, &note)
	if resp.StatusCode != http.StatusCreated || note.ID == "" {
		t.Fatalf("save note: %d %+v", resp.StatusCode, note)
	}

	var list struct {
		Items []json.RawMessage `json:"items"`
		Count int               `json:"count"`
	}
	srv.do(t, http.MethodGet, "/api/notes", owner, nil, &list)
	if list.Count != 1 {
		t.Fatalf("expected 1 note for owner, got %d", list.Count)
	}
	srv.do(t, http.MethodGet, "/api/notes", other, nil, &list)
	if list.Count != 0 || list.Items == nil {
		t.Fatalf("expected empty list for other user, got %+v", list)
	}

	var body errorBody
	resp = srv.do(t, http.MethodGet, "/api/notes/"+note.ID, other, nil, &body)
	if resp.StatusCode != http.StatusNotFound || body.Code != "NOT_FOUND" {
		t.Fatalf("expected 404 for other user, got %d %+v", resp.StatusCode, body)
	}
	resp = srv.do(t, http.MethodDelete, "/api/notes/"+note.ID, other, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 deleting other user's note, got %d", resp.StatusCode)
	}
	resp = srv.do(t, http.MethodDelete, "/api/notes/"+note.ID, owner, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	srv.do(t, http.MethodGet, "/api/notes", owner, nil, &list)
	if list.Count != 0 {
		t.Fatalf("expected note to be gone, got %d", list.Count)
	}
}

func TestQuizRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signUp(t, "quiz@example.com")
	srv.gen.set("```json\n" + `[
		{"question":"2+2?","options":{"A":"3","B":"4","C":"5","D":"6"},"correct_option":"B"},
		{"question":"Capital of France?","options":{"A":"Paris","B":"Rome","C":"Oslo","D":"Bern"},"correct_option":"A"}
	]` + "\n```")

	var generated struct {
		Items []map[string]any `json:"items"`
	}
	resp := srv.do(t, http.MethodPost, "/api/quizzes/generate", token, map[string]any{
		"text": "arithmetic and geography",
		"info": map[string]any{"title": "Mixed", "topic": "General", "num_questions": 2, "difficulty": "Beginner"},
	}, &generated)
	if resp.StatusCode != http.StatusOK || len(generated.Items) != 2 {
		t.Fatalf("generate quiz: %d %+v", resp.StatusCode, generated)
	}

	var quiz struct {
		ID        string `json:"id"`
		Questions []struct {
			ID string `json:"id"`
		} `json:"questions"`
	}
	resp = srv.do(t, http.MethodPost, "/api/quizzes", token, map[string]any{
		"title":      "Mixed",
		"topic":      "General",
		"difficulty": "Beginner",
		"questions":  generated.Items,
	}, &quiz)
	if resp.StatusCode != http.StatusCreated || len(quiz.Questions) != 2 {
		t.Fatalf("save quiz: %d %+v", resp.StatusCode, quiz)
	}

	var attempt struct {
		Score int `json:"score"`
		Total int `json:"total"`
	}
	resp = srv.do(t, http.MethodPost, "/api/quizzes/"+quiz.ID+"/attempts", token, map[string]any{
		"answers": map[string]string{quiz.Questions[0].ID: "B", quiz.Questions[1].ID: "C"},
	}, &attempt)
	if resp.StatusCode != http.StatusCreated || attempt.Score != 1 || attempt.Total != 2 {
		t.Fatalf("attempt: %d %+v", resp.StatusCode, attempt)
	}
}

func TestStrictGenerationReportsInvalidJSON(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signUp(t, "strict@example.com")
	srv.gen.set("Sorry, I cannot help with that.")

	var lenient struct {
		Items []any `json:"items"`
		Count int   `json:"count"`
	}
	resp := srv.do(t, http.MethodPost, "/api/flashcards/generate", token, map[string]any{
		"text": "mitochondria",
	}, &lenient)
	if resp.StatusCode != http.StatusOK || lenient.Count != 0 {
		t.Fatalf("lenient mode should return an empty list, got %d %+v", resp.StatusCode, lenient)
	}

	var body errorBody
	resp = srv.do(t, http.MethodPost, "/api/flashcards/generate", token, map[string]any{
		"text":   "mitochondria",
		"strict": true,
	}, &body)
	if resp.StatusCode != http.StatusBadGateway || body.Code != "AI_INVALID_RESPONSE" {
		t.Fatalf("expected 502 AI_INVALID_RESPONSE, got %d %+v", resp.StatusCode, body)
	}
}

func TestSaveChatPutUsesPathID(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signUp(t, "chat@example.com")
	messages := []map[string]string{
		{"role": "user", "text": "What is osmosis?"},
		{"role": "assistant", "text": "Movement of water across a membrane."},
	}
	var created struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	resp := srv.do(t, http.MethodPost, "/api/chats", token, map[string]any{"messages": messages[:1]}, &created)
	if resp.StatusCode != http.StatusCreated || created.Title != "What is osmosis?" {
		t.Fatalf("create chat: %d %+v", resp.StatusCode, created)
	}

	var updated struct {
		ID       string           `json:"id"`
		Messages []map[string]any `json:"messages"`
	}
	resp = srv.do(t, http.MethodPut, "/api/chats/"+created.ID, token, map[string]any{"messages": messages}, &updated)
	if resp.StatusCode != http.StatusOK || updated.ID != created.ID || len(updated.Messages) != 2 {
		t.Fatalf("update chat: %d %+v", resp.StatusCode, updated)
	}

	var list struct {
		Count int `json:"count"`
	}
	srv.do(t, http.MethodGet, "/api/chats", token, nil, &list)
	if list.Count != 1 {
		t.Fatalf("expected one chat after update, got %d", list.Count)
	}
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, srv *testServer, path, token, filename string, content []byte) (*http.Response, []byte) {
	t.Helper()
	body, contentType := multipartBody(t, filename, content)
	req, err := http.NewRequest(http.MethodPost, srv.url+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, raw
}

func TestExtractAndUpload(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.MaxUploadBytes = 4 << 10 })
	token := srv.signUp(t, "files@example.com")

	resp, raw := upload(t, srv, "/api/extract", token, "notes.md", []byte("# Heading\n\nSome   text"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("extract: %d %s", resp.StatusCode, raw)
	}
	var extracted map[string]string
	if err := json.Unmarshal(raw, &extracted); err != nil {
		t.Fatalf("decode extract: %v", err)
	}
	if !strings.Contains(extracted["text"], "Heading") {
		t.Fatalf("unexpected extracted text %q", extracted["text"])
	}

	resp, raw = upload(t, srv, "/api/extract", token, "slides.pptx", []byte("binary"))
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d %s", resp.StatusCode, raw)
	}

	resp, raw = upload(t, srv, "/api/documents", token, "big.txt", bytes.Repeat([]byte("a"), 8<<10))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d %s", resp.StatusCode, raw)
	}

	resp, raw = upload(t, srv, "/api/documents", token, "chapter.txt", []byte("Chapter one text"))
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("upload document: %d %s", resp.StatusCode, raw)
	}
	var doc struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.Status != "queued" {
		t.Fatalf("expected queued document, got %+v", doc)
	}
	entries, err := srv.redis.Stream("test:documents")
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one queued job, got %d (%v)", len(entries), err)
	}

	var body errorBody
	srvResp := srv.do(t, http.MethodPost, "/api/summaries", token, map[string]string{"documentId": doc.ID}, &body)
	if srvResp.StatusCode != http.StatusConflict || body.Code != "DOCUMENT_NOT_READY" {
		t.Fatalf("expected 409 DOCUMENT_NOT_READY, got %d %+v", srvResp.StatusCode, body)
	}
}

func TestJSONBodyLimits(t *testing.T) {
	srv := newTestServer(t, func(c *Config) { c.MaxBodyBytes = 256 })
	token := srv.signUp(t, "limits@example.com")

	var body errorBody
	resp := srv.do(t, http.MethodPost, "/api/notes", token, map[string]string{"summary": strings.Repeat("x", 1000)}, &body)
	if resp.StatusCode != http.StatusRequestEntityTooLarge || body.Code != "BODY_TOO_LARGE" {
		t.Fatalf("expected 413, got %d %+v", resp.StatusCode, body)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.url+"/api/notes", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	raw, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	raw.Body.Close()
	if raw.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", raw.StatusCode)
	}
}

func TestWidgetsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	token := srv.signUp(t, "widgets@example.com")

	var st struct {
		Mode      string `json:"mode"`
		IsRunning bool   `json:"isRunning"`
	}
	srv.do(t, http.MethodPost, "/api/pomodoro/start", token, nil, &st)
	if !st.IsRunning || st.Mode != "work" {
		t.Fatalf("expected running work timer, got %+v", st)
	}
	var body errorBody
	resp := srv.do(t, http.MethodPut, "/api/pomodoro/durations/lunch", token, map[string]int{"minutes": 10}, &body)
	if resp.StatusCode != http.StatusBadRequest || body.Code != "INVALID_INPUT" {
		t.Fatalf("expected 400 for unknown mode, got %d %+v", resp.StatusCode, body)
	}

	var todo struct {
		ID   string `json:"id"`
		Done bool   `json:"done"`
	}
	resp = srv.do(t, http.MethodPost, "/api/todos?tz=Europe/Berlin", token, map[string]string{"text": "review notes"}, &todo)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create todo: %d", resp.StatusCode)
	}
	srv.do(t, http.MethodPatch, "/api/todos/"+todo.ID, token, map[string]bool{"done": true}, &todo)
	if !todo.Done {
		t.Fatal("expected todo to be done")
	}
	resp = srv.do(t, http.MethodGet, "/api/todos?tz=Mars/Olympus", token, nil, &body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown timezone, got %d", resp.StatusCode)
	}

	var sticky struct {
		ID    string `json:"id"`
		Color string `json:"color"`
	}
	resp = srv.do(t, http.MethodPost, "/api/sticky-notes", token, map[string]any{"text": "buy chalk", "color": "blue"}, &sticky)
	if resp.StatusCode != http.StatusCreated || sticky.Color != "blue" {
		t.Fatalf("create sticky: %d %+v", resp.StatusCode, sticky)
	}
}

func TestWriteAppError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{fmt.Errorf("%w: title required", app.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT", "invalid input: title required"},
		{app.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "not found"},
		{fmt.Errorf("save note: %w: %w", app.ErrStore, errors.New("pq: connection refused")), http.StatusInternalServerError, "STORE_FAILED", app.ErrStore.Error()},
		{fmt.Errorf("%w: provider 503", app.ErrGenerationFailed), http.StatusBadGateway, "GENERATION_FAILED", app.ErrGenerationFailed.Error()},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL", "Internal Server Error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeAppError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		var body errorBody
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rec.Code != tc.status || body.Code != tc.code || body.Error != tc.msg {
			t.Fatalf("%v: got %d %+v", tc.err, rec.Code, body)
		}
	}
}
