package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"studycompanion/internal/ratelimit"
	"studycompanion/internal/util"
	"studycompanion/pkg/domain"
	"studycompanion/services/api/internal/app"
	"studycompanion/services/api/internal/security"
)

const (
	defaultMaxBodyBytes   int64 = 1 << 20
	defaultMaxUploadBytes int64 = 20 << 20
	rateWindow                  = time.Minute
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App     *app.App
	Redis   redis.Cmdable
	Ready   func(ctx context.Context) error
	Proxies *util.TrustedProxies
	// Alerter is optional; without it security events are only logged.
	Alerter *security.AuditAlerter

	CORSOrigins            []string
	AuthRateLimitPerMinute int
	AIRateLimitPerMinute   int
	MaxBodyBytes           int64
	MaxUploadBytes         int64
}

// Server exposes the study companion JSON API.
type Server struct {
	app            *app.App
	ready          func(ctx context.Context) error
	proxies        *util.TrustedProxies
	alerter        *security.AuditAlerter
	cors           func(http.Handler) http.Handler
	mux            *http.ServeMux
	maxBodyBytes   int64
	maxUploadBytes int64
	authLimiter    *ratelimit.FixedWindow
	aiLimiter      *ratelimit.FixedWindow
	patterns       []string
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	authLimit := cfg.AuthRateLimitPerMinute
	if authLimit <= 0 {
		authLimit = 20
	}
	aiLimit := cfg.AIRateLimitPerMinute
	if aiLimit <= 0 {
		aiLimit = 30
	}
	authLimiter, err := ratelimit.NewFixedWindow(cfg.Redis, "studycompanion:ratelimit:auth", authLimit, rateWindow)
	if err != nil {
		return nil, fmt.Errorf("init auth limiter: %w", err)
	}
	aiLimiter, err := ratelimit.NewFixedWindow(cfg.Redis, "studycompanion:ratelimit:ai", aiLimit, rateWindow)
	if err != nil {
		return nil, fmt.Errorf("init ai limiter: %w", err)
	}
	s := &Server{
		app:            cfg.App,
		ready:          cfg.Ready,
		proxies:        cfg.Proxies,
		alerter:        cfg.Alerter,
		cors:           util.NewCORS(cfg.CORSOrigins),
		mux:            http.NewServeMux(),
		maxBodyBytes:   orBytes(cfg.MaxBodyBytes, defaultMaxBodyBytes),
		maxUploadBytes: orBytes(cfg.MaxUploadBytes, defaultMaxUploadBytes),
		authLimiter:    authLimiter,
		aiLimiter:      aiLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = s.cors(h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestLog("api", s.proxies, h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.handleFunc("GET /healthz", s.handleHealth)
	s.handleFunc("GET /readyz", s.handleReady)
	s.handleFunc("GET /.well-known/jwks.json", s.handleJWKS)

	// auth
	s.handleFunc("POST /api/auth/signup", s.handleSignup)
	s.handleFunc("POST /api/auth/login", s.handleLogin)
	s.handleFunc("POST /api/auth/refresh", s.handleRefresh)
	s.handle("POST /api/auth/logout", s.authenticated(s.handleLogout))
	s.handleFunc("POST /api/auth/password/forgot", s.handleForgotPassword)
	s.handleFunc("POST /api/auth/password/reset", s.handleResetPassword)
	s.handle("GET /api/me", s.authenticated(s.handleMe))
	s.handle("PATCH /api/me", s.authenticated(s.handleUpdateMe))
	s.handle("POST /api/me/password", s.authenticated(s.handleChangePassword))

	// documents
	s.handle("POST /api/extract", s.authenticated(s.handleExtract))
	s.handle("POST /api/documents", s.authenticated(s.handleUploadDocument))
	s.handle("GET /api/documents", s.authenticated(s.handleListDocuments))
	s.handle("GET /api/documents/{id}", s.authenticated(s.handleGetDocument))
	s.handle("DELETE /api/documents/{id}", s.authenticated(s.handleDeleteDocument))

	// summaries and notes
	s.handle("POST /api/summaries", s.authenticated(s.limitAI(s.handleSummary)))
	s.handle("POST /api/notes", s.authenticated(s.handleSaveNote))
	s.handle("GET /api/notes", s.authenticated(s.handleListNotes))
	s.handle("GET /api/notes/{id}", s.authenticated(s.handleGetNote))
	s.handle("DELETE /api/notes/{id}", s.authenticated(s.handleDeleteNote))

	// flashcards
	s.handle("POST /api/flashcards/generate", s.authenticated(s.limitAI(s.handleGenerateFlashcards)))
	s.handle("POST /api/flashcards", s.authenticated(s.handleSaveFlashcards))
	s.handle("GET /api/flashcards", s.authenticated(s.handleListFlashcards))
	s.handle("GET /api/flashcards/{id}", s.authenticated(s.handleGetFlashcards))
	s.handle("DELETE /api/flashcards/{id}", s.authenticated(s.handleDeleteFlashcards))

	// quizzes
	s.handle("POST /api/quizzes/info", s.authenticated(s.limitAI(s.handleQuizInfo)))
	s.handle("POST /api/quizzes/generate", s.authenticated(s.limitAI(s.handleGenerateQuiz)))
	s.handle("POST /api/quizzes", s.authenticated(s.handleSaveQuiz))
	s.handle("GET /api/quizzes", s.authenticated(s.handleListQuizzes))
	s.handle("GET /api/quizzes/{id}", s.authenticated(s.handleGetQuiz))
	s.handle("DELETE /api/quizzes/{id}", s.authenticated(s.handleDeleteQuiz))
	s.handle("POST /api/quizzes/{id}/attempts", s.authenticated(s.handleSubmitAttempt))
	s.handle("GET /api/quizzes/{id}/attempts", s.authenticated(s.handleListAttempts))

	// chat
	s.handle("POST /api/chat/ask", s.authenticated(s.limitAI(s.handleAsk)))
	s.handle("POST /api/chats", s.authenticated(s.handleSaveChat))
	s.handle("GET /api/chats", s.authenticated(s.handleListChats))
	s.handle("GET /api/chats/{id}", s.authenticated(s.handleGetChat))
	s.handle("PUT /api/chats/{id}", s.authenticated(s.handleSaveChat))
	s.handle("DELETE /api/chats/{id}", s.authenticated(s.handleDeleteChat))

	// widgets
	s.handle("GET /api/pomodoro", s.authenticated(s.handlePomodoro))
	s.handle("POST /api/pomodoro/start", s.authenticated(s.handlePomodoroStart))
	s.handle("POST /api/pomodoro/pause", s.authenticated(s.handlePomodoroPause))
	s.handle("POST /api/pomodoro/reset", s.authenticated(s.handlePomodoroReset))
	s.handle("PUT /api/pomodoro/mode", s.authenticated(s.handlePomodoroMode))
	s.handle("PUT /api/pomodoro/durations/{mode}", s.authenticated(s.handlePomodoroDuration))
	s.handle("GET /api/sticky-notes", s.authenticated(s.handleListStickyNotes))
	s.handle("POST /api/sticky-notes", s.authenticated(s.handleCreateStickyNote))
	s.handle("PATCH /api/sticky-notes/{id}", s.authenticated(s.handleUpdateStickyNote))
	s.handle("DELETE /api/sticky-notes/{id}", s.authenticated(s.handleDeleteStickyNote))
	s.handle("GET /api/todos", s.authenticated(s.handleListTodos))
	s.handle("POST /api/todos", s.authenticated(s.handleCreateTodo))
	s.handle("PATCH /api/todos/{id}", s.authenticated(s.handleUpdateTodo))
	s.handle("DELETE /api/todos/{id}", s.authenticated(s.handleDeleteTodo))
}

func (s *Server) handle(pattern string, h http.Handler) {
	s.patterns = append(s.patterns, pattern)
	s.mux.Handle(pattern, h)
}

func (s *Server) handleFunc(pattern string, h http.HandlerFunc) {
	s.handle(pattern, h)
}

// Routes lists the registered "METHOD /path" patterns in sorted order.
func (s *Server) Routes() []string {
	out := slices.Clone(s.patterns)
	slices.Sort(out)
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			util.LoggerFromContext(r.Context()).Warn("readiness check failed", "err", err)
			writeError(w, http.StatusServiceUnavailable, "dependencies unavailable", "NOT_READY")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, map[string]any{"keys": s.app.JWKS()})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, app.ErrUnauthorized.Error(), "UNAUTHORIZED")
			return
		}
		user, err := s.app.Authenticate(r.Context(), token)
		if err != nil {
			if !errors.Is(err, app.ErrUnauthorized) {
				writeAppError(w, r, err)
				return
			}
			s.audit(r, "api.token.verify", "fail")
			writeError(w, http.StatusUnauthorized, app.ErrUnauthorized.Error(), "UNAUTHORIZED")
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", user.ID))
		next(w, r.WithContext(ctx), user)
	})
}

// limitAI applies the per-user budget for model calls.
func (s *Server) limitAI(next authHandler) authHandler {
	return func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if !s.allowRate(w, r, s.aiLimiter, "user:"+user.ID, "too many generation requests") {
			return
		}
		next(w, r, user)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindow, key, msg string) bool {
	d := limiter.Allow(r.Context(), key)
	if d.Allowed {
		return true
	}
	secs := int(d.RetryAfter.Round(time.Second) / time.Second)
	w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
	writeError(w, http.StatusTooManyRequests, msg, "RATE_LIMITED")
	return false
}

// allowAuth limits unauthenticated endpoints per route and client address.
func (s *Server) allowAuth(w http.ResponseWriter, r *http.Request, event string) bool {
	if s.allowRate(w, r, s.authLimiter, r.URL.Path+"|"+util.ClientIP(r, s.proxies), "too many attempts") {
		return true
	}
	s.audit(r, event, "rate_limited")
	return false
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.proxies)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
	if s.alerter == nil {
		return
	}
	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert counter failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(authHeader[7:])
	return token, token != ""
}

// decodeJSON reads a size-limited JSON body into dst.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "BODY_TOO_LARGE")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body required", "INVALID_INPUT")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_INPUT")
		}
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func orBytes(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}
