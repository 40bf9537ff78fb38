package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"studycompanion/internal/util"
	"studycompanion/pkg/ai"
	"studycompanion/pkg/pomodoro"
	"studycompanion/pkg/queue"
	"studycompanion/pkg/storage"
	"studycompanion/pkg/store"
	"studycompanion/services/api/internal/app"
	"studycompanion/services/api/internal/config"
	"studycompanion/services/api/internal/security"
	"studycompanion/services/api/internal/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	durations, err := cfg.ParseDurations()
	if err != nil {
		log.Fatalf("failed to parse durations: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, durations)
	stop()
	if err != nil {
		logger.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.FileConfig, durations config.Durations) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	db, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.SetPool(20, 10, 30*time.Minute); err != nil {
		return fmt.Errorf("configure pool: %w", err)
	}

	sessions, err := store.NewJWTSessionStore(store.JWTConfig{
		PrivateKeyPath: cfg.JWTPrivateKeyPath,
		KeyID:          cfg.JWTKeyID,
		VerifyKeyFiles: cfg.JWTVerifyPublicKeys,
		TTL:            durations.AccessToken,
		Issuer:         cfg.JWTIssuer,
		Audience:       cfg.JWTAudience,
		Leeway:         durations.JWTLeeway,
	}, store.NewRedisTokenRevoker(rdb))
	if err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}
	if cfg.JWTPrivateKeyPath == "" {
		slog.Warn("jwt signing key not configured, using an ephemeral key")
	}

	objects, err := storage.NewMinioStore(ctx, storage.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}

	documents, err := queue.NewRedisJobQueue(rdb, queue.Config{
		Stream: cfg.QueueStream,
		Group:  cfg.QueueGroup,
	})
	if err != nil {
		return fmt.Errorf("init document queue: %w", err)
	}

	generator, err := ai.NewTextGenerator(ai.ProviderConfig{
		Provider: cfg.AIProvider,
		APIKey:   cfg.AIAPIKey,
		BaseURL:  cfg.AIBaseURL,
		Model:    cfg.AIModel,
	})
	if err != nil {
		return fmt.Errorf("init text generator: %w", err)
	}

	appCore, err := app.New(app.Config{
		Store:                 db,
		Sessions:              sessions,
		RefreshTokens:         store.NewRedisRefreshTokenStore(rdb),
		ResetTokens:           store.NewRedisResetTokenStore(rdb),
		Generator:             generator,
		Objects:               objects,
		Queue:                 documents,
		Pomodoro:              pomodoro.NewService(pomodoro.NewRedisStore(rdb, "")),
		RefreshTTL:            durations.RefreshToken,
		ResetTTL:              durations.PasswordReset,
		DefaultFlashcardCount: cfg.DefaultFlashcardCount,
		MaxTextBytes:          8 * cfg.MaxUploadBytes,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	proxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}
	alerter, err := security.NewAuditAlerter(rdb, "studycompanion:alerts")
	if err != nil {
		return fmt.Errorf("init audit alerter: %w", err)
	}
	httpServer, err := server.New(server.Config{
		App:     appCore,
		Redis:   rdb,
		Proxies: proxies,
		Alerter: alerter,
		Ready: func(ctx context.Context) error {
			if err := db.Ping(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			return rdb.Ping(ctx).Err()
		},
		CORSOrigins:            cfg.CORSOrigins,
		AuthRateLimitPerMinute: cfg.AuthRateLimitPerMinute,
		AIRateLimitPerMinute:   cfg.AIRateLimitPerMinute,
		MaxBodyBytes:           cfg.MaxBodyBytes,
		MaxUploadBytes:         cfg.MaxUploadBytes,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "ai_provider", cfg.AIProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
