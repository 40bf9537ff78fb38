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

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"studycompanion/internal/util"
	"studycompanion/pkg/queue"
	"studycompanion/pkg/storage"
	"studycompanion/pkg/store"
	"studycompanion/services/ingest/internal/app"
	"studycompanion/services/ingest/internal/config"
	"studycompanion/services/ingest/internal/server"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		logger.Error("ingest stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.FileConfig) error {
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
	if err := db.SetPool(cfg.QueueConcurrency+2, cfg.QueueConcurrency, 30*time.Minute); err != nil {
		return fmt.Errorf("configure pool: %w", err)
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

	jobs, err := queue.NewRedisJobQueue(rdb, queue.Config{
		Stream:     cfg.QueueStream,
		Group:      cfg.QueueGroup,
		Consumer:   cfg.QueueConsumer,
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: cfg.RetryDelay(),
		ClaimIdle:  cfg.ClaimIdle(),
	})
	if err != nil {
		return fmt.Errorf("init queue: %w", err)
	}

	worker, err := app.New(app.Config{
		Store:            db,
		Objects:          objects,
		MaxRetries:       jobs.MaxRetries(),
		MaxDocumentBytes: cfg.MaxDocumentBytes,
	})
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	opsServer, err := server.New(server.Config{
		Jobs: jobs,
		Ready: func(ctx context.Context) error {
			if err := db.Ping(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
			return rdb.Ping(ctx).Err()
		},
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           opsServer.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("ingest worker started", "stream", cfg.QueueStream, "concurrency", cfg.QueueConcurrency)
		return jobs.Run(gctx, cfg.QueueConcurrency, worker.HandleJob)
	})
	g.Go(func() error {
		slog.Info("ingest ops server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
