package config

import (
	"errors"
	"strings"
	"time"

	"studycompanion/internal/config"
)

// ConfigPath is the default location of the ingest config file.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	QueueStream            string `yaml:"queueStream"`
	QueueGroup             string `yaml:"queueGroup"`
	QueueConsumer          string `yaml:"queueConsumer"`
	QueueConcurrency       int    `yaml:"queueConcurrency"`
	QueueMaxRetries        int    `yaml:"queueMaxRetries"`
	QueueRetryDelaySeconds int    `yaml:"queueRetryDelaySeconds"`
	QueueClaimIdleSeconds  int    `yaml:"queueClaimIdleSeconds"`
	MaxDocumentBytes       int64  `yaml:"maxDocumentBytes"`
}

func defaults() FileConfig {
	return FileConfig{
		Port:                   "8081",
		LogLevel:               "info",
		LogFormat:              "json",
		RedisAddr:              "localhost:6379",
		MinioBucket:            "study-documents",
		QueueStream:            "studycompanion:documents",
		QueueGroup:             "ingest",
		QueueConcurrency:       2,
		QueueMaxRetries:        3,
		QueueRetryDelaySeconds: 5,
		QueueClaimIdleSeconds:  300,
		MaxDocumentBytes:       20 << 20,
	}
}

// Load reads config from path, then .env and environment overrides. An empty
// path falls back to CONFIG_PATH and then ConfigPath.
func Load(path string) (FileConfig, error) {
	cfg := defaults()
	if path == "" {
		path = config.Path(ConfigPath)
	}
	if err := config.LoadDotEnv(); err != nil {
		return cfg, err
	}
	if err := config.LoadYAML(path, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	config.String(&cfg.Port, "INGEST_PORT")
	config.String(&cfg.LogLevel, "LOG_LEVEL")
	config.String(&cfg.LogFormat, "LOG_FORMAT")
	config.String(&cfg.DatabaseURL, "DATABASE_URL")
	config.String(&cfg.RedisAddr, "REDIS_ADDR")
	config.String(&cfg.RedisPassword, "REDIS_PASSWORD")
	config.Int(&cfg.RedisDB, "REDIS_DB")
	config.String(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	config.String(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	config.String(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	config.String(&cfg.MinioBucket, "MINIO_BUCKET")
	config.Bool(&cfg.MinioUseSSL, "MINIO_USE_SSL")
	config.String(&cfg.QueueStream, "QUEUE_STREAM")
	config.String(&cfg.QueueGroup, "QUEUE_GROUP")
	config.String(&cfg.QueueConsumer, "INGEST_QUEUE_CONSUMER")
	config.Int(&cfg.QueueConcurrency, "INGEST_QUEUE_CONCURRENCY")
	config.Int(&cfg.QueueMaxRetries, "INGEST_QUEUE_MAX_RETRIES")
	config.Int(&cfg.QueueRetryDelaySeconds, "INGEST_QUEUE_RETRY_DELAY_SECONDS")
	config.Int(&cfg.QueueClaimIdleSeconds, "INGEST_QUEUE_CLAIM_IDLE_SECONDS")
	config.Int64(&cfg.MaxDocumentBytes, "INGEST_MAX_DOCUMENT_BYTES")
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("config: port is required")
	}
	if err := config.ValidateLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if strings.TrimSpace(cfg.MinioEndpoint) == "" || strings.TrimSpace(cfg.MinioBucket) == "" {
		return errors.New("config: minioEndpoint and minioBucket are required")
	}
	if strings.TrimSpace(cfg.QueueStream) == "" {
		return errors.New("config: queueStream is required")
	}
	if cfg.QueueConcurrency <= 0 {
		return errors.New("config: queueConcurrency must be > 0 (INGEST_QUEUE_CONCURRENCY)")
	}
	if cfg.QueueMaxRetries <= 0 {
		return errors.New("config: queueMaxRetries must be > 0 (INGEST_QUEUE_MAX_RETRIES)")
	}
	if cfg.QueueRetryDelaySeconds < 0 || cfg.QueueClaimIdleSeconds < 0 {
		return errors.New("config: queue delays must be >= 0")
	}
	if cfg.MaxDocumentBytes <= 0 {
		return errors.New("config: maxDocumentBytes must be > 0")
	}
	return nil
}

// RetryDelay is the pause before a failed job is put back on the stream.
func (cfg FileConfig) RetryDelay() time.Duration {
	return time.Duration(cfg.QueueRetryDelaySeconds) * time.Second
}

// ClaimIdle is how long a message may sit unacknowledged before another
// consumer takes it over.
func (cfg FileConfig) ClaimIdle() time.Duration {
	return time.Duration(cfg.QueueClaimIdleSeconds) * time.Second
}
