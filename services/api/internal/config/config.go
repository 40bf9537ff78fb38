package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"studycompanion/internal/config"
)

// ConfigPath is the default location of the api config file.
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

	JWTPrivateKeyPath   string            `yaml:"jwtPrivateKeyPath"`
	JWTKeyID            string            `yaml:"jwtKeyId"`
	JWTVerifyPublicKeys map[string]string `yaml:"jwtVerifyPublicKeys"`
	JWTIssuer           string            `yaml:"jwtIssuer"`
	JWTAudience         string            `yaml:"jwtAudience"`
	JWTLeeway           string            `yaml:"jwtLeeway"`
	AccessTokenTTL      string            `yaml:"accessTokenTTL"`
	RefreshTokenTTL     string            `yaml:"refreshTokenTTL"`
	PasswordResetTTL    string            `yaml:"passwordResetTTL"`

	AIProvider string `yaml:"aiProvider"`
	AIAPIKey   string `yaml:"aiApiKey"`
	AIBaseURL  string `yaml:"aiBaseURL"`
	AIModel    string `yaml:"aiModel"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	QueueStream string `yaml:"queueStream"`
	QueueGroup  string `yaml:"queueGroup"`

	CORSOrigins            []string `yaml:"corsOrigins"`
	TrustedProxyCIDRs      []string `yaml:"trustedProxyCidrs"`
	AuthRateLimitPerMinute int      `yaml:"authRateLimitPerMinute"`
	AIRateLimitPerMinute   int      `yaml:"aiRateLimitPerMinute"`
	MaxBodyBytes           int64    `yaml:"maxBodyBytes"`
	MaxUploadBytes         int64    `yaml:"maxUploadBytes"`
	ShutdownTimeoutSeconds int      `yaml:"shutdownTimeoutSeconds"`
	DefaultFlashcardCount  int      `yaml:"defaultFlashcardCount"`
}

// Durations are the parsed duration fields of FileConfig.
type Durations struct {
	JWTLeeway     time.Duration
	AccessToken   time.Duration
	RefreshToken  time.Duration
	PasswordReset time.Duration
}

func defaults() FileConfig {
	return FileConfig{
		Port:                   "8080",
		LogLevel:               "info",
		LogFormat:              "json",
		RedisAddr:              "localhost:6379",
		AIProvider:             "gemini",
		MinioBucket:            "study-documents",
		QueueStream:            "studycompanion:documents",
		QueueGroup:             "ingest",
		AuthRateLimitPerMinute: 20,
		AIRateLimitPerMinute:   30,
		MaxBodyBytes:           1 << 20,
		MaxUploadBytes:         20 << 20,
		ShutdownTimeoutSeconds: 15,
		DefaultFlashcardCount:  40,
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
	config.String(&cfg.Port, "PORT")
	config.String(&cfg.LogLevel, "LOG_LEVEL")
	config.String(&cfg.LogFormat, "LOG_FORMAT")
	config.String(&cfg.DatabaseURL, "DATABASE_URL")
	config.String(&cfg.RedisAddr, "REDIS_ADDR")
	config.String(&cfg.RedisPassword, "REDIS_PASSWORD")
	config.Int(&cfg.RedisDB, "REDIS_DB")
	config.String(&cfg.JWTPrivateKeyPath, "JWT_PRIVATE_KEY_PATH")
	config.String(&cfg.JWTKeyID, "JWT_KEY_ID")
	config.String(&cfg.JWTIssuer, "JWT_ISSUER")
	config.String(&cfg.JWTAudience, "JWT_AUDIENCE")
	config.String(&cfg.JWTLeeway, "JWT_LEEWAY")
	config.String(&cfg.AccessTokenTTL, "ACCESS_TOKEN_TTL")
	config.String(&cfg.RefreshTokenTTL, "REFRESH_TOKEN_TTL")
	config.String(&cfg.PasswordResetTTL, "PASSWORD_RESET_TTL")
	config.String(&cfg.AIProvider, "AI_PROVIDER")
	config.String(&cfg.AIAPIKey, "GEMINI_API_KEY")
	config.String(&cfg.AIAPIKey, "AI_API_KEY")
	config.String(&cfg.AIBaseURL, "AI_BASE_URL")
	config.String(&cfg.AIModel, "AI_MODEL")
	config.String(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	config.String(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	config.String(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	config.String(&cfg.MinioBucket, "MINIO_BUCKET")
	config.Bool(&cfg.MinioUseSSL, "MINIO_USE_SSL")
	config.String(&cfg.QueueStream, "QUEUE_STREAM")
	config.String(&cfg.QueueGroup, "QUEUE_GROUP")
	config.CSV(&cfg.CORSOrigins, "CORS_ORIGINS")
	config.CSV(&cfg.TrustedProxyCIDRs, "TRUSTED_PROXY_CIDRS")
	config.Int(&cfg.AuthRateLimitPerMinute, "API_AUTH_RATE_LIMIT_PER_MINUTE")
	config.Int(&cfg.AIRateLimitPerMinute, "API_AI_RATE_LIMIT_PER_MINUTE")
	config.Int64(&cfg.MaxBodyBytes, "API_MAX_BODY_BYTES")
	config.Int64(&cfg.MaxUploadBytes, "API_MAX_UPLOAD_BYTES")
	config.Int(&cfg.ShutdownTimeoutSeconds, "API_SHUTDOWN_TIMEOUT_SECONDS")
	config.Int(&cfg.DefaultFlashcardCount, "API_DEFAULT_FLASHCARD_COUNT")
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
		return errors.New("config: redisAddr is required for sessions and rate limiting")
	}
	if strings.TrimSpace(cfg.MinioEndpoint) == "" || strings.TrimSpace(cfg.MinioBucket) == "" {
		return errors.New("config: minioEndpoint and minioBucket are required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.AIProvider)) {
	case "gemini", "":
		if strings.TrimSpace(cfg.AIAPIKey) == "" {
			return errors.New("config: aiApiKey is required for the gemini provider (or GEMINI_API_KEY)")
		}
	case "ollama", "openai", "openai-compat":
	default:
		return fmt.Errorf("config: unknown aiProvider %q", cfg.AIProvider)
	}
	if cfg.AuthRateLimitPerMinute < 0 || cfg.AIRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.MaxBodyBytes <= 0 || cfg.MaxUploadBytes <= 0 {
		return errors.New("config: maxBodyBytes and maxUploadBytes must be > 0")
	}
	if cfg.DefaultFlashcardCount < 1 || cfg.DefaultFlashcardCount > 100 {
		return errors.New("config: defaultFlashcardCount must be between 1 and 100")
	}
	if _, err := cfg.ParseDurations(); err != nil {
		return err
	}
	return nil
}

// ParseDurations parses the duration strings, applying defaults.
func (cfg FileConfig) ParseDurations() (Durations, error) {
	var (
		d   Durations
		err error
	)
	if d.JWTLeeway, err = config.Duration("jwtLeeway", cfg.JWTLeeway, 30*time.Second); err != nil {
		return d, err
	}
	if d.AccessToken, err = config.Duration("accessTokenTTL", cfg.AccessTokenTTL, 15*time.Minute); err != nil {
		return d, err
	}
	if d.RefreshToken, err = config.Duration("refreshTokenTTL", cfg.RefreshTokenTTL, 7*24*time.Hour); err != nil {
		return d, err
	}
	if d.PasswordReset, err = config.Duration("passwordResetTTL", cfg.PasswordResetTTL, 30*time.Minute); err != nil {
		return d, err
	}
	return d, nil
}

// ShutdownTimeout is how long in-flight requests get on SIGTERM.
func (cfg FileConfig) ShutdownTimeout() time.Duration {
	if cfg.ShutdownTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
}
