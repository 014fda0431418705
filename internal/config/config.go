package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Uploads      UploadConfig
	Tickets      TicketConfig
	Realtime     RealtimeConfig
	Seed         SeedConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSOrigins           string
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	RealtimeChannel string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom string
}

// UploadConfig bounds ticket attachment uploads.
type UploadConfig struct {
	Dir               string
	MaxFiles          int
	MaxFileSizeMB     int
	AllowedExtensions []string
}

// TicketConfig carries ticket lifecycle policies.
type TicketConfig struct {
	ForwardOnlyTransitions bool
	UserDeletePolicy       string
}

// RealtimeConfig tunes websocket delivery.
type RealtimeConfig struct {
	SendBuffer int
}

// SeedConfig toggles demo data loading on boot.
type SeedConfig struct {
	DemoData bool
}

const (
	UserDeletePolicyBlock      = "block"
	UserDeletePolicyDeactivate = "deactivate"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	deletePolicy := strings.ToLower(getEnv("USER_DELETE_POLICY", UserDeletePolicyBlock))
	if deletePolicy != UserDeletePolicyBlock && deletePolicy != UserDeletePolicyDeactivate {
		return nil, fmt.Errorf("invalid USER_DELETE_POLICY %q", deletePolicy)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "station-helpdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "5000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			CORSOrigins:           getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:            os.Getenv("REDIS_ADDR"),
			Password:        os.Getenv("REDIS_PASSWORD"),
			DB:              redisDB,
			RealtimeChannel: getEnv("REDIS_REALTIME_CHANNEL", "helpdesk:realtime"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 24*60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Notification: NotificationConfig{
			EmailFrom: getEnv("NOTIFY_EMAIL_FROM", ""),
		},
		Uploads: UploadConfig{
			Dir:               getEnv("UPLOADS_DIR", "uploads"),
			MaxFiles:          getEnvAsInt("UPLOADS_MAX_FILES", 5),
			MaxFileSizeMB:     getEnvAsInt("UPLOADS_MAX_FILE_MB", 10),
			AllowedExtensions: getEnvAsList("UPLOADS_ALLOWED_EXTENSIONS", []string{"jpeg", "jpg", "png", "gif", "pdf", "doc", "docx", "txt", "log"}),
		},
		Tickets: TicketConfig{
			ForwardOnlyTransitions: getEnvAsBool("TICKET_FORWARD_ONLY_TRANSITIONS", false),
			UserDeletePolicy:       deletePolicy,
		},
		Realtime: RealtimeConfig{
			SendBuffer: getEnvAsInt("REALTIME_SEND_BUFFER", 32),
		},
		Seed: SeedConfig{
			DemoData: getEnvAsBool("SEED_DEMO_DATA", false),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// MaxFileSize returns the per-file upload limit in bytes.
func (u UploadConfig) MaxFileSize() int64 {
	return int64(u.MaxFileSizeMB) * 1024 * 1024
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), ".")))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
