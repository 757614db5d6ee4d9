package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Upload   UploadConfig
	Log      LogConfig
	Outbox   OutboxConfig
	Policy   PolicyConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	InitSchema      bool // DB_INIT_SCHEMA: create missing tables at startup
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Host           string
	RequestTimeout time.Duration
	AllowedOrigin  string
}

// AuthConfig holds token verification settings. Tokens are issued elsewhere.
type AuthConfig struct {
	JWTSecret  string
	AdminToken string // ADMIN_TOKEN: static bearer for admin tooling
}

type RedisConfig struct {
	Addr     string // empty disables redis; rate limiting falls back to the database
	Password string
	DB       int
	AreaTTL  time.Duration
}

type KafkaConfig struct {
	Brokers  []string // empty means events are logged, not published
	Topic    string
	ClientID string
	Retries  int
	WriteMS  int
}

type UploadConfig struct {
	BasePath string
	MaxBytes int64
}

type LogConfig struct {
	Level   string
	Env     string
	Version string
}

type OutboxConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	StaleAfter  time.Duration
}

// PolicyConfig holds the tunable complaint and moderation constants.
type PolicyConfig struct {
	DuplicateRadiusMeters float64
	StalenessWindow       time.Duration
	BumpCooldown          time.Duration
	RateLimitCount        int
	RateLimitWindow       time.Duration
	BanThreshold          int
	MaxAppeals            int
	MaxImages             int
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "127.0.0.1"),
			Port:            getEnv("DB_PORT", "3306"),
			User:            getEnv("DB_USER", "root"),
			Password:        os.Getenv("DB_PASSWORD"),
			DBName:          getEnv("DB_NAME", "cityzen"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			InitSchema:      getEnvBool("DB_INIT_SCHEMA", true),
		},
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("PORT", getEnv("SERVER_PORT", "8080")),
			RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),
			AllowedOrigin:  getEnv("CORS_ALLOWED_ORIGIN", "*"),
		},
		Auth: AuthConfig{
			JWTSecret:  os.Getenv("JWT_SECRET"),
			AdminToken: os.Getenv("ADMIN_TOKEN"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
			AreaTTL:  getEnvDuration("AREA_CACHE_TTL", 10*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:  getEnvList("KAFKA_BROKERS"),
			Topic:    getEnv("KAFKA_TOPIC", "cityzen.events"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "cityzen"),
			Retries:  getEnvInt("KAFKA_RETRY_MAX", 3),
			WriteMS:  getEnvInt("KAFKA_BATCH_TIMEOUT_MS", 50),
		},
		Upload: UploadConfig{
			BasePath: getEnv("UPLOAD_PATH", "./uploads/complaints"),
			MaxBytes: int64(getEnvInt("UPLOAD_MAX_BYTES", 32<<20)),
		},
		Log: LogConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Env:     getEnv("APP_ENV", "development"),
			Version: os.Getenv("APP_VERSION"),
		},
		Outbox: OutboxConfig{
			Interval:    getEnvDuration("OUTBOX_INTERVAL", 2*time.Second),
			BatchSize:   getEnvInt("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts: getEnvInt("OUTBOX_MAX_ATTEMPTS", 10),
			StaleAfter:  getEnvDuration("OUTBOX_STALE_AFTER", 5*time.Minute),
		},
		Policy: PolicyConfig{
			DuplicateRadiusMeters: getEnvFloat("DUPLICATE_RADIUS_METERS", 50),
			StalenessWindow:       getEnvDuration("STALENESS_WINDOW", 72*time.Hour),
			BumpCooldown:          getEnvDuration("BUMP_COOLDOWN", 72*time.Hour),
			RateLimitCount:        getEnvInt("SUBMISSION_RATE_LIMIT", 5),
			RateLimitWindow:       getEnvDuration("SUBMISSION_RATE_WINDOW", 15*time.Minute),
			BanThreshold:          getEnvInt("STRIKE_BAN_THRESHOLD", 5),
			MaxAppeals:            getEnvInt("MAX_APPEALS", 2),
			MaxImages:             getEnvInt("MAX_IMAGES_PER_REQUEST", 5),
		},
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration syntax ("90s", "72h").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
