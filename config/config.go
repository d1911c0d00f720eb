package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	WebRTC    WebRTCConfig
	AWS       AWSConfig
	Tracking  TrackingConfig
	Logging   LoggingConfig
	Reports   ReportsConfig
	RateLimit RateLimitConfig
}

// TrackingConfig holds focus monitor defaults applied to new sessions.
type TrackingConfig struct {
	HistorySize       int
	MarginRatio       float64
	CalibrationPoints int
	ResetPolicy       string // accumulate or reset
	SampleQueueSize   int
	MaxSampleRateHz   float64 // per WebSocket connection; 0 disables
	IdleTimeout       time.Duration
}

// LoggingConfig selects the zap level and an optional rotating file.
type LoggingConfig struct {
	Level      string
	File       string // empty = stdout only
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ReportsConfig holds report export settings.
type ReportsConfig struct {
	Bucket                string
	BreakerMaxRequests    uint32
	BreakerTimeout        time.Duration
	BreakerFailureMinimum uint32
}

// RateLimitConfig for HTTP requests, keyed by user or client IP.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// WebRTCConfig holds STUN/TURN ICE server URLs for the gaze data channel.
type WebRTCConfig struct {
	ICEUrls []string // e.g. stun:stun.l.google.com:19302 (comma-separated in env)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and presign settings.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	PresignExpireMinutes int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "attention"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		WebRTC: WebRTCConfig{
			ICEUrls: splitTrim(getEnv("WEBRTC_ICE_URLS", "stun:stun.l.google.com:19302"), ","),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Tracking: TrackingConfig{
			HistorySize:       getEnvInt("HISTORY_SIZE", 100),
			MarginRatio:       getEnvFloat("MARGIN_RATIO", 0.1),
			CalibrationPoints: getEnvInt("CALIBRATION_POINTS", 9),
			ResetPolicy:       getEnv("RESET_POLICY", "accumulate"),
			SampleQueueSize:   getEnvInt("SAMPLE_QUEUE_SIZE", 256),
			MaxSampleRateHz:   getEnvFloat("MAX_SAMPLE_RATE_HZ", 60),
			IdleTimeout:       getEnvDuration("TRACKER_IDLE_TIMEOUT", 30*time.Minute),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 10),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 7),
		},
		Reports: ReportsConfig{
			Bucket:                getEnv("AWS_S3_REPORTS_BUCKET", "attention-reports"),
			BreakerMaxRequests:    uint32(getEnvInt("REPORTS_BREAKER_MAX_REQUESTS", 1)),
			BreakerTimeout:        getEnvDuration("REPORTS_BREAKER_TIMEOUT", 60*time.Second),
			BreakerFailureMinimum: uint32(getEnvInt("REPORTS_BREAKER_MIN_FAILURES", 5)),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnv("RATE_LIMIT_ENABLED", "true") == "true",
			RequestsPerMinute: getEnvInt("RATE_LIMIT_PER_MIN", 600),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 60),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Tracking.MarginRatio < 0 {
		return fmt.Errorf("MARGIN_RATIO must be >= 0, got %v", c.Tracking.MarginRatio)
	}
	switch c.Tracking.ResetPolicy {
	case "accumulate", "reset":
	default:
		return fmt.Errorf("RESET_POLICY must be accumulate or reset, got %q", c.Tracking.ResetPolicy)
	}
	if c.Tracking.CalibrationPoints < 1 {
		return fmt.Errorf("CALIBRATION_POINTS must be >= 1, got %d", c.Tracking.CalibrationPoints)
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
