package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Mode      string
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Relay     RelayConfig
	Mail      MailConfig
	SMTP      SMTPConfig
	Alert     AlertConfig
	Storage   StorageConfig
	Queue     QueueConfig
	Drain     DrainConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Contact   ContactConfig
	Brand     BrandConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWTConfig struct {
	Secret string
}

// RelayConfig points at the HTTP mail relay.
type RelayConfig struct {
	URL        string
	Token      string
	HMACSecret string
	Timeout    time.Duration
}

type MailConfig struct {
	Transport     string // relay, smtp
	To            string
	FromAutoReply string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type AlertConfig struct {
	WebhookURL string
	Format     string // slack, discord
	Timeout    time.Duration
}

type StorageConfig struct {
	Driver   string // file, memory, redis, postgres, s3
	BasePath string
	S3       S3Config
}

type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Prefix    string
}

type QueueConfig struct {
	Key          string
	MaxConflicts int
}

type DrainConfig struct {
	Mode          string // cron, asynq, off
	Schedule      string
	AttemptBudget int
	StaleAfter    time.Duration
	APIKey        string
	Timeout       time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	Username string
	DB       int
}

type RateLimitConfig struct {
	Enabled      bool
	MaxPerWindow int
	Window       time.Duration
}

type ContactConfig struct {
	EmailAllowlist  []string
	DisposableExtra []string
}

// BrandConfig fills the signature block of auto-replies.
type BrandConfig struct {
	Name     string
	Title    string
	Email    string
	Website  string
	LinkedIn string
	GitHub   string
}

func Load() (*Config, error) {
	cfg := &Config{
		Mode: getEnv("MODE", "development"),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "localhost"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Name:     getEnv("POSTGRES_DB", "contactrelay"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Relay: RelayConfig{
			URL:        getEnv("STELLAR_RELAY_URL", ""),
			Token:      getEnv("STELLAR_RELAY_TOKEN", ""),
			HMACSecret: getEnv("STELLAR_HMAC_SECRET", ""),
			Timeout:    getEnvAsDuration("STELLAR_RELAY_TIMEOUT", 10*time.Second),
		},
		Mail: MailConfig{
			Transport:     getEnv("MAIL_TRANSPORT", "relay"),
			To:            getEnv("MAIL_TO", ""),
			FromAutoReply: getEnv("MAIL_FROM_AUTOREPLY", ""),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
		},
		Alert: AlertConfig{
			WebhookURL: getEnv("ALERT_WEBHOOK_URL", getEnv("SLACK_WEBHOOK_URL", "")),
			Format:     getEnv("ALERT_FORMAT", "slack"),
			Timeout:    getEnvAsDuration("ALERT_TIMEOUT", 5*time.Second),
		},
		Storage: StorageConfig{
			Driver:   getEnv("STORE_DRIVER", "file"),
			BasePath: getEnv("STORAGE_BASE_PATH", "./data"),
			S3: S3Config{
				Bucket:    getEnv("S3_BUCKET", ""),
				Region:    getEnv("S3_REGION", ""),
				Endpoint:  getEnv("S3_ENDPOINT", ""),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
				Prefix:    getEnv("S3_PREFIX", "mail/"),
			},
		},
		Queue: QueueConfig{
			Key:          getEnv("MAIL_QUEUE_KEY", "queue"),
			MaxConflicts: getEnvAsInt("MAIL_QUEUE_MAX_CONFLICTS", 5),
		},
		Drain: DrainConfig{
			Mode:          getEnv("DRAIN_MODE", "cron"),
			Schedule:      getEnv("DRAIN_SCHEDULE", "*/5 * * * *"),
			AttemptBudget: getEnvAsInt("DRAIN_ATTEMPT_BUDGET", 3),
			StaleAfter:    getEnvAsDuration("DRAIN_STALE_AFTER", 0),
			APIKey:        getEnv("DRAIN_API_KEY", ""),
			Timeout:       getEnvAsDuration("DRAIN_TIMEOUT", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			Username: getEnv("REDIS_USERNAME", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getEnvAsBool("RATE_LIMIT_ENABLED", true),
			MaxPerWindow: getEnvAsInt("RATE_LIMIT_MAX", 5),
			Window:       getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Contact: ContactConfig{
			EmailAllowlist:  getEnvAsList("EMAIL_ALLOWLIST"),
			DisposableExtra: getEnvAsList("DISPOSABLE_EXTRA"),
		},
		Brand: BrandConfig{
			Name:     getEnv("BRAND_NAME", ""),
			Title:    getEnv("BRAND_TITLE", ""),
			Email:    getEnv("BRAND_EMAIL", ""),
			Website:  getEnv("BRAND_WEBSITE", ""),
			LinkedIn: getEnv("BRAND_LINKEDIN", ""),
			GitHub:   getEnv("BRAND_GITHUB", ""),
		},
	}

	return cfg, nil
}

// IsProduction reports whether MODE=production.
func (c *Config) IsProduction() bool {
	return c.Mode == "production"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadFromFile reads a JSON config written by Save. Values missing from the
// file keep the environment defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
