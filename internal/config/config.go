package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// SearchServiceURL: when set, tickets are pushed to search-service (POST /search/index/ticket).
	SearchServiceURL string

	KafkaBrokers     []string
	KafkaTopicTicket string

	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	Log struct {
		Format     string // json | text
		File       string // empty disables file output
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}

	S3 struct {
		Endpoint        string
		Region          string
		Bucket          string
		AccessKeyID     string
		SecretAccessKey string
		PresignTTL      time.Duration
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	WS struct {
		// EventsPerSecond and Burst bound inbound events per connection.
		EventsPerSecond float64
		Burst           int
		SendBuffer      int
		MaxMessageBytes int64
		// HandlerTimeout bounds the store work of one inbound event.
		HandlerTimeout time.Duration
		AllowedOrigins []string
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:          getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:         firstEnv("APP_PORT", "HTTP_PORT", "8097"),
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		SearchServiceURL: getEnv("SEARCH_SERVICE_URL", ""),
		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopicTicket: getEnv("KAFKA_TOPIC_TICKET", "ticket-events"),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "ticket_chat")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Log.Format = getEnv("LOG_FORMAT", "")
	cfg.Log.File = getEnv("LOG_FILE", "")
	cfg.S3.Endpoint = getEnv("S3_ENDPOINT", "")
	cfg.S3.Region = getEnv("S3_REGION", "us-east-1")
	cfg.S3.Bucket = getEnv("S3_BUCKET", "")
	cfg.S3.AccessKeyID = getEnv("S3_ACCESS_KEY_ID", "")
	cfg.S3.SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", "")
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.WS.AllowedOrigins = splitList(getEnv("WS_ALLOWED_ORIGINS", ""))

	var err error
	if cfg.Log.MaxSizeMB, err = getInt("LOG_MAX_SIZE_MB", 100); err != nil {
		return nil, err
	}
	if cfg.Log.MaxBackups, err = getInt("LOG_MAX_BACKUPS", 3); err != nil {
		return nil, err
	}
	if cfg.Log.MaxAgeDays, err = getInt("LOG_MAX_AGE_DAYS", 28); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.WS.Burst, err = getInt("WS_EVENT_BURST", 40); err != nil {
		return nil, err
	}
	if cfg.WS.SendBuffer, err = getInt("WS_SEND_BUFFER", 64); err != nil {
		return nil, err
	}
	maxBytes, err := getInt("WS_MAX_MESSAGE_BYTES", 64<<10)
	if err != nil {
		return nil, err
	}
	cfg.WS.MaxMessageBytes = int64(maxBytes)
	if cfg.WS.EventsPerSecond, err = strconv.ParseFloat(getEnv("WS_EVENTS_PER_SECOND", "20"), 64); err != nil {
		return nil, fmt.Errorf("config: WS_EVENTS_PER_SECOND: %w", err)
	}
	if cfg.WS.HandlerTimeout, err = time.ParseDuration(getEnv("WS_HANDLER_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("config: WS_HANDLER_TIMEOUT: %w", err)
	}
	if cfg.S3.PresignTTL, err = time.ParseDuration(getEnv("S3_PRESIGN_TTL", "1h")); err != nil {
		return nil, fmt.Errorf("config: S3_PRESIGN_TTL: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DB.Host == "" || c.DB.Database == "" {
		return errors.New("config: DB_HOST and DB_DATABASE are required")
	}
	if c.AppEnv == "production" && c.DB.Password == "" {
		return errors.New("config: in production DB_PASSWORD is required")
	}
	if c.S3.Bucket != "" && (c.S3.AccessKeyID == "" || c.S3.SecretAccessKey == "") {
		return errors.New("config: S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required when S3_BUCKET is set")
	}
	if c.WS.EventsPerSecond <= 0 || c.WS.Burst <= 0 {
		return errors.New("config: WS_EVENTS_PER_SECOND and WS_EVENT_BURST must be positive")
	}
	if c.WS.HandlerTimeout <= 0 {
		return errors.New("config: WS_HANDLER_TIMEOUT must be positive")
	}
	if c.WS.SendBuffer <= 0 {
		return errors.New("config: WS_SEND_BUFFER must be positive")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

// splitList splits "a, b,c" into its non-empty trimmed parts.
func splitList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
