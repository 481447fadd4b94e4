package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures the runtime configuration for the application.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Storage    StorageConfig
	Images     ImageConfig
	Pagination PaginationConfig
	Logging    LoggingConfig
}

// ServerConfig configures the HTTP server runtime behavior.
type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	AllowedOrigins    []string
}

// DatabaseConfig contains the database connection settings.
type DatabaseConfig struct {
	URL             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	UseMock         bool
	// LiveSchema makes integrity checks read the catalog on every call
	// instead of the snapshot taken at startup.
	LiveSchema bool
}

// StorageConfig points at the bucket holding product images.
type StorageConfig struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	PublicBaseURL   string
	UseMemory       bool
}

// ImageConfig bounds remote image downloads.
type ImageConfig struct {
	FetchTimeout time.Duration
	MaxBytes     int64
}

type PaginationConfig struct {
	DefaultSize int
	MaxSize     int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load inspects the environment and builds a Config value.
func Load() (Config, error) {
	cfg := Config{}

	cfg.Server = ServerConfig{
		Addr: firstNonEmpty(
			os.Getenv("SERVER_ADDR"),
			os.Getenv("ADDR"),
			":8080",
		),
		ReadHeaderTimeout: parseDurationWithDefault(os.Getenv("SERVER_READ_HEADER_TIMEOUT"), 10*time.Second),
		ShutdownTimeout:   parseDurationWithDefault(os.Getenv("SERVER_SHUTDOWN_TIMEOUT"), 5*time.Second),
		AllowedOrigins:    splitList(firstNonEmpty(os.Getenv("CORS_ALLOWED_ORIGINS"), "*")),
	}

	cfg.Database = DatabaseConfig{
		URL: firstNonEmpty(
			os.Getenv("DATABASE_URL"),
			os.Getenv("DB_URL"),
			postgresURL(),
		),
		MaxIdleConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_IDLE_CONNS"), 5),
		MaxOpenConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_OPEN_CONNS"), 25),
		ConnMaxLifetime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_LIFETIME"), time.Hour),
		ConnMaxIdleTime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_IDLE_TIME"), 15*time.Minute),
		UseMock:         parseBoolWithDefault(os.Getenv("DATABASE_USE_MOCK"), false),
		LiveSchema:      parseBoolWithDefault(os.Getenv("DATABASE_LIVE_SCHEMA"), false),
	}

	cfg.Storage = StorageConfig{
		Bucket: firstNonEmpty(
			os.Getenv("S3_USER_MEDIA_NAME"),
			os.Getenv("AWS_BUCKET_USER_MEDIA_NAME"),
		),
		Region: firstNonEmpty(
			os.Getenv("S3_USER_MEDIA_REGION"),
			os.Getenv("AWS_BUCKET_USER_MEDIA_REGION"),
			os.Getenv("AWS_REGION"),
		),
		AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		Endpoint:        strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		PublicBaseURL:   strings.TrimSpace(os.Getenv("OBJECT_STORAGE_PUBLIC_BASE_URL")),
		UseMemory:       parseBoolWithDefault(os.Getenv("OBJECT_STORAGE_USE_MEMORY"), false),
	}

	cfg.Images = ImageConfig{
		FetchTimeout: parseDurationWithDefault(os.Getenv("IMAGE_FETCH_TIMEOUT"), 10*time.Second),
		MaxBytes:     int64(parseIntWithDefault(os.Getenv("IMAGE_MAX_BYTES"), 10<<20)),
	}

	cfg.Pagination = PaginationConfig{
		DefaultSize: parseIntWithDefault(os.Getenv("PAGE_DEFAULT_SIZE"), 50),
		MaxSize:     parseIntWithDefault(os.Getenv("PAGE_MAX_SIZE"), 100),
	}

	cfg.Logging = LoggingConfig{
		Level:  firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
		Format: firstNonEmpty(os.Getenv("LOG_FORMAT"), "text"),
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return Config{}, fmt.Errorf("server address must not be empty")
	}
	if cfg.Pagination.DefaultSize < 1 || cfg.Pagination.MaxSize < cfg.Pagination.DefaultSize {
		return Config{}, fmt.Errorf("invalid page sizes: default %d, max %d",
			cfg.Pagination.DefaultSize, cfg.Pagination.MaxSize)
	}

	return cfg, nil
}

// postgresURL assembles a connection URL from the discrete POSTGRES_* variables.
func postgresURL() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		return ""
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, firstNonEmpty(os.Getenv("POSTGRES_PORT"), "5432")),
		Path:   "/" + os.Getenv("POSTGRES_DB"),
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		u.User = url.UserPassword(user, os.Getenv("POSTGRES_PASSWORD"))
	}
	return u.String()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func parseIntWithDefault(value string, def int) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationWithDefault(value string, def time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func parseBoolWithDefault(value string, def bool) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
