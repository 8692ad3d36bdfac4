package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	dbconfig "classboard/pkg/database"
	"classboard/pkg/types"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	developmentJWTSecret = "classboard-development-secret"
)

// Config is the full service configuration.
type Config struct {
	Env       string           `json:"env"`
	NodeID    int64            `json:"node_id"`
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Redis     *RedisConfig     `json:"redis"`
	Auth      *AuthConfig      `json:"auth"`
	Board     *BoardConfig     `json:"board"`
	Telemetry *TelemetryConfig `json:"telemetry"`
}

type DatabaseConfig struct {
	Path           string        `json:"path"`
	Timeout        time.Duration `json:"timeout"`
	MaxConnections int           `json:"max_connections"`
}

type HTTPConfig struct {
	Port            int           `json:"port"`
	Host            string        `json:"host"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// RedisConfig enables cross-instance room fan-out when URL is set.
type RedisConfig struct {
	URL           string `json:"url"`
	ChannelPrefix string `json:"channel_prefix"`
}

type AuthConfig struct {
	JWTSecret string        `json:"jwt_secret"`
	Issuer    string        `json:"issuer"`
	TokenTTL  time.Duration `json:"token_ttl"`
}

// BoardConfig holds question board policy.
type BoardConfig struct {
	DuplicateScope     string `json:"duplicate_scope"`
	MaxQuestionLength  int    `json:"max_question_length"`
	MaxReplyLength     int    `json:"max_reply_length"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	LedgerQueueSize    int    `json:"ledger_queue_size"`
}

type TelemetryConfig struct {
	Endpoint       string `json:"endpoint"`
	Headers        string `json:"headers"`
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
}

// DefaultConfig returns settings suitable for a single-instance deployment.
func DefaultConfig() *Config {
	return &Config{
		Env:    EnvDevelopment,
		NodeID: 1,
		Database: &DatabaseConfig{
			Path:           "./data/classboard.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Redis: &RedisConfig{
			ChannelPrefix: "classboard:room:",
		},
		Auth: &AuthConfig{
			JWTSecret: developmentJWTSecret,
			Issuer:    "classboard",
			TokenTTL:  12 * time.Hour,
		},
		Board: &BoardConfig{
			DuplicateScope:     types.DuplicateScopeSession,
			MaxQuestionLength:  types.MaxQuestionLength,
			MaxReplyLength:     types.MaxReplyLength,
			RateLimitPerMinute: 100,
			LedgerQueueSize:    1000,
		},
		Telemetry: &TelemetryConfig{
			ServiceName:    "classboard",
			ServiceVersion: "dev",
		},
	}
}

func (c *Config) IsProduction() bool  { return c.Env == EnvProduction }
func (c *Config) IsDevelopment() bool { return c.Env == EnvDevelopment }

func (c *RedisConfig) Enabled() bool     { return c != nil && c.URL != "" }
func (c *TelemetryConfig) Enabled() bool { return c != nil && c.Endpoint != "" }

// Addr returns the listen address.
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Store converts the database section into the store configuration.
func (c *DatabaseConfig) Store() *dbconfig.Config {
	cfg := dbconfig.DefaultConfig()
	cfg.DatabasePath = c.Path
	if c.MaxConnections > 0 {
		cfg.MaxConnections = c.MaxConnections
	}
	return cfg
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Env != EnvDevelopment && c.Env != EnvProduction && c.Env != "test" {
		return fmt.Errorf("unknown environment %q", c.Env)
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("node id must be between 0 and 1023")
	}

	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	for _, o := range c.HTTP.AllowedOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return fmt.Errorf("allowed origin %q needs an http or https scheme", o)
		}
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Auth == nil || c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.IsProduction() && c.Auth.JWTSecret == developmentJWTSecret {
		return fmt.Errorf("JWT secret must be set in production")
	}

	if c.Board == nil {
		return fmt.Errorf("board configuration is required")
	}
	if !types.IsValidDuplicateScope(c.Board.DuplicateScope) {
		return fmt.Errorf("duplicate scope must be %q or %q", types.DuplicateScopeSession, types.DuplicateScopeAuthor)
	}
	if c.Board.MaxQuestionLength <= 0 || c.Board.MaxReplyLength <= 0 {
		return fmt.Errorf("text length limits must be positive")
	}
	if c.Board.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.Board.LedgerQueueSize <= 0 {
		return fmt.Errorf("ledger queue size must be positive")
	}

	if c.Redis == nil || c.Telemetry == nil {
		return fmt.Errorf("redis and telemetry sections are required")
	}
	return nil
}

// LoadFromEnv reads CLASSBOARD_* variables over the defaults. In
// development a .env file in the working directory is loaded first.
func LoadFromEnv() *Config {
	if getEnv("CLASSBOARD_ENV", EnvDevelopment) == EnvDevelopment {
		_ = godotenv.Load(".env")
	}

	config := DefaultConfig()

	config.Env = getEnv("CLASSBOARD_ENV", config.Env)
	config.NodeID = int64(getEnvInt("CLASSBOARD_NODE_ID", int(config.NodeID)))

	config.Database.Path = getEnv("CLASSBOARD_DATABASE_PATH", config.Database.Path)
	config.Database.Timeout = getEnvDuration("CLASSBOARD_DATABASE_TIMEOUT", config.Database.Timeout)
	config.Database.MaxConnections = getEnvInt("CLASSBOARD_DATABASE_MAX_CONNECTIONS", config.Database.MaxConnections)

	config.HTTP.Port = getEnvInt("CLASSBOARD_HTTP_PORT", config.HTTP.Port)
	config.HTTP.Host = getEnv("CLASSBOARD_HTTP_HOST", config.HTTP.Host)
	config.HTTP.ReadTimeout = getEnvDuration("CLASSBOARD_HTTP_READ_TIMEOUT", config.HTTP.ReadTimeout)
	config.HTTP.WriteTimeout = getEnvDuration("CLASSBOARD_HTTP_WRITE_TIMEOUT", config.HTTP.WriteTimeout)
	config.HTTP.ShutdownTimeout = getEnvDuration("CLASSBOARD_HTTP_SHUTDOWN_TIMEOUT", config.HTTP.ShutdownTimeout)
	if origins := os.Getenv("CLASSBOARD_HTTP_ALLOWED_ORIGINS"); origins != "" {
		config.HTTP.AllowedOrigins = splitList(origins)
	}

	config.WebSocket.PingInterval = getEnvDuration("CLASSBOARD_WEBSOCKET_PING_INTERVAL", config.WebSocket.PingInterval)
	config.WebSocket.ReadTimeout = getEnvDuration("CLASSBOARD_WEBSOCKET_READ_TIMEOUT", config.WebSocket.ReadTimeout)
	config.WebSocket.WriteTimeout = getEnvDuration("CLASSBOARD_WEBSOCKET_WRITE_TIMEOUT", config.WebSocket.WriteTimeout)
	config.WebSocket.BufferSize = getEnvInt("CLASSBOARD_WEBSOCKET_BUFFER_SIZE", config.WebSocket.BufferSize)

	config.Redis.URL = getEnv("CLASSBOARD_REDIS_URL", config.Redis.URL)
	config.Redis.ChannelPrefix = getEnv("CLASSBOARD_REDIS_CHANNEL_PREFIX", config.Redis.ChannelPrefix)

	config.Auth.JWTSecret = getEnv("CLASSBOARD_JWT_SECRET", config.Auth.JWTSecret)
	config.Auth.Issuer = getEnv("CLASSBOARD_JWT_ISSUER", config.Auth.Issuer)
	config.Auth.TokenTTL = getEnvDuration("CLASSBOARD_JWT_TTL", config.Auth.TokenTTL)

	config.Board.DuplicateScope = getEnv("CLASSBOARD_DUPLICATE_SCOPE", config.Board.DuplicateScope)
	config.Board.MaxQuestionLength = getEnvInt("CLASSBOARD_MAX_QUESTION_LENGTH", config.Board.MaxQuestionLength)
	config.Board.MaxReplyLength = getEnvInt("CLASSBOARD_MAX_REPLY_LENGTH", config.Board.MaxReplyLength)
	config.Board.RateLimitPerMinute = getEnvInt("CLASSBOARD_RATE_LIMIT_PER_MINUTE", config.Board.RateLimitPerMinute)
	config.Board.LedgerQueueSize = getEnvInt("CLASSBOARD_LEDGER_QUEUE_SIZE", config.Board.LedgerQueueSize)

	config.Telemetry.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", config.Telemetry.Endpoint)
	config.Telemetry.Headers = getEnv("OTEL_EXPORTER_OTLP_HEADERS", config.Telemetry.Headers)
	config.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", config.Telemetry.ServiceName)
	config.Telemetry.ServiceVersion = getEnv("OTEL_SERVICE_VERSION", config.Telemetry.ServiceVersion)

	return config
}

// ConfigFile is the JSON shape on disk; durations are strings such as "30s".
type ConfigFile struct {
	Env       string               `json:"env"`
	NodeID    *int64               `json:"node_id"`
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Redis     *RedisConfig         `json:"redis"`
	Auth      *AuthConfigFile      `json:"auth"`
	Board     *BoardConfig         `json:"board"`
	Telemetry *TelemetryConfig     `json:"telemetry"`
}

type DatabaseConfigFile struct {
	Path           string `json:"path"`
	Timeout        string `json:"timeout"`
	MaxConnections int    `json:"max_connections"`
}

type HTTPConfigFile struct {
	Port            int      `json:"port"`
	Host            string   `json:"host"`
	ReadTimeout     string   `json:"read_timeout"`
	WriteTimeout    string   `json:"write_timeout"`
	ShutdownTimeout string   `json:"shutdown_timeout"`
	AllowedOrigins  []string `json:"allowed_origins"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type AuthConfigFile struct {
	JWTSecret string `json:"jwt_secret"`
	Issuer    string `json:"issuer"`
	TokenTTL  string `json:"token_ttl"`
}

// LoadFromFile reads a JSON file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

// LoadConfigWithPrecedence resolves file > environment > defaults. An empty
// path skips the file.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := LoadFromEnv()

	if path != "" {
		if err := applyFile(config, path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.Env != "" {
		config.Env = file.Env
	}
	if file.NodeID != nil {
		config.NodeID = *file.NodeID
	}

	var errs []string
	duration := func(field, value string, dst *time.Duration) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", field, err))
			return
		}
		*dst = d
	}

	if f := file.Database; f != nil {
		if f.Path != "" {
			config.Database.Path = f.Path
		}
		if f.MaxConnections > 0 {
			config.Database.MaxConnections = f.MaxConnections
		}
		duration("database.timeout", f.Timeout, &config.Database.Timeout)
	}

	if f := file.HTTP; f != nil {
		if f.Port > 0 {
			config.HTTP.Port = f.Port
		}
		if f.Host != "" {
			config.HTTP.Host = f.Host
		}
		if len(f.AllowedOrigins) > 0 {
			config.HTTP.AllowedOrigins = f.AllowedOrigins
		}
		duration("http.read_timeout", f.ReadTimeout, &config.HTTP.ReadTimeout)
		duration("http.write_timeout", f.WriteTimeout, &config.HTTP.WriteTimeout)
		duration("http.shutdown_timeout", f.ShutdownTimeout, &config.HTTP.ShutdownTimeout)
	}

	if f := file.WebSocket; f != nil {
		if f.BufferSize > 0 {
			config.WebSocket.BufferSize = f.BufferSize
		}
		duration("websocket.ping_interval", f.PingInterval, &config.WebSocket.PingInterval)
		duration("websocket.read_timeout", f.ReadTimeout, &config.WebSocket.ReadTimeout)
		duration("websocket.write_timeout", f.WriteTimeout, &config.WebSocket.WriteTimeout)
	}

	if f := file.Redis; f != nil {
		if f.URL != "" {
			config.Redis.URL = f.URL
		}
		if f.ChannelPrefix != "" {
			config.Redis.ChannelPrefix = f.ChannelPrefix
		}
	}

	if f := file.Auth; f != nil {
		if f.JWTSecret != "" {
			config.Auth.JWTSecret = f.JWTSecret
		}
		if f.Issuer != "" {
			config.Auth.Issuer = f.Issuer
		}
		duration("auth.token_ttl", f.TokenTTL, &config.Auth.TokenTTL)
	}

	if f := file.Board; f != nil {
		if f.DuplicateScope != "" {
			config.Board.DuplicateScope = f.DuplicateScope
		}
		if f.MaxQuestionLength > 0 {
			config.Board.MaxQuestionLength = f.MaxQuestionLength
		}
		if f.MaxReplyLength > 0 {
			config.Board.MaxReplyLength = f.MaxReplyLength
		}
		if f.RateLimitPerMinute > 0 {
			config.Board.RateLimitPerMinute = f.RateLimitPerMinute
		}
		if f.LedgerQueueSize > 0 {
			config.Board.LedgerQueueSize = f.LedgerQueueSize
		}
	}

	if f := file.Telemetry; f != nil {
		if f.Endpoint != "" {
			config.Telemetry.Endpoint = f.Endpoint
		}
		if f.Headers != "" {
			config.Telemetry.Headers = f.Headers
		}
		if f.ServiceName != "" {
			config.Telemetry.ServiceName = f.ServiceName
		}
		if f.ServiceVersion != "" {
			config.Telemetry.ServiceVersion = f.ServiceVersion
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid durations in %s: %s", path, strings.Join(errs, "; "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
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

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
