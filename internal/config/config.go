package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "NEXA_"

// Bot providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Config is the process configuration. Sources apply in order:
// defaults, then the environment, then the config file.
type Config struct {
	Database  *DatabaseConfig  `json:"database" yaml:"database"`
	HTTP      *HTTPConfig      `json:"http" yaml:"http"`
	WebSocket *WebSocketConfig `json:"websocket" yaml:"websocket"`
	Auth      *AuthConfig      `json:"auth" yaml:"auth"`
	Redis     *RedisConfig     `json:"redis" yaml:"redis"`
	Chat      *ChatConfig      `json:"chat" yaml:"chat"`
	Bot       *BotConfig       `json:"bot" yaml:"bot"`
	Log       *LogConfig       `json:"log" yaml:"log"`
}

type DatabaseConfig struct {
	Path           string   `json:"path" yaml:"path"`
	Timeout        Duration `json:"timeout" yaml:"timeout"`
	MaxConnections int      `json:"max_connections" yaml:"max_connections"`
}

type HTTPConfig struct {
	Host         string   `json:"host" yaml:"host"`
	Port         int      `json:"port" yaml:"port"`
	ReadTimeout  Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout" yaml:"write_timeout"`
}

// Address is the listen address.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type WebSocketConfig struct {
	PingInterval     Duration `json:"ping_interval" yaml:"ping_interval"`
	ReadTimeout      Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout     Duration `json:"write_timeout" yaml:"write_timeout"`
	BufferSize       int      `json:"buffer_size" yaml:"buffer_size"`
	AuthTimeout      Duration `json:"auth_timeout" yaml:"auth_timeout"`
	HandshakeTimeout Duration `json:"handshake_timeout" yaml:"handshake_timeout"`
	AllowedOrigins   []string `json:"allowed_origins" yaml:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret    string   `json:"jwt_secret" yaml:"jwt_secret"`
	Issuer       string   `json:"issuer" yaml:"issuer"`
	TokenTTL     Duration `json:"token_ttl" yaml:"token_ttl"`
	CookieName   string   `json:"cookie_name" yaml:"cookie_name"`
	CookieSecure bool     `json:"cookie_secure" yaml:"cookie_secure"`
}

// RedisConfig selects the revocation store. An empty Addr keeps revocations
// in memory.
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
}

type ChatConfig struct {
	RateLimit    int      `json:"rate_limit" yaml:"rate_limit"`
	RateWindow   Duration `json:"rate_window" yaml:"rate_window"`
	HistoryLimit int      `json:"history_limit" yaml:"history_limit"`
}

// BotConfig selects the text generator behind the course chatbot. Without
// an API key for Gemini, every chatbot request gets the fallback reply.
type BotConfig struct {
	Provider     string `json:"provider" yaml:"provider"`
	BaseURL      string `json:"base_url" yaml:"base_url"`
	APIKey       string `json:"api_key" yaml:"api_key"`
	Model        string `json:"model" yaml:"model"`
	HistoryLimit int    `json:"history_limit" yaml:"history_limit"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// DefaultConfig returns a configuration that only lacks the JWT secret.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:           "./data/nexa.db",
			Timeout:        Duration{30 * time.Second},
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         5000,
			ReadTimeout:  Duration{30 * time.Second},
			WriteTimeout: Duration{60 * time.Second},
		},
		WebSocket: &WebSocketConfig{
			PingInterval:     Duration{30 * time.Second},
			ReadTimeout:      Duration{60 * time.Second},
			WriteTimeout:     Duration{5 * time.Second},
			BufferSize:       100,
			AuthTimeout:      Duration{10 * time.Second},
			HandshakeTimeout: Duration{10 * time.Second},
		},
		Auth: &AuthConfig{
			Issuer:     "nexa",
			TokenTTL:   Duration{7 * 24 * time.Hour},
			CookieName: "jwt",
		},
		Redis: &RedisConfig{},
		Chat: &ChatConfig{
			RateLimit:    100,
			RateWindow:   Duration{time.Minute},
			HistoryLimit: 200,
		},
		Bot: &BotConfig{
			Provider:     ProviderGemini,
			Model:        "gemini-1.5-flash",
			HistoryLimit: 10,
		},
		Log: &LogConfig{Level: "info"},
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Database == nil || c.HTTP == nil || c.WebSocket == nil || c.Auth == nil ||
		c.Redis == nil || c.Chat == nil || c.Bot == nil || c.Log == nil {
		return errors.New("every configuration section is required")
	}

	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.Database.Path != "", "database path cannot be empty")
	check(c.Database.Timeout.Duration > 0, "database timeout must be positive")
	check(c.Database.MaxConnections > 0, "database max connections must be positive")

	check(c.HTTP.Host != "", "HTTP host cannot be empty")
	check(c.HTTP.Port > 0 && c.HTTP.Port <= 65535, "HTTP port must be between 1 and 65535")
	check(c.HTTP.ReadTimeout.Duration > 0, "HTTP read timeout must be positive")
	check(c.HTTP.WriteTimeout.Duration > 0, "HTTP write timeout must be positive")

	check(c.WebSocket.PingInterval.Duration > 0, "WebSocket ping interval must be positive")
	check(c.WebSocket.ReadTimeout.Duration > c.WebSocket.PingInterval.Duration,
		"WebSocket read timeout must exceed the ping interval")
	check(c.WebSocket.WriteTimeout.Duration > 0, "WebSocket write timeout must be positive")
	check(c.WebSocket.BufferSize > 0, "WebSocket buffer size must be positive")
	check(c.WebSocket.AuthTimeout.Duration > 0, "WebSocket auth timeout must be positive")
	check(c.WebSocket.HandshakeTimeout.Duration > 0, "WebSocket handshake timeout must be positive")

	check(strings.TrimSpace(c.Auth.JWTSecret) != "", "auth jwt secret is required")
	check(c.Auth.TokenTTL.Duration > 0, "auth token ttl must be positive")
	check(c.Auth.CookieName != "", "auth cookie name cannot be empty")

	check(c.Chat.RateLimit > 0, "chat rate limit must be positive")
	check(c.Chat.RateWindow.Duration > 0, "chat rate window must be positive")
	check(c.Chat.HistoryLimit >= 0, "chat history limit cannot be negative")

	switch c.Bot.Provider {
	case ProviderGemini, ProviderNone:
	case ProviderOpenAI:
		check(c.Bot.BaseURL != "", "bot base url is required for the openai provider")
	default:
		errs = append(errs, fmt.Errorf("unknown bot provider %q", c.Bot.Provider))
	}
	check(c.Bot.Provider == ProviderNone || c.Bot.Model != "", "bot model cannot be empty")
	check(c.Bot.HistoryLimit > 0, "bot history limit must be positive")

	return errors.Join(errs...)
}

type binding struct {
	key   string
	apply func(string) error
}

func (c *Config) bindings() []binding {
	return []binding{
		{"DATABASE_PATH", setString(&c.Database.Path)},
		{"DATABASE_TIMEOUT", setDuration(&c.Database.Timeout)},
		{"DATABASE_MAX_CONNECTIONS", setInt(&c.Database.MaxConnections)},
		{"HTTP_HOST", setString(&c.HTTP.Host)},
		{"HTTP_PORT", setInt(&c.HTTP.Port)},
		{"HTTP_READ_TIMEOUT", setDuration(&c.HTTP.ReadTimeout)},
		{"HTTP_WRITE_TIMEOUT", setDuration(&c.HTTP.WriteTimeout)},
		{"WEBSOCKET_PING_INTERVAL", setDuration(&c.WebSocket.PingInterval)},
		{"WEBSOCKET_READ_TIMEOUT", setDuration(&c.WebSocket.ReadTimeout)},
		{"WEBSOCKET_WRITE_TIMEOUT", setDuration(&c.WebSocket.WriteTimeout)},
		{"WEBSOCKET_BUFFER_SIZE", setInt(&c.WebSocket.BufferSize)},
		{"WEBSOCKET_AUTH_TIMEOUT", setDuration(&c.WebSocket.AuthTimeout)},
		{"WEBSOCKET_HANDSHAKE_TIMEOUT", setDuration(&c.WebSocket.HandshakeTimeout)},
		{"WEBSOCKET_ALLOWED_ORIGINS", setList(&c.WebSocket.AllowedOrigins)},
		{"AUTH_JWT_SECRET", setString(&c.Auth.JWTSecret)},
		{"AUTH_ISSUER", setString(&c.Auth.Issuer)},
		{"AUTH_TOKEN_TTL", setDuration(&c.Auth.TokenTTL)},
		{"AUTH_COOKIE_NAME", setString(&c.Auth.CookieName)},
		{"AUTH_COOKIE_SECURE", setBool(&c.Auth.CookieSecure)},
		{"REDIS_ADDR", setString(&c.Redis.Addr)},
		{"REDIS_PASSWORD", setString(&c.Redis.Password)},
		{"CHAT_RATE_LIMIT", setInt(&c.Chat.RateLimit)},
		{"CHAT_RATE_WINDOW", setDuration(&c.Chat.RateWindow)},
		{"CHAT_HISTORY_LIMIT", setInt(&c.Chat.HistoryLimit)},
		{"BOT_PROVIDER", setString(&c.Bot.Provider)},
		{"BOT_BASE_URL", setString(&c.Bot.BaseURL)},
		{"BOT_API_KEY", setString(&c.Bot.APIKey)},
		{"BOT_MODEL", setString(&c.Bot.Model)},
		{"BOT_HISTORY_LIMIT", setInt(&c.Bot.HistoryLimit)},
		{"LOG_LEVEL", setString(&c.Log.Level)},
	}
}

// ApplyEnv overrides c with every NEXA_* variable that is set. Malformed
// values are reported, not ignored.
func (c *Config) ApplyEnv() error {
	var errs []error
	for _, b := range c.bindings() {
		value, ok := os.LookupEnv(EnvPrefix + b.key)
		if !ok {
			continue
		}
		if err := b.apply(strings.TrimSpace(value)); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, b.key, err))
		}
	}
	return errors.Join(errs...)
}

// ApplyFile overlays the JSON or YAML file at path onto c. Keys absent from
// the file keep their current values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv exports the variables of ./.env that are not already set.
// A missing file is not an error.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// LoadFromEnv returns the defaults overridden by the environment.
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

// Load reads .env from the working directory when present, then builds the
// configuration from defaults, the environment and the file named by path or
// by NEXA_CONFIG_FILE, and validates the result.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	config, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG_FILE")
	}
	if path != "" {
		if err := config.ApplyFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}

func setDuration(dst *Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		dst.Duration = d
		return nil
	}
}

func setList(dst *[]string) func(string) error {
	return func(v string) error {
		var items []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*dst = items
		return nil
	}
}
