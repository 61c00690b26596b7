package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ClaudeTransportAPI     = "api"
	ClaudeTransportBedrock = "bedrock"
)

var (
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is required")
	ErrMissingDatabaseDSN = errors.New("DB_DSN is required")
	ErrMissingAdminUserID = errors.New("TELEGRAM_ADMIN_USER_ID is required when TELEGRAM_BOT_TOKEN is set")
)

type Config struct {
	HTTP      HTTPConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Providers ProvidersConfig
	Credits   CreditsConfig
	Alerts    AlertsConfig
	Telegram  TelegramConfig
	Rate      RateConfig
	Crypto    CryptoConfig
	Log       LogConfig
}

type HTTPConfig struct {
	ListenAddr      string
	HealthPath      string
	MetricsPath     string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	PromptCacheTTL time.Duration
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type ProvidersConfig struct {
	OpenAIKey       string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicKey    string
	AnthropicModel  string
	GeminiKey       string
	GeminiModel     string
	ClaudeTransport string
	BedrockRegion   string
	BedrockModel    string

	ClientTimeout  time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	DefaultTimeout time.Duration
	// Timeouts overrides DefaultTimeout per provider name (gpt, claude, gemini).
	Timeouts map[string]time.Duration
}

type CreditsConfig struct {
	// InitialGrant is credited by `credits grant` when no amount is given.
	InitialGrant int64
}

type AlertsConfig struct {
	Stream         string
	Group          string
	ConsumerName   string
	Block          time.Duration
	Concurrency    int
	MaxRetries     int
	DedupeTTL      time.Duration
	OutageInterval time.Duration
}

type TelegramConfig struct {
	BotToken    string
	AdminUserID int64
	AlertChatID int64
}

type RateConfig struct {
	PerHour int64
}

// CryptoConfig holds the optional keys sealing interaction summaries. No
// keys means summaries are stored as plaintext.
type CryptoConfig struct {
	CurrentKeyID string
	Keys         map[string][]byte
}

type LogConfig struct {
	Level string
}

// Load reads the environment, after merging a .env file when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			ListenAddr:      mustEnv("HTTP_LISTEN_ADDR", ":8080"),
			HealthPath:      mustEnv("HEALTH_PATH", "/healthz"),
			MetricsPath:     mustEnv("METRICS_PATH", "/metrics"),
			CORSOrigins:     mustList("CORS_ORIGINS", []string{"*"}),
			ReadTimeout:     mustDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			ShutdownTimeout: mustDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			MaxBodyBytes:    mustInt64("HTTP_MAX_BODY_BYTES", 20<<20),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(mustEnv("DB_DRIVER", "postgres")),
			DSN:         mustEnv("DB_DSN", ""),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:           mustEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:       mustEnv("REDIS_PASSWORD", ""),
			DB:             mustInt("REDIS_DB", 0),
			PromptCacheTTL: mustDuration("PROMPT_CACHE_TTL", 10*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: mustEnv("JWT_SECRET", ""),
			Issuer:    mustEnv("JWT_ISSUER", ""),
		},
		Providers: ProvidersConfig{
			OpenAIKey:       mustEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:   mustEnv("OPENAI_BASE_URL", ""),
			OpenAIModel:     mustEnv("OPENAI_MODEL", ""),
			AnthropicKey:    mustEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  mustEnv("ANTHROPIC_MODEL", ""),
			GeminiKey:       mustEnv("GEMINI_API_KEY", ""),
			GeminiModel:     mustEnv("GEMINI_MODEL", ""),
			ClaudeTransport: strings.ToLower(mustEnv("CLAUDE_TRANSPORT", ClaudeTransportAPI)),
			BedrockRegion:   mustEnv("BEDROCK_REGION", "us-east-1"),
			BedrockModel:    mustEnv("BEDROCK_MODEL", ""),
			ClientTimeout:   mustDuration("HTTP_CLIENT_TIMEOUT", 120*time.Second),
			MaxRetries:      mustInt("HTTP_MAX_RETRIES", 2),
			BackoffBase:     mustDuration("HTTP_BACKOFF_BASE", 400*time.Millisecond),
			DefaultTimeout:  mustDuration("PROVIDER_TIMEOUT", 90*time.Second),
		},
		Credits: CreditsConfig{
			InitialGrant: mustInt64("CREDITS_INITIAL_GRANT", 10),
		},
		Alerts: AlertsConfig{
			Stream:         mustEnv("ALERT_STREAM", "maria:alerts"),
			Group:          mustEnv("ALERT_GROUP", "maria-alerters"),
			ConsumerName:   mustEnv("ALERT_CONSUMER_NAME", hostnameOr("alerter")),
			Block:          mustDuration("ALERT_BLOCK", 5*time.Second),
			Concurrency:    mustInt("ALERT_CONCURRENCY", 1),
			MaxRetries:     mustInt("ALERT_MAX_RETRIES", 3),
			DedupeTTL:      mustDuration("ALERT_DEDUPE_TTL", 24*time.Hour),
			OutageInterval: mustDuration("ALERT_OUTAGE_INTERVAL", time.Minute),
		},
		Telegram: TelegramConfig{
			BotToken:    mustEnv("TELEGRAM_BOT_TOKEN", ""),
			AdminUserID: mustInt64("TELEGRAM_ADMIN_USER_ID", 0),
			AlertChatID: mustInt64("TELEGRAM_ALERT_CHAT_ID", 0),
		},
		Rate: RateConfig{
			PerHour: mustInt64("RATE_LIMIT_PER_HOUR", 60),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	timeouts, err := loadProviderTimeouts()
	if err != nil {
		return nil, err
	}
	cfg.Providers.Timeouts = timeouts

	if cfg.Auth.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}
	if cfg.DB.DSN == "" {
		return nil, ErrMissingDatabaseDSN
	}
	if cfg.Providers.ClaudeTransport != ClaudeTransportAPI && cfg.Providers.ClaudeTransport != ClaudeTransportBedrock {
		return nil, fmt.Errorf("unsupported CLAUDE_TRANSPORT %q", cfg.Providers.ClaudeTransport)
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.AdminUserID <= 0 {
		return nil, ErrMissingAdminUserID
	}
	if cfg.Telegram.AlertChatID == 0 {
		cfg.Telegram.AlertChatID = cfg.Telegram.AdminUserID
	}

	cc, err := loadCryptoConfig()
	if err != nil {
		return nil, err
	}
	cfg.Crypto = cc

	return cfg, nil
}

// loadProviderTimeouts reads PROVIDER_TIMEOUT_<NAME> overrides.
func loadProviderTimeouts() (map[string]time.Duration, error) {
	out := map[string]time.Duration{}
	for _, name := range []string{"GPT", "CLAUDE", "GEMINI"} {
		key := "PROVIDER_TIMEOUT_" + name
		v := mustEnv(key, "")
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration, got %q", key, v)
		}
		out[strings.ToLower(name)] = d
	}
	return out, nil
}

func loadCryptoConfig() (CryptoConfig, error) {
	keysB64 := map[string]string{}

	if raw := mustEnv("LOG_SEAL_KEYS_JSON", ""); raw != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return CryptoConfig{}, fmt.Errorf("parse LOG_SEAL_KEYS_JSON: %w", err)
		}
		for id, val := range parsed {
			if strings.TrimSpace(id) == "" || strings.TrimSpace(val) == "" {
				continue
			}
			keysB64[id] = val
		}
	}

	for _, e := range os.Environ() {
		k, v, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if !strings.HasPrefix(k, "LOG_SEAL_KEY_") || !strings.HasSuffix(k, "_B64") || k == "LOG_SEAL_KEY_B64" {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, "LOG_SEAL_KEY_"), "_B64")
		if id == "" || v == "" {
			continue
		}
		keysB64[id] = v
	}

	current := mustEnv("LOG_SEAL_KEY_CURRENT_ID", "")
	if singleton := mustEnv("LOG_SEAL_KEY_B64", ""); singleton != "" {
		if current == "" {
			current = "default"
		}
		keysB64[current] = singleton
	}

	if len(keysB64) == 0 {
		return CryptoConfig{}, nil
	}

	keys := make(map[string][]byte, len(keysB64))
	for id, b64 := range keysB64 {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return CryptoConfig{}, fmt.Errorf("decode log seal key %q: %w", id, err)
		}
		if len(raw) != 32 {
			return CryptoConfig{}, fmt.Errorf("log seal key %q must be 32 bytes after base64 decode", id)
		}
		keys[id] = raw
	}

	if current == "" {
		if len(keys) > 1 {
			return CryptoConfig{}, errors.New("LOG_SEAL_KEY_CURRENT_ID is required when several keys are configured")
		}
		for id := range keys {
			current = id
		}
	}
	if _, ok := keys[current]; !ok {
		return CryptoConfig{}, fmt.Errorf("LOG_SEAL_KEY_CURRENT_ID=%q does not exist in provided keys", current)
	}

	return CryptoConfig{
		CurrentKeyID: current,
		Keys:         keys,
	}, nil
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustList(key string, def []string) []string {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustInt64(key string, def int64) int64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func hostnameOr(def string) string {
	h, err := os.Hostname()
	if err != nil || strings.TrimSpace(h) == "" {
		return def
	}
	return h
}
