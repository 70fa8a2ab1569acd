// Package config loads and hot-reloads the gateway's JSON configuration files.
package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// Config holds the deployment-level settings: channel credentials, store
// endpoints, and the JWT signing secret. It maps directly to config.json.
type Config struct {
	// Telegram carries the bot token and webhook secret for the Telegram ingress.
	Telegram TelegramConfig `json:"telegram"`
	// Redis is the connection descriptor for the managed key-value store.
	Redis RedisConfig `json:"redis"`
	// ObjectStore describes the S3-compatible bucket used for Telegram media uploads.
	ObjectStore ObjectStoreConfig `json:"object_store"`
	// JWTSecret signs and verifies web session tokens. Required.
	JWTSecret string `json:"jwt_secret"`
}

// TelegramConfig carries the credentials for the Telegram ingress adapter.
type TelegramConfig struct {
	BotToken     string `json:"bot_token"`
	WebhookSecret string `json:"webhook_secret"`
}

// RedisConfig describes how to reach the managed key-value store.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ObjectStoreConfig describes the S3-compatible bucket for media uploads.
type ObjectStoreConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
}

// DeepCopy returns an independent copy of Config.
func (c *Config) DeepCopy() *Config {
	newCfg := *c
	return &newCfg
}

// Validate ensures the configuration carries the fields the rest of the
// system cannot safely default.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("mandatory 'jwt_secret' configuration is missing or empty")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("mandatory 'telegram.bot_token' configuration is missing or empty")
	}
	return nil
}

// SystemConfig holds the tunable technical parameters of the gateway, usually
// stored in system.json and reloadable without restarting the process.
type SystemConfig struct {
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
	// TelegramMessageLimit is the maximum character count for a single
	// Telegram message before it is split into numbered parts.
	TelegramMessageLimit int `json:"telegram_message_limit"`
	// MaxAttachmentBytes caps an inbound Telegram media download.
	MaxAttachmentBytes int64 `json:"max_attachment_bytes"`
	// DownloadTimeoutMs bounds the Telegram attachment download request.
	DownloadTimeoutMs int `json:"download_timeout_ms"`
	// GetFileTimeoutMs is handed to the Telegram ingress as its getFile
	// timeout; the getFile metadata call itself is not bounded by it.
	GetFileTimeoutMs int `json:"get_file_timeout_ms"`
	// BindingCodeTTLSeconds is loaded but not read: binding codes always
	// live for the fixed identity.BindingCodeTTL (300s).
	BindingCodeTTLSeconds int `json:"binding_code_ttl_seconds"`
	// ConnectionTTLSeconds is the backstop TTL on a WebSocket connection record.
	ConnectionTTLSeconds int `json:"connection_ttl_seconds"`
	// HistoryTTLSeconds is the retention window for a HistoryMessage record.
	HistoryTTLSeconds int `json:"history_ttl_seconds"`
	// ConversationGapSeconds is loaded but not read: the silence gap that
	// opens a new conversation is the fixed one hour in internal/history.
	ConversationGapSeconds int `json:"conversation_gap_seconds"`
	// LoginMaxAttempts is the number of failed logins tolerated per window.
	LoginMaxAttempts int `json:"login_max_attempts"`
	// LoginWindowSeconds is the rolling window for the login rate limiter.
	LoginWindowSeconds int `json:"login_window_seconds"`
	// JWTLifetimeSeconds is the lifetime of an issued web session token.
	JWTLifetimeSeconds int `json:"jwt_lifetime_seconds"`
	// BcryptCost is the bcrypt work factor used to hash web passwords.
	BcryptCost int `json:"bcrypt_cost"`
	// ReaperIntervalSeconds is the tick interval of the connection registry's Reaper.
	ReaperIntervalSeconds int `json:"reaper_interval_seconds"`
	// HistoryPageSize is the default page size for conversation listings.
	HistoryPageSize int `json:"history_page_size"`
}

// DeepCopy returns an independent copy of SystemConfig.
func (s *SystemConfig) DeepCopy() *SystemConfig {
	newSys := *s
	return &newSys
}

// DefaultSystemConfig returns a SystemConfig populated with safe defaults
// matching the invariants spelled out in the specification.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		LogLevel:               "info",
		TelegramMessageLimit:   4096,
		MaxAttachmentBytes:     20 * 1024 * 1024,
		DownloadTimeoutMs:      30000,
		GetFileTimeoutMs:       10000,
		BindingCodeTTLSeconds:  300,
		ConnectionTTLSeconds:   2 * 60 * 60,
		HistoryTTLSeconds:      90 * 24 * 60 * 60,
		ConversationGapSeconds: 60 * 60,
		LoginMaxAttempts:       5,
		LoginWindowSeconds:     15 * 60,
		JWTLifetimeSeconds:     7 * 24 * 60 * 60,
		BcryptCost:             12,
		ReaperIntervalSeconds:  300,
		HistoryPageSize:        50,
	}
}

// Load reads config.json and system.json from the working directory.
func Load() (*Config, *SystemConfig, error) {
	appPath := "config.json"
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sysCfg := LoadSystemConfig("system.json")

	return &cfg, sysCfg, nil
}

// LoadSystemConfig attempts to load system settings, falling back to
// defaults for any field the file omits or if the file is absent entirely.
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return cfg
	}

	return cfg
}
