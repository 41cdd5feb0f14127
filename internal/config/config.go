package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultCountryCode     = "65"
	DefaultReplyTimeoutSec = 30
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "fieldbot"
	DefaultPGSSLMode       = "disable"
	DefaultChatModel       = "gpt-4o"
	DefaultStorageRegion   = "sgp1"
)

type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	WhatsApp   WhatsAppConfig   `toml:"whatsapp"`
	OpenAI     OpenAIConfig     `toml:"openai"`
	Storage    StorageConfig    `toml:"storage"`
	Inspection InspectionConfig `toml:"inspection"`
	Postgres   PostgresConfig   `toml:"postgres"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// WhatsAppConfig configures the channel provider: the webhook shared secret
// for inbound verification and the send-message API for outbound replies.
type WhatsAppConfig struct {
	APIURL             string `toml:"api_url"`
	APIToken           string `toml:"api_token"`
	WebhookSecret      string `toml:"webhook_secret"`
	DefaultCountryCode string `toml:"default_country_code"`
	ReplyTimeoutSec    int    `toml:"reply_timeout_sec"`
}

type OpenAIConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

// StorageConfig points at an S3-compatible object store (e.g. DigitalOcean
// Spaces). Namespace is the key prefix under which media is filed.
type StorageConfig struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Namespace string `toml:"namespace"`
}

// InspectionConfig points at the inspection domain service REST API.
type InspectionConfig struct {
	BaseURL  string `toml:"base_url"`
	APIToken string `toml:"api_token"`
}

// PostgresConfig configures the optional backing store for sessions and the
// dedup ledger. An empty host selects the in-memory implementations.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// DSN renders a pgx connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		WhatsApp: WhatsAppConfig{
			DefaultCountryCode: DefaultCountryCode,
			ReplyTimeoutSec:    DefaultReplyTimeoutSec,
		},
		OpenAI: OpenAIConfig{
			Model: DefaultChatModel,
		},
		Storage: StorageConfig{
			Region:    DefaultStorageRegion,
			Namespace: "fieldbot",
		},
		Postgres: PostgresConfig{
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
