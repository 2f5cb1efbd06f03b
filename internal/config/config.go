package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v7"
	"github.com/tailscale/hujson"
)

const envPrefix = "RELAY_"

type Config struct {
	Server  ServerConfig  `json:"server"  envPrefix:"SERVER_"`
	TLS     TLSConfig     `json:"tls"     envPrefix:"TLS_"`
	Journal JournalConfig `json:"journal" envPrefix:"JOURNAL_"`
	Log     LogConfig     `json:"log"     envPrefix:"LOG_"`
}

type ServerConfig struct {
	URL                     string `json:"url"                       env:"URL"`
	HandshakeTimeoutSeconds int    `json:"handshake_timeout_seconds" env:"HANDSHAKE_TIMEOUT_SECONDS"`
	AckTimeoutSeconds       int    `json:"ack_timeout_seconds"       env:"ACK_TIMEOUT_SECONDS"`
}

type TLSConfig struct {
	Enabled        bool   `json:"enabled"         env:"ENABLED"`
	CAFile         string `json:"ca_file"         env:"CA_FILE"`
	CertFile       string `json:"cert_file"       env:"CERT_FILE"`
	KeyFile        string `json:"key_file"        env:"KEY_FILE"`
	Passphrase     string `json:"passphrase"      env:"PASSPHRASE"`
	VerifyHostname bool   `json:"verify_hostname" env:"VERIFY_HOSTNAME"`
}

type JournalConfig struct {
	RedisAddr  string `json:"redis_addr"  env:"REDIS_ADDR"`
	TTLSeconds int    `json:"ttl_seconds" env:"TTL_SECONDS"`
}

type LogConfig struct {
	Level string `json:"level" env:"LEVEL"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			URL:                     "wss://localhost:12000",
			HandshakeTimeoutSeconds: 10,
			AckTimeoutSeconds:       10,
		},
		TLS: TLSConfig{
			Enabled:  true,
			CAFile:   "ca.crt",
			CertFile: "client.crt",
			KeyFile:  "client.key",
		},
		Journal: JournalConfig{
			TTLSeconds: 24 * 60 * 60,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load layers the file at path (HuJSON: comments and trailing commas are
// allowed) over Default, then RELAY_* environment variables over that.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config failed: %w", err)
		}
		content, err = hujson.Standardize(content)
		if err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
		if err := json.Unmarshal(content, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config failed: %w", err)
		}
	}

	if err := env.Parse(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env failed: %w", err)
	}

	if cfg.Server.HandshakeTimeoutSeconds <= 0 {
		cfg.Server.HandshakeTimeoutSeconds = 10
	}
	if cfg.Server.AckTimeoutSeconds <= 0 {
		cfg.Server.AckTimeoutSeconds = 10
	}
	if cfg.Journal.TTLSeconds <= 0 {
		cfg.Journal.TTLSeconds = 24 * 60 * 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return cfg, nil
}

func (c ServerConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutSeconds) * time.Second
}

func (c ServerConfig) AckTimeout() time.Duration {
	return time.Duration(c.AckTimeoutSeconds) * time.Second
}

func (c JournalConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}
