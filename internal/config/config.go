package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	AI        AIConfig
	Transfers TransfersConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string
}

// AIConfig holds the optional batch-categorizer settings. An empty API key
// (after resolving APIKeyEnv) disables the fallback entirely.
type AIConfig struct {
	APIKeyEnv string
	APIKey    string
	Model     string
	BaseURL   string
}

// TransfersConfig tunes transfer-pair detection.
type TransfersConfig struct {
	DateWindowDays int
}

// ResolveAPIKey returns the literal key or the value of the configured env
// var, in that order.
func (c AIConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv != "" {
		return os.Getenv(c.APIKeyEnv)
	}
	return ""
}

// Load reads configuration from file and env. Env var overrides use prefix KASA_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "kasa", "kasa.db"))
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("ai.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("transfers.date_window_days", 3)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("KASA_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "kasa"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("KASA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
