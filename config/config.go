// Package config loads service configuration from a YAML file with
// environment variable overrides for secrets and deployment-specific values.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the full service configuration.
	Config struct {
		Server      Server      `yaml:"server"`
		Mongo       Mongo       `yaml:"mongo"`
		Redis       Redis       `yaml:"redis"`
		OpenRouter  OpenRouter  `yaml:"openrouter"`
		CRM         CRM         `yaml:"crm"`
		Compression Compression `yaml:"compression"`
		// VocabularyDir holds the enum vocabulary JSON files. Empty disables
		// enum mapping.
		VocabularyDir string `yaml:"vocabulary_dir"`
	}

	// Server configures the HTTP listener.
	Server struct {
		Addr string `yaml:"addr"`
		// RequestTimeout bounds non-streaming endpoints.
		RequestTimeout time.Duration `yaml:"request_timeout"`
		Debug          bool          `yaml:"debug"`
	}

	// Mongo configures the conversation store.
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	}

	// Redis configures the pulse event stream. Leaving Addr empty disables
	// Redis fan-out; events then flow only to the requesting client.
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	}

	// OpenRouter configures the LLM provider.
	OpenRouter struct {
		APIKey       string   `yaml:"api_key"`
		BaseURL      string   `yaml:"base_url"`
		DefaultModel string   `yaml:"default_model"`
		AgentModels  []string `yaml:"agent_models"`
	}

	// CRM configures the sales platform client.
	CRM struct {
		BaseURL string `yaml:"base_url"`
		Token   string `yaml:"token"`
		UserID  string `yaml:"user_id"`
	}

	// Compression tunes conversation history compression.
	Compression struct {
		MaxTotalTokens int `yaml:"max_total_tokens"`
		TargetTokens   int `yaml:"target_tokens"`
		RecentWindow   int `yaml:"recent_window"`
	}
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:           ":8000",
			RequestTimeout: 60 * time.Second,
		},
		Mongo: Mongo{
			URI:      "mongodb://localhost:27017",
			Database: "ai-sdr",
		},
		OpenRouter: OpenRouter{
			BaseURL:      "https://openrouter.ai/api/v1",
			DefaultModel: "openai/gpt-4o",
		},
		CRM: CRM{
			BaseURL: "https://app.clodura.ai/api",
		},
	}
}

// Load reads the YAML file at path, applies environment overrides and
// validates the result. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on the file values. Environment
// wins so deployments can override checked-in configuration.
func (c *Config) applyEnv() {
	setIfEnv(&c.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setIfEnv(&c.CRM.Token, "CLODURA_TOKEN")
	setIfEnv(&c.CRM.BaseURL, "CLODURA_BASE_URL")
	setIfEnv(&c.CRM.UserID, "USER_ID")
	setIfEnv(&c.Mongo.URI, "MONGO_CONNECTION_URL")
	setIfEnv(&c.Redis.Addr, "REDIS_ADDR")
	setIfEnv(&c.Server.Addr, "LISTEN_ADDR")
}

func setIfEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the configuration is runnable.
func (c *Config) Validate() error {
	if c.OpenRouter.APIKey == "" {
		return errors.New("config: openrouter api key is required (OPENROUTER_API_KEY)")
	}
	if c.CRM.Token == "" {
		return errors.New("config: CRM token is required (CLODURA_TOKEN)")
	}
	if c.Mongo.URI == "" {
		return errors.New("config: mongo uri is required")
	}
	if c.Server.Addr == "" {
		return errors.New("config: server addr is required")
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 60 * time.Second
	}
	return nil
}
