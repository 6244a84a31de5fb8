// Package config loads the YAML configuration for the consultant platform.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Cache      CacheConfig      `yaml:"cache"`
	Storage    StorageConfig    `yaml:"storage"`
	ServiceNow ServiceNowConfig `yaml:"servicenow"`
	Agents     AgentsConfig     `yaml:"agents"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type LLMConfig struct {
	APIKey          string `yaml:"api_key"`
	Model           string `yaml:"model"`
	ClassifierModel string `yaml:"classifier_model"`
	BaseURL         string `yaml:"base_url"`
	MaxTokens       int    `yaml:"max_tokens"`
	MaxRetries      int    `yaml:"max_retries"`
}

type EmbeddingsConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type CacheConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Path      string  `yaml:"path"`
	Threshold float64 `yaml:"threshold"`
	TTLDays   int     `yaml:"ttl_days"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type ServiceNowConfig struct {
	InstanceURL string `yaml:"instance_url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

type AgentsConfig struct {
	MaxSteps       int `yaml:"max_steps"`
	GuardLookback  int `yaml:"guard_lookback"`
	GuardMaxRepeat int `yaml:"guard_max_repeat"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file. Environment variable
// references in the file (${VAR}) are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the configuration used when no config file is present.
// Credentials come from the environment.
func Default() *Config {
	cfg := &Config{
		LLM: LLMConfig{
			APIKey: os.Getenv("ANTHROPIC_API_KEY"),
		},
		Embeddings: EmbeddingsConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
		},
		Cache: CacheConfig{Enabled: true},
		ServiceNow: ServiceNowConfig{
			InstanceURL: os.Getenv("SERVICENOW_INSTANCE_URL"),
			Username:    os.Getenv("SERVICENOW_USERNAME"),
			Password:    os.Getenv("SERVICENOW_PASSWORD"),
		},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4096
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = "snconsultant_cache.db"
	}
	if cfg.Cache.Threshold == 0 {
		cfg.Cache.Threshold = 0.75
	}
	if cfg.Cache.TTLDays == 0 {
		cfg.Cache.TTLDays = 15
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "snconsultant.db"
	}
	if cfg.Agents.MaxSteps == 0 {
		cfg.Agents.MaxSteps = 10
	}
	if cfg.Agents.GuardLookback == 0 {
		cfg.Agents.GuardLookback = 5
	}
	if cfg.Agents.GuardMaxRepeat == 0 {
		cfg.Agents.GuardMaxRepeat = 3
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
