// Package config loads shopagent configuration from a YAML file with
// environment-variable overrides. The config file is optional; every
// field has a usable default except the LLM API key.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all shopagent configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Policy  PolicyConfig  `yaml:"policy"`
	Storage StorageConfig `yaml:"storage"`
	Pricing PricingConfig `yaml:"pricing"`
	Server  ServerConfig  `yaml:"server"`
	Dialog  DialogConfig  `yaml:"dialog"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the LLM oracle.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini, genai, null
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// PolicyConfig locates the declarative policy table.
type PolicyConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig configures the SQLite session store. Attachments live
// in the same database, so the path is all there is.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// PricingConfig configures the Amazon PAAPI price provider.
// Empty credentials select the null provider.
type PricingConfig struct {
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	PartnerTag string `yaml:"partner_tag"`
	Host       string `yaml:"host"`
	Region     string `yaml:"region"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	RequestTimeout string `yaml:"request_timeout"`
}

// DialogConfig tunes the dialog manager.
type DialogConfig struct {
	TurnBudget int `yaml:"turn_budget"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Dir        string          `yaml:"dir"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "genai",
			Model:    "gemini-2.5-flash",
			Timeout:  "10s",
		},
		Policy: PolicyConfig{
			Path: "policies.json",
		},
		Storage: StorageConfig{
			DatabasePath: "shopagent.db",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: "60s",
		},
		Dialog: DialogConfig{
			TurnBudget: 8,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   ".",
		},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets environment variables override file values. Env wins so
// deployments can keep secrets out of the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("SHOPAGENT_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("SHOPAGENT_POLICY_PATH"); v != "" {
		c.Policy.Path = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("SHOPAGENT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AMAZON_PAAPI_ACCESS_KEY"); v != "" {
		c.Pricing.AccessKey = v
	}
	if v := os.Getenv("AMAZON_PAAPI_SECRET_KEY"); v != "" {
		c.Pricing.SecretKey = v
	}
	if v := os.Getenv("AMAZON_PAAPI_PARTNER_TAG"); v != "" {
		c.Pricing.PartnerTag = v
	}
	if v := os.Getenv("AMAZON_PAAPI_HOST"); v != "" {
		c.Pricing.Host = v
	}
	if v := os.Getenv("AMAZON_PAAPI_REGION"); v != "" {
		c.Pricing.Region = v
	}
}

func (c *Config) validate() error {
	if c.Dialog.TurnBudget <= 0 {
		c.Dialog.TurnBudget = 8
	}
	if _, err := c.LLMTimeout(); err != nil {
		return fmt.Errorf("invalid llm.timeout: %w", err)
	}
	if _, err := c.RequestTimeout(); err != nil {
		return fmt.Errorf("invalid server.request_timeout: %w", err)
	}
	return nil
}

// LLMTimeout returns the per-call LLM timeout (default 10s).
func (c *Config) LLMTimeout() (time.Duration, error) {
	if c.LLM.Timeout == "" {
		return 10 * time.Second, nil
	}
	return time.ParseDuration(c.LLM.Timeout)
}

// RequestTimeout returns the HTTP request timeout (default 60s).
func (c *Config) RequestTimeout() (time.Duration, error) {
	if c.Server.RequestTimeout == "" {
		return 60 * time.Second, nil
	}
	return time.ParseDuration(c.Server.RequestTimeout)
}
