package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DBConfig struct {
	DSN string `yaml:"dsn"`
}

type ProviderConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	Currency      string `yaml:"currency"`
}

type LocationConfig struct {
	ID string `yaml:"id"`
}

type PrinterConfig struct {
	Role    string `yaml:"role"`
	Enabled bool   `yaml:"enabled"`
}

type PrintingConfig struct {
	AgentBaseURL string                   `yaml:"agent_base_url"`
	Printers     map[string]PrinterConfig `yaml:"printers"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	DB       DBConfig       `yaml:"db"`
	Provider ProviderConfig `yaml:"provider"`
	Location LocationConfig `yaml:"location"`
	Printing PrintingConfig `yaml:"printing"`
}

// Load reads the yaml config at path, applies environment overrides, and
// validates the result. Environment values win over file values so deploys
// can keep secrets out of the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Provider.Currency = "usd"

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("PROVIDER_WEBHOOK_SECRET"); v != "" {
		cfg.Provider.WebhookSecret = v
	}
	if v := os.Getenv("PROVIDER_CURRENCY"); v != "" {
		cfg.Provider.Currency = v
	}
	if v := os.Getenv("LOCATION_ID"); v != "" {
		cfg.Location.ID = v
	}
	if v := os.Getenv("PRINT_AGENT_URL"); v != "" {
		cfg.Printing.AgentBaseURL = v
	}
}

func (c *Config) validate() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("config: db.dsn is required")
	}
	if c.Provider.WebhookSecret == "" {
		return fmt.Errorf("config: provider.webhook_secret is required")
	}
	if c.Location.ID == "" {
		return fmt.Errorf("config: location.id is required")
	}
	for name, p := range c.Printing.Printers {
		switch p.Role {
		case "station", "quality_control":
		default:
			return fmt.Errorf("config: printer %s has unknown role %q", name, p.Role)
		}
	}
	return nil
}
