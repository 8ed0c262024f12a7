package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MinBiddingWindowHours is the shortest bidding window a job may be posted
// with. Anything shorter gives freelancers no realistic chance to bid.
const MinBiddingWindowHours = 1

// Config models gigline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
		DevLogin               bool   `yaml:"dev_login"`
	} `yaml:"auth"`
	Bidding struct {
		DefaultWindowHours int `yaml:"default_window_hours"`
		MaxWindowHours     int `yaml:"max_window_hours"`
	} `yaml:"bidding"`
	Payments struct {
		Provider string `yaml:"provider"`
		Currency string `yaml:"currency"`
	} `yaml:"payments"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig is one outbound delivery target for the event log.
type WebhookConfig struct {
	ID     string   `yaml:"id"`
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Bidding.DefaultWindowHours < MinBiddingWindowHours {
		return fmt.Errorf("config.bidding.default_window_hours must be at least %d", MinBiddingWindowHours)
	}
	if c.Bidding.MaxWindowHours < c.Bidding.DefaultWindowHours {
		return fmt.Errorf("config.bidding.max_window_hours must be at least the default window")
	}
	if c.Payments.Currency == "" {
		return fmt.Errorf("config.payments.currency is required")
	}
	switch c.Payments.Provider {
	case "mock":
	default:
		return fmt.Errorf("config.payments.provider %q is not supported", c.Payments.Provider)
	}
	seen := map[string]bool{}
	for _, wh := range c.Webhooks {
		if wh.ID == "" {
			return fmt.Errorf("config.webhooks entry has empty id")
		}
		if seen[wh.ID] {
			return fmt.Errorf("config.webhooks has duplicate id %s", wh.ID)
		}
		seen[wh.ID] = true
		u, err := url.Parse(wh.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("webhook %s has invalid url %q", wh.ID, wh.URL)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "gigline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with gig init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template is invalid: %v", err))
	}
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: ":8080"
  base_path: /api/v1

auth:
  jwt_secret: ""
  allow_legacy_actor_header: false
  dev_login: false

bidding:
  default_window_hours: 24
  max_window_hours: 720

payments:
  provider: mock
  currency: INR

webhooks: []
`
