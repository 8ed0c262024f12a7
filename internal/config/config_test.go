package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Server.BasePath != "/api/v1" {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Bidding.DefaultWindowHours != 24 || cfg.Bidding.MaxWindowHours != 720 {
		t.Fatalf("unexpected bidding defaults %+v", cfg.Bidding)
	}
	if cfg.Payments.Provider != "mock" || cfg.Payments.Currency != "INR" {
		t.Fatalf("unexpected payment defaults %+v", cfg.Payments)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"window too small", func(c *Config) { c.Bidding.DefaultWindowHours = 0 }, "default_window_hours"},
		{"max below default", func(c *Config) { c.Bidding.MaxWindowHours = 1 }, "max_window_hours"},
		{"missing currency", func(c *Config) { c.Payments.Currency = "" }, "currency"},
		{"unknown provider", func(c *Config) { c.Payments.Provider = "stripe" }, "provider"},
		{"webhook empty id", func(c *Config) {
			c.Webhooks = []WebhookConfig{{URL: "https://example.com"}}
		}, "empty id"},
		{"webhook duplicate id", func(c *Config) {
			c.Webhooks = []WebhookConfig{
				{ID: "a", URL: "https://example.com"},
				{ID: "a", URL: "https://example.org"},
			}
		}, "duplicate"},
		{"webhook bad url", func(c *Config) {
			c.Webhooks = []WebhookConfig{{ID: "a", URL: "not a url"}}
		}, "invalid url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "gig init") {
		t.Fatalf("expected missing-config hint, got %v", err)
	}
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected defaults from LoadOptional")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gigline.yml")
	if path != Path(dir) {
		t.Fatalf("unexpected config path %s", Path(dir))
	}
	if err := os.WriteFile(path, []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestFromYAMLInvalid(t *testing.T) {
	if _, err := FromYAML([]byte("server: [not a map]")); err == nil {
		t.Fatalf("expected yaml error")
	}
	if _, err := FromYAML([]byte("payments:\n  provider: mock\n")); err == nil {
		t.Fatalf("expected validation error for incomplete config")
	}
}
