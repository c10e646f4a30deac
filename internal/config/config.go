package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all alertdesk configuration.
type Config struct {
	Name string `yaml:"name"`

	// Rendered-page contract and toggle rules
	Page PageConfig `yaml:"page"`

	// Cache invalidation workflow
	Invalidate InvalidateConfig `yaml:"invalidate"`

	// Alert form submission guard
	Guard GuardConfig `yaml:"guard"`

	// Live browser backend
	Browser BrowserConfig `yaml:"browser"`

	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:       "alertdesk",
		Page:       DefaultPageConfig(),
		Invalidate: DefaultInvalidateConfig(),
		Guard:      DefaultGuardConfig(),
		Browser:    DefaultBrowserConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults plus environment when there is no file
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if u := os.Getenv("ALERTDESK_INVALIDATE_URL"); u != "" {
		c.Invalidate.URL = u
	}
	if p := os.Getenv("ALERTDESK_POLICY"); p != "" {
		c.Invalidate.Policy = p
	}
	if os.Getenv("ALERTDESK_DEBUG") == "1" {
		c.Logging.DebugMode = true
		c.Logging.Level = "debug"
	}
	if os.Getenv("ALERTDESK_HEADLESS") == "1" {
		c.Browser.Headless = true
	}
}

// Validate checks the settings needed to bind a page.
func (c *Config) Validate() error {
	if c.Invalidate.URL == "" {
		return fmt.Errorf("invalidation endpoint not configured (set invalidate.url or ALERTDESK_INVALIDATE_URL)")
	}
	u, err := url.Parse(c.Invalidate.URL)
	if err != nil {
		return fmt.Errorf("invalid invalidation endpoint %q: %w", c.Invalidate.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid invalidation endpoint %q: scheme must be http or https", c.Invalidate.URL)
	}

	if err := ValidatePolicy(c.Invalidate.Policy); err != nil {
		return err
	}

	if _, err := c.Invalidate.GetTimeout(); err != nil {
		return err
	}
	for i, t := range c.Page.Toggles {
		if t.Source == "" || t.Target == "" {
			return fmt.Errorf("page.toggles[%d]: source and target are required", i)
		}
	}
	return nil
}
