// Package config loads and saves the YAML configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/crosscheck/pkg/adapter"
)

// DirName is the configuration directory under the user's home.
const DirName = ".crosscheck"

type ProviderConfig struct {
	APIKey string `yaml:"api_key"`
}

type Timeouts struct {
	LocalPerFile time.Duration            `yaml:"local_per_file"`
	Database     time.Duration            `yaml:"database"`
	Network      time.Duration            `yaml:"network"`
	PerAdapter   map[string]time.Duration `yaml:"per_adapter,omitempty"`
}

type Analysis struct {
	MaxConcurrent    int           `yaml:"max_concurrent"`
	BucketSize       int           `yaml:"bucket_size"`
	HotspotThreshold float64       `yaml:"hotspot_threshold"`
	OutputCapBytes   int64         `yaml:"output_cap_bytes"`
	Timeouts         Timeouts      `yaml:"timeouts"`
	CacheDir         string        `yaml:"cache_dir,omitempty"`
	CacheMaxAge      time.Duration `yaml:"cache_max_age"`
	TaxonomyDir      string        `yaml:"taxonomy_dir,omitempty"`
}

type AdapterConfig struct {
	// Enabled defaults to true when unset.
	Enabled  *bool            `yaml:"enabled,omitempty"`
	Settings adapter.Settings `yaml:"settings,omitempty"`
}

type Config struct {
	SelectedProvider string                    `yaml:"selected_provider"`
	SelectedModel    string                    `yaml:"selected_model"`
	Providers        map[string]ProviderConfig `yaml:"providers"`
	Analysis         Analysis                  `yaml:"analysis"`
	Adapters         map[string]AdapterConfig  `yaml:"adapters,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		SelectedProvider: "gemini",
		Providers:        make(map[string]ProviderConfig),
		Analysis: Analysis{
			MaxConcurrent:    4,
			BucketSize:       3,
			HotspotThreshold: 40,
			OutputCapBytes:   adapter.DefaultOutputCap,
			Timeouts: Timeouts{
				LocalPerFile: 60 * time.Second,
				Database:     10 * time.Minute,
				Network:      2 * time.Minute,
			},
			CacheMaxAge: 24 * time.Hour,
		},
		Adapters: make(map[string]AdapterConfig),
	}
}

// GetConfigPath returns ~/.crosscheck/config.yaml, creating the directory.
func GetConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Dir returns ~/.crosscheck, creating it with owner-only permissions.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, DirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// LoadConfig reads the default config file.
func LoadConfig() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	if cfg.Adapters == nil {
		cfg.Adapters = make(map[string]AdapterConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// SaveConfig writes the default config file.
func SaveConfig(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return Save(path, cfg)
}

// Save writes cfg to path with 0600 permissions since it holds API keys.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate rejects values that would make an analysis meaningless.
func (c *Config) Validate() error {
	a := c.Analysis
	switch {
	case a.MaxConcurrent < 1:
		return fmt.Errorf("analysis.max_concurrent must be at least 1")
	case a.BucketSize < 1:
		return fmt.Errorf("analysis.bucket_size must be at least 1")
	case a.HotspotThreshold < 0 || a.HotspotThreshold > 100:
		return fmt.Errorf("analysis.hotspot_threshold must be within [0, 100]")
	case a.OutputCapBytes < 1:
		return fmt.Errorf("analysis.output_cap_bytes must be positive")
	}
	return nil
}

func (c *Config) SetAPIKey(provider, key string) {
	p := c.Providers[provider]
	p.APIKey = key
	c.Providers[provider] = p
}

func (c *Config) GetAPIKey(provider string) string {
	return c.Providers[provider].APIKey
}

// Enabled reports whether the file leaves adapter name switched on.
func (c *Config) Enabled(name string) bool {
	a, ok := c.Adapters[name]
	return !ok || a.Enabled == nil || *a.Enabled
}

// AdapterSettings returns the per-adapter settings map.
func (c *Config) AdapterSettings() map[string]adapter.Settings {
	out := make(map[string]adapter.Settings, len(c.Adapters))
	for name, a := range c.Adapters {
		if a.Settings != nil {
			out[name] = a.Settings
		}
	}
	return out
}

// Credentials exposes the providers map as a credential source. Adapter
// credentials use the adapter name as the provider key.
func Credentials(c *Config) adapter.CredentialProvider {
	return adapter.CredentialFunc(func(name string) (string, bool) {
		key := c.GetAPIKey(name)
		return key, key != ""
	})
}
