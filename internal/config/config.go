// Package config loads the application configuration: the reusable core
// sections plus the InstaBridge-specific ones.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/arashpm/instabridge/core/config"
	coredatabase "github.com/arashpm/instabridge/core/database"
)

// HTTPConfig configures the public callback server.
type HTTPConfig struct {
	Addr string `yaml:"addr" envconfig:"HTTP_ADDR"`
}

// FacebookConfig holds the Graph app credentials and endpoints.
type FacebookConfig struct {
	AppID        string `yaml:"app_id" envconfig:"FACEBOOK_APP_ID"`
	AppSecret    string `yaml:"app_secret" envconfig:"FACEBOOK_APP_SECRET"`
	RedirectURI  string `yaml:"redirect_uri" envconfig:"FACEBOOK_REDIRECT_URI"`
	GraphBaseURL string `yaml:"graph_base_url" envconfig:"FACEBOOK_GRAPH_BASE_URL"`
	AuthURL      string `yaml:"auth_url" envconfig:"FACEBOOK_AUTH_URL"`
}

// OpenAIConfig holds the assistant model settings.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key" envconfig:"OPENAI_API_KEY"`
	Model        string `yaml:"model" envconfig:"OPENAI_MODEL"`
	BaseURL      string `yaml:"base_url" envconfig:"OPENAI_BASE_URL"`
	Instructions string `yaml:"instructions" envconfig:"OPENAI_INSTRUCTIONS"`
}

// LinkingConfig tunes the OAuth linking pipeline.
type LinkingConfig struct {
	// StateTTLMinutes bounds state-token validity; 0 uses the default,
	// negative disables the check.
	StateTTLMinutes int `yaml:"state_ttl_minutes" envconfig:"LINKING_STATE_TTL_MINUTES"`
	// PurgeIntervalMinutes controls the stale-state sweeper; 0 uses the default.
	PurgeIntervalMinutes int `yaml:"purge_interval_minutes" envconfig:"LINKING_PURGE_INTERVAL_MINUTES"`
}

// StateTTL converts the configured minutes to a duration.
func (c LinkingConfig) StateTTL() time.Duration {
	return time.Duration(c.StateTTLMinutes) * time.Minute
}

// Config is the full application configuration.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	HTTP     HTTPConfig          `yaml:"http"`
	Facebook FacebookConfig      `yaml:"facebook"`
	OpenAI   OpenAIConfig        `yaml:"openai"`
	Linking  LinkingConfig       `yaml:"linking"`
}

// CoreConfig exposes the embedded core sections.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Core
}

// Load reads configuration from a YAML file, applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Facebook.AppID) == "" {
		return fmt.Errorf("facebook.app_id is required")
	}
	if strings.TrimSpace(cfg.Facebook.AppSecret) == "" {
		return fmt.Errorf("facebook.app_secret is required")
	}
	if strings.TrimSpace(cfg.Facebook.RedirectURI) == "" {
		return fmt.Errorf("facebook.redirect_uri is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Facebook.AuthURL == "" {
		cfg.Facebook.AuthURL = "https://www.facebook.com/v20.0/dialog/oauth"
	}
	return nil
}
