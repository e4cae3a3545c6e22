// Package config handles configuration loading for hivemind.
// It supports XDG config paths, project-level overrides, and
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for hivemind.
type Config struct {
	Anthropic   AnthropicConfig   `mapstructure:"anthropic"`
	Swarm       SwarmConfig       `mapstructure:"swarm"`
	Timeouts    TimeoutsConfig    `mapstructure:"timeouts"`
	Review      ReviewConfig      `mapstructure:"review"`
	Autonomy    AutonomyConfig    `mapstructure:"autonomy"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Store       StoreConfig       `mapstructure:"store"`
}

// AnthropicConfig holds model API settings.
type AnthropicConfig struct {
	APIKey        string `mapstructure:"api_key"`
	Model         string `mapstructure:"model"`
	MaxTokens     int    `mapstructure:"max_tokens"`
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// SwarmConfig holds scheduler settings.
type SwarmConfig struct {
	// Capacity is the global execution slot count.
	Capacity int `mapstructure:"capacity"`
	// DispatchTimeout bounds how long a dispatched task waits for a
	// slot before failing.
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	// GracePeriod is the window a worker gets to observe its deadline
	// or cancellation before the slot is reclaimed from under it.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// MaxDelegationDepth bounds recursive delegation.
	MaxDelegationDepth int `mapstructure:"max_delegation_depth"`
	// MaxIterations bounds the worker reasoning loop.
	MaxIterations int `mapstructure:"max_iterations"`
}

// TimeoutsConfig holds per-role execution deadlines.
type TimeoutsConfig struct {
	Researcher time.Duration `mapstructure:"researcher"`
	Executor   time.Duration `mapstructure:"executor"`
	Reasoner   time.Duration `mapstructure:"reasoner"`
	Planner    time.Duration `mapstructure:"planner"`
	// Delegated is the deadline for delegated sub-goal subtrees.
	Delegated time.Duration `mapstructure:"delegated"`
}

// ForRole returns the deadline for the given role name.
func (t *TimeoutsConfig) ForRole(role string) time.Duration {
	switch role {
	case "researcher":
		return t.Researcher
	case "executor":
		return t.Executor
	case "reasoner":
		return t.Reasoner
	case "planner":
		return t.Planner
	default:
		return t.Executor
	}
}

// ReviewConfig holds consensus review settings.
type ReviewConfig struct {
	// RevisionBudget is how many revision rounds a proposal gets.
	RevisionBudget int `mapstructure:"revision_budget"`
}

// AutonomyConfig holds heartbeat settings.
type AutonomyConfig struct {
	// Enabled turns the heartbeat engine on.
	Enabled bool `mapstructure:"enabled"`
	// Interval is the heartbeat period.
	Interval time.Duration `mapstructure:"interval"`
}

// AggregationConfig holds result merge settings.
type AggregationConfig struct {
	// Mode is "strict" or "best_effort".
	Mode string `mapstructure:"mode"`
}

// StoreConfig holds proposal store settings.
type StoreConfig struct {
	// Path is the SQLite database path. Empty uses the XDG default.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
//  1. Environment variables (ANTHROPIC_API_KEY)
//  2. Project config (.hivemind.yaml in current directory or parent)
//  3. User config (~/.config/hivemind/config.yaml)
//  4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Swarm.Capacity < 1 {
		return fmt.Errorf("swarm.capacity must be at least 1, got %d", c.Swarm.Capacity)
	}
	if c.Swarm.MaxDelegationDepth < 0 {
		return fmt.Errorf("swarm.max_delegation_depth must not be negative, got %d", c.Swarm.MaxDelegationDepth)
	}
	switch c.Aggregation.Mode {
	case "strict", "best_effort":
	default:
		return fmt.Errorf("aggregation.mode must be strict or best_effort, got %q", c.Aggregation.Mode)
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("swarm.capacity", 6)
	v.SetDefault("swarm.dispatch_timeout", "30s")
	v.SetDefault("swarm.grace_period", "5s")
	v.SetDefault("swarm.max_delegation_depth", 2)
	v.SetDefault("swarm.max_iterations", 8)

	v.SetDefault("timeouts.researcher", "3m")
	v.SetDefault("timeouts.executor", "3m")
	v.SetDefault("timeouts.reasoner", "3m")
	v.SetDefault("timeouts.planner", "10m")
	v.SetDefault("timeouts.delegated", "10m")

	v.SetDefault("review.revision_budget", 2)

	v.SetDefault("autonomy.enabled", false)
	v.SetDefault("autonomy.interval", "15m")

	v.SetDefault("aggregation.mode", "strict")

	v.SetDefault("store.path", "")
}

// getUserConfigDir returns the XDG config directory for hivemind.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hivemind")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "hivemind")
	}
	return filepath.Join(home, ".config", "hivemind")
}

// findProjectConfig searches for .hivemind.yaml in the current
// directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".hivemind.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			MaxTokens: 4096,
		},
		Swarm: SwarmConfig{
			Capacity:           6,
			DispatchTimeout:    30 * time.Second,
			GracePeriod:        5 * time.Second,
			MaxDelegationDepth: 2,
			MaxIterations:      8,
		},
		Timeouts: TimeoutsConfig{
			Researcher: 3 * time.Minute,
			Executor:   3 * time.Minute,
			Reasoner:   3 * time.Minute,
			Planner:    10 * time.Minute,
			Delegated:  10 * time.Minute,
		},
		Review: ReviewConfig{
			RevisionBudget: 2,
		},
		Autonomy: AutonomyConfig{
			Enabled:  false,
			Interval: 15 * time.Minute,
		},
		Aggregation: AggregationConfig{
			Mode: "strict",
		},
	}
}
