// Package config handles configuration loading for quorum.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/quorumhq/quorum/internal/orchestrator"
)

// Config holds all configuration for quorum.
type Config struct {
	Anthropic    AnthropicConfig       `mapstructure:"anthropic"`
	Workspace    string                `mapstructure:"workspace"`
	AgentsFile   string                `mapstructure:"agents_file"`
	Orchestrator *orchestrator.Options `mapstructure:"orchestrator"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// Model is the default Claude model identifier.
	Model string `mapstructure:"model"`
	// UseBedrock routes requests through AWS Bedrock.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, QUORUM_WORKSPACE)
// 2. Project config (.quorum.yaml in current directory or parent)
// 3. User config (~/.config/quorum/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
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
	v.BindEnv("anthropic.model", "QUORUM_MODEL")
	v.BindEnv("workspace", "QUORUM_WORKSPACE")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Workspace = os.ExpandEnv(cfg.Workspace)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
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
	cfg.Workspace = os.ExpandEnv(cfg.Workspace)
	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("workspace", cfg.Workspace)
	v.Set("agents_file", cfg.AgentsFile)
	if o := cfg.Orchestrator; o != nil {
		v.Set("orchestrator.max_concurrent_tasks", o.MaxConcurrentTasks)
		v.Set("orchestrator.task_timeout_seconds", o.TaskTimeoutSeconds)
		v.Set("orchestrator.total_timeout_seconds", o.TotalTimeoutSeconds)
		v.Set("orchestrator.max_retries", o.MaxRetries)
		v.Set("orchestrator.retry_delay_seconds", o.RetryDelaySeconds)
		v.Set("orchestrator.trace_enabled", o.TraceEnabled)
		v.Set("orchestrator.feedback_enabled", o.FeedbackEnabled)
		v.Set("orchestrator.feedback_reminder_days", o.FeedbackReminderDays)
		v.Set("orchestrator.required_task_failure_mode", o.RequiredTaskFailureMode)
		v.Set("orchestrator.dispatch_strategy", string(o.DispatchStrategy))
	}

	return v.WriteConfig()
}

// Watch reloads the user config file whenever it changes and invokes
// onChange with the fresh configuration. Parse failures keep the old
// config and are reported through onError (which may be nil).
func Watch(onChange func(*Config), onError func(error)) (*viper.Viper, error) {
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

	v.OnConfigChange(func(fsnotify.Event) {
		cfg := &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reloading config: %w", err))
			}
			return
		}
		cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
		onChange(cfg)
	})
	v.WatchConfig()
	return v, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("workspace", defaultWorkspace())
	v.SetDefault("agents_file", "")

	defaults := orchestrator.DefaultOptions()
	v.SetDefault("orchestrator.max_concurrent_tasks", defaults.MaxConcurrentTasks)
	v.SetDefault("orchestrator.task_timeout_seconds", defaults.TaskTimeoutSeconds)
	v.SetDefault("orchestrator.total_timeout_seconds", defaults.TotalTimeoutSeconds)
	v.SetDefault("orchestrator.max_retries", defaults.MaxRetries)
	v.SetDefault("orchestrator.retry_delay_seconds", defaults.RetryDelaySeconds)
	v.SetDefault("orchestrator.trace_enabled", defaults.TraceEnabled)
	v.SetDefault("orchestrator.feedback_enabled", defaults.FeedbackEnabled)
	v.SetDefault("orchestrator.feedback_reminder_days", defaults.FeedbackReminderDays)
	v.SetDefault("orchestrator.required_task_failure_mode", defaults.RequiredTaskFailureMode)
	v.SetDefault("orchestrator.dispatch_strategy", string(defaults.DispatchStrategy))
}

// defaultWorkspace returns the default workspace directory.
func defaultWorkspace() string {
	if dataDir := os.Getenv("XDG_DATA_HOME"); dataDir != "" {
		return filepath.Join(dataDir, "quorum", "workspace")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".quorum", "workspace")
	}
	return filepath.Join(home, ".local", "share", "quorum", "workspace")
}

// getUserConfigDir returns the XDG config directory for quorum.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "quorum")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "quorum")
	}
	return filepath.Join(home, ".config", "quorum")
}

// findProjectConfig searches for .quorum.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".quorum.yaml")
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
		Workspace:    defaultWorkspace(),
		Orchestrator: orchestrator.DefaultOptions(),
	}
}
