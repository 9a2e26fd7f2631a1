// Package config handles configuration loading and management for casegen.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultAgent is the key of the retry settings shared by every agent.
const DefaultAgent = "default"

// ProjectConfigName is the project-level config file searched upwards from cwd.
const ProjectConfigName = ".casegen.yaml"

// Config holds all configuration for casegen.
type Config struct {
	Anthropic AnthropicConfig        `mapstructure:"anthropic"`
	Pipeline  PipelineConfig         `mapstructure:"pipeline"`
	Agents    map[string]RetryConfig `mapstructure:"agents"`
	Prompts   PromptsConfig          `mapstructure:"prompts"`
	Storage   StorageConfig          `mapstructure:"storage"`
	Log       LogConfig              `mapstructure:"log"`
	Batch     BatchConfig            `mapstructure:"batch"`
}

// AnthropicConfig holds the model transport settings.
type AnthropicConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	MaxTokens  int64         `mapstructure:"max_tokens"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UseBedrock bool          `mapstructure:"use_bedrock"`
	AWSRegion  string        `mapstructure:"aws_region"`
	AWSProfile string        `mapstructure:"aws_profile"`
}

// PipelineConfig holds the task loop settings.
type PipelineConfig struct {
	MaxIterations int     `mapstructure:"max_iterations"`
	PassScore     float64 `mapstructure:"pass_score"`
	TaskType      string  `mapstructure:"task_type"`
	MaxSteps      int     `mapstructure:"max_steps"`
}

// RetryConfig holds the retry settings of one agent. Zero fields inherit
// from the default entry.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// PromptsConfig points at an optional YAML prompt file.
type PromptsConfig struct {
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

// StorageConfig selects the database driver and file.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Debug bool `mapstructure:"debug"`
}

// BatchConfig holds batch mode settings.
type BatchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// RetryFor returns the retry settings of the named agent, filled in from
// the default entry.
func (c *Config) RetryFor(name string) RetryConfig {
	rc := c.Agents[DefaultAgent]
	if o, ok := c.Agents[strings.ToLower(name)]; ok {
		if o.MaxRetries > 0 {
			rc.MaxRetries = o.MaxRetries
		}
		if o.RetryDelay > 0 {
			rc.RetryDelay = o.RetryDelay
		}
	}
	return rc
}

// MaxAgentRetries bounds agents.*.max_retries.
const MaxAgentRetries = 20

// Validate reports every setting that is out of range.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.MaxIterations < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_iterations must be at least 1, got %d", c.Pipeline.MaxIterations))
	}
	if c.Pipeline.PassScore < 0 || c.Pipeline.PassScore > 100 {
		errs = append(errs, fmt.Errorf("pipeline.pass_score must be within 0..100, got %g", c.Pipeline.PassScore))
	}
	if c.Batch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("batch.concurrency must be at least 1, got %d", c.Batch.Concurrency))
	}
	switch c.Storage.Driver {
	case "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be sqlite or sqlite3, got %q", c.Storage.Driver))
	}
	for name, rc := range c.Agents {
		if rc.MaxRetries < 0 || rc.RetryDelay < 0 {
			errs = append(errs, fmt.Errorf("agents.%s: retry settings must not be negative", name))
		}
		if rc.MaxRetries > MaxAgentRetries {
			errs = append(errs, fmt.Errorf("agents.%s.max_retries must be at most %d, got %d", name, MaxAgentRetries, rc.MaxRetries))
		}
	}
	return errors.Join(errs...)
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, CASEGEN_*)
// 2. Project config (.casegen.yaml in current directory or parent)
// 3. User config (~/.config/casegen/config.yaml)
// 4. Built-in defaults
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
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	bindEnv(v)
	return decode(v)
}

// LoadFromPath loads configuration from a specific file on top of the
// defaults. Environment overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	bindEnv(v)
	return decode(v)
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("CASEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Prompts.File = expandEnv(cfg.Prompts.File)
	cfg.Storage.Path = expandEnv(cfg.Storage.Path)
	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(GetUserConfigPath())

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.timeout", cfg.Anthropic.Timeout.String())
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("pipeline.max_iterations", cfg.Pipeline.MaxIterations)
	v.Set("pipeline.pass_score", cfg.Pipeline.PassScore)
	v.Set("pipeline.task_type", cfg.Pipeline.TaskType)
	v.Set("pipeline.max_steps", cfg.Pipeline.MaxSteps)
	for name, rc := range cfg.Agents {
		v.Set("agents."+name+".max_retries", rc.MaxRetries)
		v.Set("agents."+name+".retry_delay", rc.RetryDelay.String())
	}
	v.Set("prompts.file", cfg.Prompts.File)
	v.Set("prompts.watch", cfg.Prompts.Watch)
	v.Set("storage.driver", cfg.Storage.Driver)
	v.Set("storage.path", cfg.Storage.Path)
	v.Set("log.debug", cfg.Log.Debug)
	v.Set("batch.concurrency", cfg.Batch.Concurrency)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// DataDir returns the XDG data directory for casegen.
func DataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "casegen")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", "casegen")
	}
	return filepath.Join(home, ".local", "share", "casegen")
}

// LogDir returns the directory of per-task debug logs.
func LogDir() string {
	return filepath.Join(DataDir(), "logs")
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", d.Anthropic.Model)
	v.SetDefault("anthropic.max_tokens", d.Anthropic.MaxTokens)
	v.SetDefault("anthropic.timeout", d.Anthropic.Timeout.String())
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("pipeline.max_iterations", d.Pipeline.MaxIterations)
	v.SetDefault("pipeline.pass_score", d.Pipeline.PassScore)
	v.SetDefault("pipeline.task_type", d.Pipeline.TaskType)
	v.SetDefault("pipeline.max_steps", d.Pipeline.MaxSteps)

	v.SetDefault("agents.default.max_retries", d.Agents[DefaultAgent].MaxRetries)
	v.SetDefault("agents.default.retry_delay", d.Agents[DefaultAgent].RetryDelay.String())

	v.SetDefault("prompts.file", "")
	v.SetDefault("prompts.watch", d.Prompts.Watch)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.path", d.Storage.Path)

	v.SetDefault("log.debug", false)
	v.SetDefault("batch.concurrency", d.Batch.Concurrency)
}

// getUserConfigDir returns the XDG config directory for casegen.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "casegen")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "casegen")
	}
	return filepath.Join(home, ".config", "casegen")
}

// findProjectConfig searches for .casegen.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
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

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
			Timeout:   2 * time.Minute,
		},
		Pipeline: PipelineConfig{
			MaxIterations: 3,
			PassScore:     80,
			TaskType:      "functional",
			MaxSteps:      20,
		},
		Agents: map[string]RetryConfig{
			DefaultAgent: {MaxRetries: 3, RetryDelay: time.Second},
		},
		Prompts: PromptsConfig{
			Watch: true,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   filepath.Join(DataDir(), "casegen.db"),
		},
		Batch: BatchConfig{
			Concurrency: 4,
		},
	}
}
