package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChuDiRen/casegen/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify casegen configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/casegen/config.yaml
Project-specific overrides can be placed in .casegen.yaml`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch len(args) {
		case 0:
			displayAllConfig(out, cfg)
			return nil
		case 1:
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, value)
			return nil
		default:
			if err := setConfigValue(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintf(out, "Set %s = %s\n", args[0], args[1])
			return nil
		}
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config, database and log locations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		project := config.GetProjectConfigPath()
		if project == "" {
			project = "(none)"
		}
		fmt.Fprintf(out, "user config:    %s\n", config.GetUserConfigPath())
		fmt.Fprintf(out, "project config: %s\n", project)
		fmt.Fprintf(out, "database:       %s\n", cfg.Storage.Path)
		fmt.Fprintf(out, "debug logs:     %s\n", config.LogDir())
		return nil
	},
}

func init() {
	configCmd.AddCommand(configPathCmd)
}

// configKeys lists the fixed keys in display order.
var configKeys = []string{
	"anthropic.api_key",
	"anthropic.model",
	"anthropic.max_tokens",
	"anthropic.timeout",
	"anthropic.use_bedrock",
	"anthropic.aws_region",
	"anthropic.aws_profile",
	"pipeline.max_iterations",
	"pipeline.pass_score",
	"pipeline.task_type",
	"pipeline.max_steps",
	"prompts.file",
	"prompts.watch",
	"storage.driver",
	"storage.path",
	"log.debug",
	"batch.concurrency",
}

// displayAllConfig prints all configuration values.
func displayAllConfig(out io.Writer, cfg *config.Config) {
	for _, key := range configKeys {
		value, _ := getConfigValue(cfg, key)
		fmt.Fprintf(out, "%s: %s\n", key, value)
	}

	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rc := cfg.Agents[name]
		fmt.Fprintf(out, "agents.%s.max_retries: %d\n", name, rc.MaxRetries)
		fmt.Fprintf(out, "agents.%s.retry_delay: %s\n", name, rc.RetryDelay)
	}
	fmt.Fprintf(out, "(api key source: %s)\n", config.GetAPIKeySource(cfg))
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.max_tokens":
		return strconv.FormatInt(cfg.Anthropic.MaxTokens, 10), nil
	case "anthropic.timeout":
		return cfg.Anthropic.Timeout.String(), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "pipeline.max_iterations":
		return strconv.Itoa(cfg.Pipeline.MaxIterations), nil
	case "pipeline.pass_score":
		return strconv.FormatFloat(cfg.Pipeline.PassScore, 'f', -1, 64), nil
	case "pipeline.task_type":
		return cfg.Pipeline.TaskType, nil
	case "pipeline.max_steps":
		return strconv.Itoa(cfg.Pipeline.MaxSteps), nil
	case "prompts.file":
		return cfg.Prompts.File, nil
	case "prompts.watch":
		return strconv.FormatBool(cfg.Prompts.Watch), nil
	case "storage.driver":
		return cfg.Storage.Driver, nil
	case "storage.path":
		return cfg.Storage.Path, nil
	case "log.debug":
		return strconv.FormatBool(cfg.Log.Debug), nil
	case "batch.concurrency":
		return strconv.Itoa(cfg.Batch.Concurrency), nil
	}

	if name, field, ok := agentKey(key); ok {
		rc := cfg.RetryFor(name)
		if field == "max_retries" {
			return strconv.Itoa(rc.MaxRetries), nil
		}
		return rc.RetryDelay.String(), nil
	}
	return "", fmt.Errorf("unknown configuration key: %s", key)
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	var err error
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.max_tokens":
		cfg.Anthropic.MaxTokens, err = strconv.ParseInt(value, 10, 64)
	case "anthropic.timeout":
		cfg.Anthropic.Timeout, err = time.ParseDuration(value)
	case "anthropic.use_bedrock":
		cfg.Anthropic.UseBedrock, err = strconv.ParseBool(value)
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "pipeline.max_iterations":
		cfg.Pipeline.MaxIterations, err = strconv.Atoi(value)
	case "pipeline.pass_score":
		cfg.Pipeline.PassScore, err = strconv.ParseFloat(value, 64)
	case "pipeline.task_type":
		cfg.Pipeline.TaskType = value
	case "pipeline.max_steps":
		cfg.Pipeline.MaxSteps, err = strconv.Atoi(value)
	case "prompts.file":
		cfg.Prompts.File = value
	case "prompts.watch":
		cfg.Prompts.Watch, err = strconv.ParseBool(value)
	case "storage.driver":
		cfg.Storage.Driver = strings.ToLower(value)
	case "storage.path":
		cfg.Storage.Path = value
	case "log.debug":
		cfg.Log.Debug, err = strconv.ParseBool(value)
	case "batch.concurrency":
		cfg.Batch.Concurrency, err = strconv.Atoi(value)
	default:
		name, field, ok := agentKey(key)
		if !ok {
			return fmt.Errorf("unknown configuration key: %s", key)
		}
		if cfg.Agents == nil {
			cfg.Agents = make(map[string]config.RetryConfig)
		}
		rc := cfg.Agents[name]
		if field == "max_retries" {
			rc.MaxRetries, err = strconv.Atoi(value)
		} else {
			rc.RetryDelay, err = time.ParseDuration(value)
		}
		cfg.Agents[name] = rc
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// agentKey splits "agents.<name>.<field>".
func agentKey(key string) (name, field string, ok bool) {
	parts := strings.Split(strings.ToLower(key), ".")
	if len(parts) != 3 || parts[0] != "agents" || parts[1] == "" {
		return "", "", false
	}
	switch parts[2] {
	case "max_retries", "retry_delay":
		return parts[1], parts[2], true
	}
	return "", "", false
}
