package config

import (
	"errors"
	"os"
	"strings"
)

// APIKeyEnv is the environment variable holding the Anthropic API key.
const APIKeyEnv = "ANTHROPIC_API_KEY"

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// GetAPIKey returns the Anthropic API key.
// It checks in order: environment variable, config file.
// Bedrock authenticates through AWS credentials, so no key is required there.
func GetAPIKey(cfg *Config) (string, error) {
	if key := os.Getenv(APIKeyEnv); key != "" {
		return key, nil
	}

	if key := configKey(cfg); key != "" {
		return key, nil
	}

	if cfg != nil && cfg.Anthropic.UseBedrock {
		return "", nil
	}
	return "", ErrNoAPIKey
}

// configKey returns the expanded key from the config file, or "" when the
// reference did not resolve.
func configKey(cfg *Config) string {
	if cfg == nil || cfg.Anthropic.APIKey == "" {
		return ""
	}
	key := os.ExpandEnv(cfg.Anthropic.APIKey)
	if strings.HasPrefix(key, "${") {
		return ""
	}
	return key
}

// ValidateAPIKey performs basic validation on an API key.
// It checks format but does not verify the key with Anthropic's API.
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrNoAPIKey
	}

	if !strings.HasPrefix(key, "sk-ant-") {
		return errors.New("invalid API key format: expected 'sk-ant-' prefix")
	}

	if len(key) < 20 {
		return errors.New("invalid API key format: key too short")
	}

	return nil
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters (sk-ant-) and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv     KeySource = "environment"
	KeySourceConfig  KeySource = "config_file"
	KeySourceBedrock KeySource = "aws_bedrock"
	KeySourceNone    KeySource = "none"
)

// GetAPIKeySource returns where the model credentials come from.
func GetAPIKeySource(cfg *Config) KeySource {
	switch {
	case os.Getenv(APIKeyEnv) != "":
		return KeySourceEnv
	case configKey(cfg) != "":
		return KeySourceConfig
	case cfg != nil && cfg.Anthropic.UseBedrock:
		return KeySourceBedrock
	default:
		return KeySourceNone
	}
}
