package config

import (
	"fmt"
	"os"
	"strings"
)

// Validation bounds.
const (
	minTemperature = 0.0
	maxTemperature = 2.0

	minMaxTokens = 1
	maxMaxTokens = 8192

	minPort = 1
	maxPort = 65535

	// MinHMACSecretLength is the minimum HMAC secret length in characters.
	// 32 characters of entropy makes brute-forcing the signing key impractical.
	MinHMACSecretLength = 32
)

var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate performs fail-fast validation of the configuration.
// Returns sentinel errors wrapped with context for errors.Is() checking.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}

	if c.Temperature < minTemperature || c.Temperature > maxTemperature {
		return fmt.Errorf("%w: %.2f (must be between %.1f and %.1f)",
			ErrInvalidTemperature, c.Temperature, minTemperature, maxTemperature)
	}

	if c.MaxTokens < minMaxTokens || c.MaxTokens > maxMaxTokens {
		return fmt.Errorf("%w: %d (must be between %d and %d)",
			ErrInvalidMaxTokens, c.MaxTokens, minMaxTokens, maxMaxTokens)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedderModel)
	}

	if c.DailyTokenLimit < 1 {
		return fmt.Errorf("%w: %d (must be positive)", ErrInvalidTokenLimit, c.DailyTokenLimit)
	}

	if c.RequestIntervalMS < 0 {
		return fmt.Errorf("%w: %d (must not be negative)", ErrInvalidRequestInterval, c.RequestIntervalMS)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < minPort || c.PostgresPort > maxPort {
		return fmt.Errorf("%w: %d (must be between %d and %d)",
			ErrInvalidPostgresPort, c.PostgresPort, minPort, maxPort)
	}

	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}

	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}

// ValidateServe performs additional validation required for serve mode.
// The HMAC secret signs bearer tokens, so it must be present and strong.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable not set", ErrMissingAPIKey)
	}

	secret := strings.TrimSpace(c.HMACSecret)
	if secret == "" {
		return fmt.Errorf("%w: set HMAC_SECRET environment variable", ErrMissingHMACSecret)
	}
	if len(secret) < MinHMACSecretLength {
		return fmt.Errorf("%w: must be at least %d characters, got %d",
			ErrInvalidHMACSecret, MinHMACSecretLength, len(secret))
	}

	return nil
}
