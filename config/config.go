// Package config provides YAML-backed configuration for guard
// construction, with defaults and environment variable overrides.
//
// Precedence: defaults -> YAML file -> environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/llmguard/types"
)

// envPrefix is the prefix for environment variable overrides.
const envPrefix = "LLMGUARD"

// Duration wraps time.Duration for YAML: bare numbers are seconds,
// strings go through time.ParseDuration ("90s", "2m").
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		*d = Duration(time.Duration(v) * time.Second)
		return nil
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration value: %v", raw)
	}
}

// Config is the complete llmguard configuration.
type Config struct {
	// MetricsNamespace is the prometheus namespace for emitted metrics.
	MetricsNamespace string `yaml:"metrics_namespace"`

	// Defaults apply to every guard unless overridden per name.
	Defaults Guard `yaml:"defaults"`

	// Guards holds per-dependency overrides keyed by guard name.
	Guards map[string]Guard `yaml:"guards"`
}

// Guard configures the resilience components for one guarded dependency.
type Guard struct {
	// FailureThreshold is the failure count that trips the breaker.
	FailureThreshold int `yaml:"failure_threshold"`
	// RecoveryTimeout is how long the breaker stays open before probing.
	RecoveryTimeout Duration `yaml:"recovery_timeout"`
	// RequestsPerMinute is the rate limiter's refill rate.
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	// Model selects the tokenizer used for budgeting.
	Model string `yaml:"model"`
	// MaxTokens is the context budget applied to message histories.
	MaxTokens int `yaml:"max_tokens"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		MetricsNamespace: "llmguard",
		Defaults: Guard{
			FailureThreshold:  5,
			RecoveryTimeout:   Duration(60 * time.Second),
			RequestsPerMinute: 60,
			Model:             "gpt-4o",
			MaxTokens:         8000,
		},
	}
}

// Load reads configuration from the given YAML file, applying defaults
// underneath and environment overrides on top. An empty path skips the
// file step.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("read config file %s", path)).WithCause(err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("parse config file %s", path)).WithCause(err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides default guard settings from LLMGUARD_* variables.
func (c *Config) applyEnv() {
	if v := os.Getenv(envPrefix + "_METRICS_NAMESPACE"); v != "" {
		c.MetricsNamespace = v
	}
	if v := os.Getenv(envPrefix + "_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Defaults.FailureThreshold = n
		}
	}
	if v := os.Getenv(envPrefix + "_RECOVERY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Defaults.RecoveryTimeout = Duration(d)
		}
	}
	if v := os.Getenv(envPrefix + "_REQUESTS_PER_MINUTE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Defaults.RequestsPerMinute = f
		}
	}
	if v := os.Getenv(envPrefix + "_MODEL"); v != "" {
		c.Defaults.Model = v
	}
	if v := os.Getenv(envPrefix + "_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Defaults.MaxTokens = n
		}
	}
}

// Validate fails fast on settings the components would reject at
// construction time.
func (c *Config) Validate() error {
	if err := c.Defaults.validate("defaults"); err != nil {
		return err
	}
	for name := range c.Guards {
		if err := c.ForGuard(name).validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (g Guard) validate(name string) error {
	if g.FailureThreshold <= 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("failure_threshold must be positive, got %d", g.FailureThreshold)).
			WithComponent(name)
	}
	if g.RecoveryTimeout <= 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("recovery_timeout must be positive, got %s", g.RecoveryTimeout)).
			WithComponent(name)
	}
	if g.RequestsPerMinute <= 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("requests_per_minute must be positive, got %v", g.RequestsPerMinute)).
			WithComponent(name)
	}
	if g.MaxTokens <= 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("max_tokens must be positive, got %d", g.MaxTokens)).
			WithComponent(name)
	}
	return nil
}

// ForGuard resolves the effective settings for a named guard: per-name
// overrides where set, defaults elsewhere.
func (c *Config) ForGuard(name string) Guard {
	g := c.Defaults
	override, ok := c.Guards[name]
	if !ok {
		return g
	}
	if override.FailureThreshold != 0 {
		g.FailureThreshold = override.FailureThreshold
	}
	if override.RecoveryTimeout != 0 {
		g.RecoveryTimeout = override.RecoveryTimeout
	}
	if override.RequestsPerMinute != 0 {
		g.RequestsPerMinute = override.RequestsPerMinute
	}
	if override.Model != "" {
		g.Model = override.Model
	}
	if override.MaxTokens != 0 {
		g.MaxTokens = override.MaxTokens
	}
	return g
}
