package config

import (
	"fmt"
	"time"

	"github.com/vietddude/resilience/retry"
)

// Named policy presets configured out of the box. A config file can
// override any of their fields or add new named policies.
const (
	PresetExternalAPI      = "external-api"
	PresetDatabase         = "database"
	PresetDegradedFallback = "degraded-fallback"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig            `yaml:"server"`
	Logging  LoggingConfig           `yaml:"logging"`
	Budget   BudgetConfig            `yaml:"budget"`
	Policies map[string]PolicyConfig `yaml:"policies"`
}

// ServerConfig holds health server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// BudgetConfig holds the system-wide retry budget.
type BudgetConfig struct {
	MaxInflightRetries int `yaml:"max_inflight_retries"` // 0 = unlimited
}

// PolicyConfig holds one named retry policy. Zero fields inherit from the
// preset of the same name, or from the library default.
type PolicyConfig struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	InitialDelay      Duration `yaml:"initial_delay"`
	MaxDelay          Duration `yaml:"max_delay"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	UseJitter         *bool    `yaml:"use_jitter"`
	JitterFraction    float64  `yaml:"jitter_fraction"`
	CircuitThreshold  int      `yaml:"circuit_breaker_threshold"`
	CircuitCooldown   Duration `yaml:"circuit_cooldown"`
	OperationTimeout  Duration `yaml:"operation_timeout"`
}

// Duration parses YAML values like "500ms" or "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Presets returns the built-in named policies.
func Presets() map[string]retry.Policy {
	return map[string]retry.Policy{
		PresetExternalAPI: {
			MaxAttempts:       5,
			InitialDelay:      500 * time.Millisecond,
			MaxDelay:          30 * time.Second,
			BackoffMultiplier: 2.0,
			UseJitter:         true,
			JitterFraction:    0.2,
			CircuitThreshold:  5,
			CircuitCooldown:   30 * time.Second,
			OperationTimeout:  30 * time.Second,
		},
		PresetDatabase: {
			MaxAttempts:       3,
			InitialDelay:      100 * time.Millisecond,
			MaxDelay:          2 * time.Second,
			BackoffMultiplier: 2.0,
			UseJitter:         true,
			JitterFraction:    0.1,
			CircuitThreshold:  3,
			CircuitCooldown:   10 * time.Second,
			OperationTimeout:  5 * time.Second,
		},
		PresetDegradedFallback: {
			MaxAttempts:       2,
			InitialDelay:      50 * time.Millisecond,
			MaxDelay:          500 * time.Millisecond,
			BackoffMultiplier: 2.0,
			UseJitter:         true,
			JitterFraction:    0.1,
			CircuitThreshold:  3,
			CircuitCooldown:   5 * time.Second,
			OperationTimeout:  2 * time.Second,
		},
	}
}

// PolicySet merges file-provided policies over the presets and validates
// every entry.
func (c *AppConfig) PolicySet() (map[string]retry.Policy, error) {
	policies := Presets()

	for name, pc := range c.Policies {
		base, ok := policies[name]
		if !ok {
			base = retry.DefaultPolicy
		}
		merged := pc.apply(base)
		if err := merged.Validate(); err != nil {
			return nil, fmt.Errorf("policy %q: %w", name, err)
		}
		policies[name] = merged
	}

	return policies, nil
}

func (pc PolicyConfig) apply(base retry.Policy) retry.Policy {
	if pc.MaxAttempts > 0 {
		base.MaxAttempts = pc.MaxAttempts
	}
	if pc.InitialDelay > 0 {
		base.InitialDelay = time.Duration(pc.InitialDelay)
	}
	if pc.MaxDelay > 0 {
		base.MaxDelay = time.Duration(pc.MaxDelay)
	}
	if pc.BackoffMultiplier > 0 {
		base.BackoffMultiplier = pc.BackoffMultiplier
	}
	if pc.UseJitter != nil {
		base.UseJitter = *pc.UseJitter
	}
	if pc.JitterFraction > 0 {
		base.JitterFraction = pc.JitterFraction
	}
	if pc.CircuitThreshold > 0 {
		base.CircuitThreshold = pc.CircuitThreshold
	}
	if pc.CircuitCooldown > 0 {
		base.CircuitCooldown = time.Duration(pc.CircuitCooldown)
	}
	if pc.OperationTimeout > 0 {
		base.OperationTimeout = time.Duration(pc.OperationTimeout)
	}
	return base
}
