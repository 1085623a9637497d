// ABOUTME: Configuration loading and parsing for coven-harness
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/coven-harness/internal/exchange"
)

// Config represents the complete coven-harness configuration
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	Ingress  IngressConfig  `yaml:"ingress"`
	Timing   TimingConfig   `yaml:"timing"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
	Artifact ArtifactConfig `yaml:"artifact"`
}

// AgentConfig describes the agent-under-test endpoint
type AgentConfig struct {
	URL string `yaml:"url"`
}

// IngressConfig holds the callback ingress listener configuration
type IngressConfig struct {
	Addr string `yaml:"addr"`
	// BaseURL overrides the serviceUrl advertised to the agent; when
	// empty the ingress listener address is used
	BaseURL string `yaml:"base_url"`
}

// TimingConfig holds reply-collection timing configuration
type TimingConfig struct {
	Debounce       time.Duration `yaml:"-"`
	HardLimit      time.Duration `yaml:"-"`
	StreamFallback time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	DebounceRaw       string `yaml:"debounce"`
	HardLimitRaw      string `yaml:"hard_limit"`
	StreamFallbackRaw string `yaml:"stream_fallback"`
}

// AuthConfig holds bearer token configuration. Token takes precedence;
// JWTSecret switches on the self-issuing HS256 provider.
type AuthConfig struct {
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ArtifactConfig holds optional post-run artifact configuration
type ArtifactConfig struct {
	ReportDir   string `yaml:"report_dir"`
	ArchivePath string `yaml:"archive_path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Agent.URL == "" {
		return fmt.Errorf("agent.url is required")
	}

	if c.Timing.Debounce < 0 || c.Timing.HardLimit < 0 || c.Timing.StreamFallback < 0 {
		return fmt.Errorf("timing values must not be negative")
	}
	if c.Timing.Debounce > 0 && c.Timing.HardLimit > 0 && c.Timing.Debounce > c.Timing.HardLimit {
		return fmt.Errorf("timing.debounce %s exceeds timing.hard_limit %s", c.Timing.Debounce, c.Timing.HardLimit)
	}

	if c.Auth.Token != "" && c.Auth.JWTSecret != "" {
		return fmt.Errorf("auth.token and auth.jwt_secret are mutually exclusive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Timing.DebounceRaw != "" {
		cfg.Timing.Debounce, err = time.ParseDuration(cfg.Timing.DebounceRaw)
		if err != nil {
			return fmt.Errorf("parsing debounce %q: %w", cfg.Timing.DebounceRaw, err)
		}
	}

	if cfg.Timing.HardLimitRaw != "" {
		cfg.Timing.HardLimit, err = time.ParseDuration(cfg.Timing.HardLimitRaw)
		if err != nil {
			return fmt.Errorf("parsing hard_limit %q: %w", cfg.Timing.HardLimitRaw, err)
		}
	}

	if cfg.Timing.StreamFallbackRaw != "" {
		cfg.Timing.StreamFallback, err = time.ParseDuration(cfg.Timing.StreamFallbackRaw)
		if err != nil {
			return fmt.Errorf("parsing stream_fallback %q: %w", cfg.Timing.StreamFallbackRaw, err)
		}
	}

	return nil
}

// ExchangeTiming converts the timing section into correlator timing,
// falling back to defaults for unset values.
func (c *Config) ExchangeTiming() exchange.Timing {
	t := exchange.DefaultTiming()
	if c.Timing.Debounce > 0 {
		t.Debounce = c.Timing.Debounce
	}
	if c.Timing.HardLimit > 0 {
		t.HardLimit = c.Timing.HardLimit
	}
	if c.Timing.StreamFallback > 0 {
		t.StreamFallback = c.Timing.StreamFallback
	}
	return t
}
