package config

// Configuration loading and validation for the fuzzing harness

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/errors"
)

// KeyExchange selects the key-exchange flavor the scripted hellos offer.
type KeyExchange string

const (
	KeyExchangeRSA   KeyExchange = "rsa"
	KeyExchangeECDHE KeyExchange = "ecdhe"
)

// TargetConfig identifies the server under test.
type TargetConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProtocolConfig controls what the generated ClientHello offers.
type ProtocolConfig struct {
	KeyExchange          KeyExchange `yaml:"key_exchange"`                     // "rsa" or "ecdhe"
	ExtendedMasterSecret bool        `yaml:"extended_master_secret,omitempty"` // offer the EMS extension
	CipherOverride       string      `yaml:"cipher_override,omitempty"`        // optional cipher suite name
}

// SkipRule excludes one generated conversation from a sweep. Value is the
// mutation byte of the conversation to drop, so a rule survives layout
// changes elsewhere in the message.
type SkipRule struct {
	Sweep string `yaml:"sweep"`
	Value uint8  `yaml:"value"`
	ECDHE bool   `yaml:"ecdhe,omitempty"` // rule applies only when ECDHE is offered
	EMS   bool   `yaml:"ems,omitempty"`   // rule applies only when EMS is offered
}

// Matches reports whether the rule applies under the given offer flags.
func (r SkipRule) Matches(sweep string, value uint8, ecdhe, ems bool) bool {
	return r.Sweep == sweep && r.Value == value && r.ECDHE == ecdhe && r.EMS == ems
}

// ExpectedFailure marks a conversation whose failure is known and
// tolerated. Message, when set, must be a substring of the actual error.
type ExpectedFailure struct {
	Name    string `yaml:"name"`
	Message string `yaml:"message,omitempty"`
}

// RunConfig controls harness-level execution behavior.
type RunConfig struct {
	SampleLimit      int   `yaml:"sample_limit,omitempty"` // max fuzzed conversations per run, 0 = all
	Seed             int64 `yaml:"seed,omitempty"`         // sampling seed, 0 = time-derived
	ReceiveTimeoutMs int   `yaml:"receive_timeout_ms,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level   string `yaml:"level,omitempty"` // "error","info","verbose","debug"
	LogFile string `yaml:"log_file,omitempty"`
}

// Config represents the harness configuration
type Config struct {
	Target           TargetConfig      `yaml:"target"`
	Protocol         ProtocolConfig    `yaml:"protocol"`
	Run              RunConfig         `yaml:"run,omitempty"`
	Logging          LoggingConfig     `yaml:"logging,omitempty"`
	SkipRules        []SkipRule        `yaml:"skip_rules,omitempty"`
	ExpectedFailures []ExpectedFailure `yaml:"expected_failures,omitempty"`
	PcapOut          string            `yaml:"pcap_out,omitempty"`
}

// CreateDefaultConfig creates a default harness configuration
func CreateDefaultConfig() *Config {
	return &Config{
		Target: TargetConfig{
			Host: "localhost",
			Port: 4433,
		},
		Protocol: ProtocolConfig{
			KeyExchange: KeyExchangeRSA,
		},
		Run: RunConfig{
			SampleLimit:      0,
			ReceiveTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		SkipRules: DefaultSkipRules(),
	}
}

// WriteDefaultConfig writes a default configuration to a file
func WriteDefaultConfig(path string) error {
	cfg := CreateDefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Load loads a harness configuration from a YAML file.
// If the file doesn't exist and autoCreate is true, it will create a default config file
func Load(path string, autoCreate bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if autoCreate {
				if err := WriteDefaultConfig(path); err != nil {
					return nil, fmt.Errorf("create default config: %w", err)
				}
				data, err = os.ReadFile(path)
				if err != nil {
					return nil, errors.WrapConfigError(
						fmt.Errorf("read created config file: %w", err),
						path,
					)
				}
			} else {
				return nil, errors.WrapConfigError(
					fmt.Errorf("config file not found: %s", path),
					path,
				)
			}
		} else {
			return nil, errors.WrapConfigError(
				fmt.Errorf("read config file: %w", err),
				path,
			)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	// Apply defaults
	if cfg.Target.Host == "" {
		cfg.Target.Host = "localhost"
	}
	if cfg.Target.Port == 0 {
		cfg.Target.Port = 4433
	}
	if cfg.Protocol.KeyExchange == "" {
		cfg.Protocol.KeyExchange = KeyExchangeRSA
	}
	if cfg.Run.ReceiveTimeoutMs == 0 {
		cfg.Run.ReceiveTimeoutMs = 5000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	// Validate
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate validates a harness configuration
func Validate(cfg *Config) error {
	if cfg.Target.Host == "" {
		return fmt.Errorf("target.host is required")
	}
	if cfg.Target.Port <= 0 || cfg.Target.Port > 65535 {
		return fmt.Errorf("target.port must be between 1 and 65535, got %d", cfg.Target.Port)
	}

	switch cfg.Protocol.KeyExchange {
	case KeyExchangeRSA, KeyExchangeECDHE:
	default:
		return fmt.Errorf("protocol.key_exchange must be 'rsa' or 'ecdhe', got '%s'", cfg.Protocol.KeyExchange)
	}

	if cfg.Run.SampleLimit < 0 {
		return fmt.Errorf("run.sample_limit must be >= 0")
	}
	if cfg.Run.ReceiveTimeoutMs < 0 {
		return fmt.Errorf("run.receive_timeout_ms must be >= 0")
	}

	if cfg.Logging.Level != "" {
		switch strings.ToLower(cfg.Logging.Level) {
		case "error", "info", "verbose", "debug":
		default:
			return fmt.Errorf("logging.level must be error, info, verbose, or debug")
		}
	}

	for i, rule := range cfg.SkipRules {
		if rule.Sweep == "" {
			return fmt.Errorf("skip_rules[%d]: sweep is required", i)
		}
	}

	for i, xf := range cfg.ExpectedFailures {
		if xf.Name == "" {
			return fmt.Errorf("expected_failures[%d]: name is required", i)
		}
	}

	return nil
}
