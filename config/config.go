// Package config defines the TOML configuration for the procsieve
// translator and its loading helpers.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Output string `toml:"output"` // Log output: "stderr", "stdout", "syslog", or file path
	Format string `toml:"format"` // Log format: "json" or "console"
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", "error"
}

// TranslateConfig holds the defaults a translation run starts from. Flags
// override any of these per invocation.
type TranslateConfig struct {
	EmailDomain        string `toml:"email_domain"`        // Domain used to qualify bare local addresses
	Inbox              string `toml:"inbox"`               // Default inbox path, relative to the home directory unless absolute
	ProvenanceComments bool   `toml:"provenance_comments"` // Emit comments naming each source file
	Path               string `toml:"path"`                // Colon-separated search path for commands named in rule files
}

// SieveConfig controls validation of the generated script.
type SieveConfig struct {
	Validate          bool     `toml:"validate"`           // Load the generated script with the Sieve interpreter before emitting
	EnabledExtensions []string `toml:"enabled_extensions"` // Extensions the target engine supports; empty means everything the interpreter implements
}

// Config holds the complete procsieve configuration.
type Config struct {
	Logging   LoggingConfig   `toml:"logging"`
	Translate TranslateConfig `toml:"translate"`
	Sieve     SieveConfig     `toml:"sieve"`
}

// NewDefaultConfig returns a Config with default values
func NewDefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Output: "stderr",  // Default to stderr
			Format: "console", // Default to console format
			Level:  "info",    // Default to info level
		},
		Translate: TranslateConfig{
			Inbox:              "/var/mail",
			ProvenanceComments: true,
			Path:               "/usr/local/bin:/usr/bin:/bin",
		},
		Sieve: SieveConfig{
			Validate: false,
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"console\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	if d := c.Translate.EmailDomain; d != "" && strings.ContainsAny(d, "@ \t") {
		return fmt.Errorf("translate.email_domain %q is not a bare domain", d)
	}
	return nil
}

// LoadConfigFromFile decodes a TOML file into cfg, warning about unknown
// keys instead of failing on them.
func LoadConfigFromFile(configPath string, cfg *Config) error {
	content, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	metadata, err := toml.Decode(string(content), cfg)
	if err != nil {
		return fmt.Errorf("error parsing configuration file '%s': %w", configPath, err)
	}

	// Warn about unknown keys (might be typos or deprecated settings)
	if len(metadata.Undecoded()) > 0 {
		log.Printf("WARNING: Configuration file '%s' contains unknown keys that will be ignored:", configPath)
		for _, key := range metadata.Undecoded() {
			log.Printf("WARNING:   - %s", key)
		}
	}

	return cfg.Validate()
}
