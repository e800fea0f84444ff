package config

import (
	"fmt"
	"strings"

	"github.com/kilianp07/grocerybot/infra/logger"
)

// LoggingConfig defines the component logger output.
type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `json:"level"`
	// Console switches to the human readable writer.
	Console bool `json:"console"`
	// Inspect lists topics whose values are logged as they are published.
	Inspect []string `json:"inspect"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown level %s", c.Level)
}

// Options converts the section into logger options.
func (c LoggingConfig) Options() logger.Options {
	return logger.Options{Level: c.Level, Console: c.Console}
}
