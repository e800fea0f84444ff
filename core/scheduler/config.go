package scheduler

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/grocerybot/core/tasks"
)

// LoadConfig loads the behaviour tree tuning from a JSON or YAML file. Unset
// fields take their defaults.
func LoadConfig(path string) (tasks.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return tasks.Config{}, err
	}
	defer f.Close()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return DecodeConfig(f, ext)
}

// DecodeConfig reads a tree configuration in the given format from r.
func DecodeConfig(r io.Reader, format string) (tasks.Config, error) {
	var cfg tasks.Config
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
			return cfg, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config format: %s", format)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
