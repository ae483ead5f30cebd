// Package config loads the YAML runtime configuration for the pagedb
// CLI: where table files live, the page size, and logging verbosity.
package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config is the top-level configuration file shape.
type Config struct {
	DataDir  string       `yaml:"data_directory"`
	PageSize int          `yaml:"page_size"`
	LogLevel logrus.Level `yaml:"log_level"`
}

// Default returns the configuration used when no config file is given.
func Default() Config {
	return Config{
		DataDir:  ".",
		PageSize: 4096,
		LogLevel: logrus.InfoLevel,
	}
}

// Load reads and parses the YAML config file at path.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Logger builds a logrus.Logger at the configured level.
func (c Config) Logger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(c.LogLevel)
	return l
}
