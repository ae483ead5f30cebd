package command

import (
	"github.com/arrowledge/pagedb/internal/config"
)

// loadConfig resolves the effective Config for a command invocation:
// configPath, if set, is loaded from YAML (falling back to config.Default
// otherwise); a non-empty dataDirOverride (the -data flag) always wins,
// the same -config-file-plus-override pattern as
// cmd/tinydb/command/listen.go's ListenConfig.
func loadConfig(configPath, dataDirOverride string) (config.Config, error) {
	cfg := config.Default()

	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if dataDirOverride != "" {
		cfg.DataDir = dataDirOverride
	}

	return cfg, nil
}
