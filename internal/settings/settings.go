// Package settings persists the small user configuration record between
// runs: the fixed listening port, the bind scope, and the last database the
// user selected.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is the persisted configuration record.
type Settings struct {
	FixedPort          int    `yaml:"fixed_port"`
	AllowNetworkAccess bool   `yaml:"allow_network_access"`
	NetworkPort        int    `yaml:"network_port"`
	LastTargetDatabase string `yaml:"last_target_database"`
}

// Default returns the settings used when no file exists yet.
func Default() Settings {
	return Settings{
		FixedPort:   52100,
		NetworkPort: 52100,
	}
}

// DefaultPath returns the conventional settings location under the user's
// configuration directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "xmlabridge", "settings.yaml"), nil
}

// Load reads settings from path. A missing file is not an error: defaults
// are returned so first runs work without any setup.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Settings{}, fmt.Errorf("read settings %q: %w", path, err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %q: %w", path, err)
	}
	return s, nil
}

// Save writes settings to path, creating the parent directory as needed.
func (s Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write settings %q: %w", path, err)
	}
	return nil
}
