// Package config implements the Config Loader: locating, parsing, and validating
// portmux.config.json (per repository) and $HOME/.config/portmux/config.json (per user).
//
// JSON parsing tolerates comments and trailing commas via tidwall/jsonc, a convenience superset
// of strict JSON that lets a config file carry inline documentation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/mmr-tortoise/portmux/internal/model"
)

// ProjectConfigFileName is the well-known project config file name, searched for upward from the
// current directory by FindProjectConfig.
const ProjectConfigFileName = "portmux.config.json"

// GlobalConfigDir returns $HOME/.config/portmux, the root of all of PortMux's persistent state.
func GlobalConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "portmux"), nil
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// FindProjectConfig walks upward from startDir, stopping at the filesystem root, looking for
// portmux.config.json. Returns ConfigNotFound if none is found on the ancestor chain.
func FindProjectConfig(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", model.WrapCLIError(model.ExitConfigNotFound, "resolve start directory", err)
	}

	for {
		candidate := filepath.Join(dir, ProjectConfigFileName)
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", model.NewCLIError(model.ExitConfigNotFound,
				fmt.Sprintf("no %s found in %q or any parent directory", ProjectConfigFileName, startDir))
		}
		dir = parent
	}
}

// LoadProject parses and validates the project config at path.
func LoadProject(path string) (*model.ProjectConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigNotFound, fmt.Sprintf("read %s", path), err)
	}

	var cfg model.ProjectConfig
	if err := json.Unmarshal(jsonc.ToJSON(raw), &cfg); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigParse, fmt.Sprintf("parse %s", path), err)
	}

	if err := ValidateProject(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateProject enforces the structural invariants a project config must satisfy: at least one
// group, at least one command per group, non-empty names/commands, and literal ports must be
// positive (template ports are checked later, at resolution time, since their value isn't known
// until env expansion).
func ValidateProject(cfg *model.ProjectConfig) error {
	if len(cfg.Groups) == 0 {
		return model.NewCLIError(model.ExitConfigValidation, "project config must define at least one group")
	}

	for groupName, group := range cfg.Groups {
		if len(group.Commands) == 0 {
			return model.NewCLIError(model.ExitConfigValidation,
				fmt.Sprintf("group %q must define at least one command", groupName))
		}
		for _, cmd := range group.Commands {
			if cmd.Name == "" {
				return model.NewCLIError(model.ExitConfigValidation,
					fmt.Sprintf("group %q has a command with an empty name", groupName))
			}
			if cmd.Command == "" {
				return model.NewCLIError(model.ExitConfigValidation,
					fmt.Sprintf("command %q in group %q has an empty command string", cmd.Name, groupName))
			}
			for _, p := range cmd.Ports {
				if n, ok := p.(float64); ok && n <= 0 {
					return model.NewCLIError(model.ExitConfigValidation,
						fmt.Sprintf("command %q in group %q declares a non-positive port %v", cmd.Name, groupName, n))
				}
			}
		}
	}

	if cfg.Runner != nil && cfg.Runner.Mode != "" && cfg.Runner.Mode != "background" {
		return model.NewCLIError(model.ExitConfigValidation,
			fmt.Sprintf("unsupported runner.mode %q (only \"background\" is recognized)", cfg.Runner.Mode))
	}

	return nil
}

// LoadGlobal returns the parsed global config, or (nil, nil) when the file is absent — a missing
// global config is not an error; callers treat it as "nothing registered yet".
func LoadGlobal() (*model.GlobalConfig, error) {
	path, err := GlobalConfigPath()
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, model.WrapCLIError(model.ExitConfigNotFound, fmt.Sprintf("read %s", path), err)
	}

	var cfg model.GlobalConfig
	if err := json.Unmarshal(jsonc.ToJSON(raw), &cfg); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigParse, fmt.Sprintf("parse %s", path), err)
	}
	return &cfg, nil
}

// WriteGlobal persists the global config atomically (temp file + rename), creating the config
// directory with mode 0700 if needed. Grounded on the same atomic-write primitive the State
// Store uses (internal/state), since both are "one JSON file under $HOME/.config/portmux" with
// the same durability requirement.
func WriteGlobal(cfg *model.GlobalConfig) error {
	dir, err := GlobalConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "create config directory", err)
	}

	path, err := GlobalConfigPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "marshal global config", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "write global config", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "rename global config into place", err)
	}
	return nil
}
