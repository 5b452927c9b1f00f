package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portmux/internal/config"
	"github.com/mmr-tortoise/portmux/internal/lock"
	"github.com/mmr-tortoise/portmux/internal/model"
)

// NewInitCommand creates the "init" cobra command. The interactive prompt flow (choosing
// commands, detecting frameworks) is out of core scope; this scaffolds a project config
// non-interactively from the current directory's name and registers it in the global config.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a project config scaffold and register it in the global config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing project config or repository entry")
	return cmd
}

func runInit(force bool) error {
	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "resolve current directory", err)
	}

	repoName := filepath.Base(cwd)
	if !model.ValidateName(repoName) {
		return model.NewCLIError(model.ExitConfigValidation,
			fmt.Sprintf("directory name %q is not a valid repository alias", repoName))
	}

	projectConfigPath := filepath.Join(cwd, config.ProjectConfigFileName)
	if _, statErr := os.Stat(projectConfigPath); statErr == nil && !force {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("%s already exists; pass --force to overwrite", projectConfigPath))
	}

	// The interactive flow that would populate commands by detecting frameworks is not built
	// here, so init scaffolds a single placeholder command for the user to edit or replace.
	// config.ValidateProject rejects a group with zero commands, so this is never left empty.
	cfg := model.ProjectConfig{
		Groups: map[string]model.Group{
			repoName: {
				Description: "edit this group's commands, then run `portmux start`",
				Commands: []model.Command{
					{Name: "app", Command: "echo 'edit portmux.config.json to run your dev command'"},
				},
			},
		},
	}

	data, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "marshal project config", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(projectConfigPath, data, 0o644); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "write project config", err)
	}

	root, err := config.GlobalConfigDir()
	if err != nil {
		return err
	}

	err = lock.WithLock(root, lock.ScopeGlobal, "repositories", func() error {
		global, err := config.LoadGlobal()
		if err != nil {
			return err
		}
		if global == nil {
			global = &model.GlobalConfig{}
		}
		if global.Repositories == nil {
			global.Repositories = make(map[string]model.RepositoryEntry)
		}

		if existing, ok := global.Repositories[repoName]; ok && !force {
			return model.NewCLIError(model.ExitDuplicateRepositoryName,
				fmt.Sprintf("repository %q is already registered at %s; pass --force to overwrite", repoName, existing.Path))
		}

		global.Repositories[repoName] = model.RepositoryEntry{Path: cwd, Group: repoName}
		return config.WriteGlobal(global)
	})
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		out, _ := json.MarshalIndent(map[string]interface{}{
			"repository": repoName,
			"configPath": projectConfigPath,
			"group":      repoName,
		}, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	fmt.Printf("Wrote %s\n", projectConfigPath)
	fmt.Printf("Registered repository %q (group %q) in the global config\n", repoName, repoName)
	return nil
}
