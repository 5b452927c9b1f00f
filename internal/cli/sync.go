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

// NewSyncCommand creates the "sync" cobra command.
func NewSyncCommand() *cobra.Command {
	var (
		all    bool
		group  string
		name   string
		dryRun bool
		force  bool
		prune  bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Register the current project in the global config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(all, group, name, dryRun, force, prune)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "accept a project config with multiple groups; registers its first group by name")
	cmd.Flags().StringVar(&group, "group", "", "register only this group")
	cmd.Flags().StringVar(&name, "name", "", "repository alias to register under (default: directory name)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would change without writing the global config")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing repository entry")
	cmd.Flags().BoolVar(&prune, "prune", false, "remove registered repositories whose path no longer exists")
	return cmd
}

func runSync(all bool, group, name string, dryRun, force, prune bool) error {
	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "resolve current directory", err)
	}

	projectConfigPath, err := config.FindProjectConfig(cwd)
	if err != nil {
		return err
	}
	projectConfig, err := config.LoadProject(projectConfigPath)
	if err != nil {
		return err
	}
	projectRoot := filepath.Dir(projectConfigPath)

	if group != "" && all {
		return model.NewCLIError(model.ExitGeneralError, "--group cannot be combined with --all")
	}
	if len(projectConfig.Groups) > 1 && group == "" && !all {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("%s defines multiple groups; pass --group <name> or --all", projectConfigPath))
	}

	groupName := group
	if groupName == "" {
		groupName = firstGroupName(projectConfig)
	}
	if _, ok := projectConfig.Groups[groupName]; !ok {
		return model.NewCLIError(model.ExitGroupResolution,
			fmt.Sprintf("group %q is not defined in %s", groupName, projectConfigPath))
	}

	repoName := name
	if repoName == "" {
		repoName = filepath.Base(projectRoot)
	}
	if !model.ValidateName(repoName) {
		return model.NewCLIError(model.ExitConfigValidation,
			fmt.Sprintf("repository alias %q is not valid", repoName))
	}

	root, err := config.GlobalConfigDir()
	if err != nil {
		return err
	}

	var pruned []string
	var didDryRun bool
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

		if existing, ok := global.Repositories[repoName]; ok && existing.Path != projectRoot && !force {
			return model.NewCLIError(model.ExitDuplicateRepositoryName,
				fmt.Sprintf("repository %q is already registered at %s; pass --force to overwrite", repoName, existing.Path))
		}

		if prune {
			for n, entry := range global.Repositories {
				if _, statErr := os.Stat(entry.Path); statErr != nil && os.IsNotExist(statErr) {
					pruned = append(pruned, n)
				}
			}
		}

		if dryRun {
			didDryRun = true
			return nil
		}

		global.Repositories[repoName] = model.RepositoryEntry{Path: projectRoot, Group: groupName}
		for _, n := range pruned {
			delete(global.Repositories, n)
		}
		return config.WriteGlobal(global)
	})
	if err != nil {
		return err
	}

	if didDryRun {
		printSyncDryRun(repoName, projectRoot, groupName, pruned)
		return nil
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]interface{}{
			"repository": repoName,
			"path":       projectRoot,
			"group":      groupName,
			"pruned":     pruned,
		}, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("Registered repository %q (group %q) at %s\n", repoName, groupName, projectRoot)
	for _, n := range pruned {
		fmt.Printf("Pruned stale repository %q\n", n)
	}
	return nil
}

func printSyncDryRun(repoName, projectRoot, groupName string, pruned []string) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]interface{}{
			"dryRun":     true,
			"repository": repoName,
			"path":       projectRoot,
			"group":      groupName,
			"pruned":     pruned,
		}, "", "  ")
		fmt.Println(string(data))
		return
	}
	fmt.Printf("Would register repository %q (group %q) at %s\n", repoName, groupName, projectRoot)
	for _, n := range pruned {
		fmt.Printf("Would prune stale repository %q\n", n)
	}
}

func firstGroupName(cfg *model.ProjectConfig) string {
	var name string
	for n := range cfg.Groups {
		if name == "" || n < name {
			name = n
		}
	}
	return name
}
