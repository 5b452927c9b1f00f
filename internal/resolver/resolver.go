// Package resolver turns a repository alias, a working directory, or "list everything" into one
// or more ResolvedGroup values, by combining the global/project config layers with the Git
// worktree topology of the repositories they register (git.go).
package resolver

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mmr-tortoise/portmux/internal/config"
	"github.com/mmr-tortoise/portmux/internal/model"
	"github.com/mmr-tortoise/portmux/internal/state"
)

// ResolveByName resolves repositoryName (a key into the global config's repositories map) to a
// ResolvedGroup using groupDefinitionName. When worktreePath is non-empty it overrides the
// registered default path, and the project config is re-loaded from that path.
func ResolveByName(repositoryName, groupDefinitionName, worktreePath string) (*model.ResolvedGroup, error) {
	global, err := config.LoadGlobal()
	if err != nil {
		return nil, err
	}
	if global == nil {
		return nil, model.NewCLIError(model.ExitGroupResolution,
			"no global config found; run `portmux init` or `portmux sync` to register a repository")
	}

	entry, ok := global.Repositories[repositoryName]
	if !ok {
		return nil, model.NewCLIError(model.ExitGroupResolution,
			fmt.Sprintf("no repository named %q is registered", repositoryName))
	}

	resolvedPath := entry.Path
	if worktreePath != "" {
		resolvedPath = worktreePath
	}

	projectConfigPath, err := config.FindProjectConfig(resolvedPath)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGroupResolution,
			fmt.Sprintf("no project config found for repository %q at %s", repositoryName, resolvedPath), err)
	}

	projectConfig, err := config.LoadProject(projectConfigPath)
	if err != nil {
		return nil, err
	}

	groupName := groupDefinitionName
	if groupName == "" {
		groupName = entry.Group
	}
	if _, ok := projectConfig.Groups[groupName]; !ok {
		return nil, model.NewCLIError(model.ExitGroupResolution,
			fmt.Sprintf("group %q is not defined in %s", groupName, projectConfigPath))
	}

	root, err := repoRoot(resolvedPath)
	if err != nil {
		root = resolvedPath
	}
	branch := ""
	if b, err := currentBranch(resolvedPath); err == nil {
		branch = b
	}

	return &model.ResolvedGroup{
		RepositoryName:      repositoryName,
		WorktreePath:        resolvedPath,
		RepositoryPath:      root,
		ProjectConfig:       projectConfig,
		ProjectConfigPath:   projectConfigPath,
		GroupDefinitionName: groupName,
		BranchLabel:         branch,
	}, nil
}

// ResolveAuto finds the project config upward from startDir, then picks a repository/group via
// Git worktree topology if possible, falling back to the project's first group when no global
// config (or no usable Git root) exists. "First" means first by name in sorted order: the
// project config's groups are held in a map, so their order in the file is not kept.
func ResolveAuto(startDir string) (*model.ResolvedGroup, error) {
	projectConfigPath, err := config.FindProjectConfig(startDir)
	if err != nil {
		return nil, err
	}
	projectConfig, err := config.LoadProject(projectConfigPath)
	if err != nil {
		return nil, err
	}
	projectRoot := filepath.Dir(projectConfigPath)

	global, err := config.LoadGlobal()
	if err != nil {
		return nil, err
	}

	firstGroupName := firstGroupKey(projectConfig)

	noGitRootWarning := fmt.Sprintf(
		"no registered repository matched %s; warning: falling back to its first group by name %q",
		projectRoot, firstGroupName)

	if global == nil {
		return buildAutoResult("", firstGroupName, projectRoot, projectConfigPath, projectConfig, []string{noGitRootWarning})
	}

	gitRoot, err := repoRoot(startDir)
	if err != nil {
		// No usable Git root: try path equality against registered repositories before falling
		// back to the project's first group.
		if name, ok := matchRepositoryByPath(global, projectRoot); ok {
			groupName := global.Repositories[name].Group
			if groupName == "" {
				groupName = firstGroupName
			}
			if _, ok := projectConfig.Groups[groupName]; !ok {
				return nil, model.NewCLIError(model.ExitGroupResolution,
					fmt.Sprintf("group %q is not defined in %s", groupName, projectConfigPath))
			}
			return buildAutoResult(name, groupName, projectRoot, projectConfigPath, projectConfig, nil)
		}
		return buildAutoResult("", firstGroupName, projectRoot, projectConfigPath, projectConfig, []string{noGitRootWarning})
	}

	worktrees, err := listGroupWorktrees(gitRoot)
	if err != nil {
		return nil, err
	}

	absStart, err := filepath.Abs(startDir)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGroupResolution, "resolve start directory", err)
	}

	var matchedWorktree string
	for _, wt := range worktrees {
		wtPath, err := filepath.Abs(wt.path)
		if err != nil {
			continue
		}
		if absStart == wtPath || strings.HasPrefix(absStart, wtPath+string(filepath.Separator)) {
			matchedWorktree = wtPath
			break
		}
	}
	if matchedWorktree == "" {
		matchedWorktree = gitRoot
	}

	name, ok := matchRepositoryByPath(global, matchedWorktree)
	if !ok {
		return nil, model.NewCLIError(model.ExitGroupResolution,
			fmt.Sprintf("%s is not a registered repository; run `portmux sync` to register it", matchedWorktree))
	}

	entry := global.Repositories[name]
	groupName := entry.Group
	if groupName == "" {
		groupName = firstGroupName
	}
	if _, ok := projectConfig.Groups[groupName]; !ok {
		return nil, model.NewCLIError(model.ExitGroupResolution,
			fmt.Sprintf("group %q is not defined in %s", groupName, projectConfigPath))
	}

	branch := ""
	if b, err := currentBranch(matchedWorktree); err == nil {
		branch = b
	}

	return &model.ResolvedGroup{
		RepositoryName:      name,
		WorktreePath:        matchedWorktree,
		RepositoryPath:      gitRoot,
		ProjectConfig:       projectConfig,
		ProjectConfigPath:   projectConfigPath,
		GroupDefinitionName: groupName,
		BranchLabel:         branch,
	}, nil
}

func buildAutoResult(repositoryName, groupName, projectRoot, projectConfigPath string, projectConfig *model.ProjectConfig, warnings []string) (*model.ResolvedGroup, error) {
	if groupName == "" {
		return nil, model.NewCLIError(model.ExitGroupResolution,
			fmt.Sprintf("%s defines no groups", projectConfigPath))
	}
	if repositoryName == "" {
		repositoryName = filepath.Base(projectRoot)
	}
	branch := ""
	if b, err := currentBranch(projectRoot); err == nil {
		branch = b
	}
	return &model.ResolvedGroup{
		RepositoryName:      repositoryName,
		WorktreePath:        projectRoot,
		RepositoryPath:      projectRoot,
		ProjectConfig:       projectConfig,
		ProjectConfigPath:   projectConfigPath,
		GroupDefinitionName: groupName,
		BranchLabel:         branch,
		Warnings:            warnings,
	}, nil
}

func firstGroupKey(cfg *model.ProjectConfig) string {
	names := make([]string, 0, len(cfg.Groups))
	for name := range cfg.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func matchRepositoryByPath(global *model.GlobalConfig, path string) (string, bool) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		canonical = path
	}
	for name, entry := range global.Repositories {
		entryCanonical, err := filepath.Abs(entry.Path)
		if err != nil {
			entryCanonical = entry.Path
		}
		if entryCanonical == canonical {
			return name, true
		}
	}
	return "", false
}

// BuildSelectable enumerates every registered repository, lists its worktrees (falling back to
// the primary path when the listing is empty), and annotates each candidate for the `select`
// command. currentGitRoot is the caller's own Git root (possibly empty), used to
// prioritize candidates matching the caller's location.
func BuildSelectable(store *state.Store, includeAll bool, currentGitRoot string) ([]model.SelectableCandidate, error) {
	global, err := config.LoadGlobal()
	if err != nil {
		return nil, err
	}
	if global == nil {
		return nil, nil
	}

	var candidates []model.SelectableCandidate

	for repoName, entry := range global.Repositories {
		worktrees, err := listGroupWorktrees(entry.Path)
		if err != nil || len(worktrees) == 0 {
			worktrees = []groupWorktree{{path: entry.Path}}
		}

		for _, wt := range worktrees {
			projectConfigPath, findErr := config.FindProjectConfig(wt.path)
			hasConfig := findErr == nil

			if !hasConfig && !includeAll {
				continue
			}

			isRunning := false
			if hasConfig {
				if projectConfig, loadErr := config.LoadProject(projectConfigPath); loadErr == nil {
					isRunning = anyGroupRunning(store, repoName, wt.path, projectConfig)
				}
			}

			candidates = append(candidates, model.SelectableCandidate{
				RepositoryName:      repoName,
				WorktreePath:        wt.path,
				GroupDefinitionName: entry.Group,
				BranchLabel:         wt.branchLabel(),
				IsRunning:           isRunning,
				HasConfig:           hasConfig,
				IsPrimary:           wt.path == entry.Path,
			})
		}
	}

	sortSelectable(candidates, currentGitRoot)
	return candidates, nil
}

// anyGroupRunning reports whether any command of any group defined at worktreePath has a
// Running ProcessState, by minting each group's instance ID directly rather than trying to
// recover a group name from an opaque ID.
func anyGroupRunning(store *state.Store, repoName, worktreePath string, projectConfig *model.ProjectConfig) bool {
	for groupName, group := range projectConfig.Groups {
		instanceId, err := GroupInstanceId(repoName, groupName, worktreePath)
		if err != nil {
			continue
		}
		for _, cmd := range group.Commands {
			if st := store.Read(instanceId, cmd.Name); st != nil && st.Status == model.StatusRunning {
				return true
			}
		}
	}
	return false
}

func sortSelectable(candidates []model.SelectableCandidate, currentGitRoot string) {
	canonicalRoot, err := filepath.Abs(currentGitRoot)
	if err != nil || currentGitRoot == "" {
		canonicalRoot = ""
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		aMatch := canonicalRoot != "" && strings.HasPrefix(a.WorktreePath, canonicalRoot)
		bMatch := canonicalRoot != "" && strings.HasPrefix(b.WorktreePath, canonicalRoot)
		if aMatch != bMatch {
			return aMatch
		}
		if a.RepositoryName != b.RepositoryName {
			return a.RepositoryName < b.RepositoryName
		}
		if a.BranchLabel != b.BranchLabel {
			return a.BranchLabel < b.BranchLabel
		}
		if a.GroupDefinitionName != b.GroupDefinitionName {
			return a.GroupDefinitionName < b.GroupDefinitionName
		}
		return a.WorktreePath < b.WorktreePath
	})
}
