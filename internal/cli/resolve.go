package cli

import (
	"fmt"
	"os"

	"github.com/mmr-tortoise/portmux/internal/config"
	"github.com/mmr-tortoise/portmux/internal/model"
	"github.com/mmr-tortoise/portmux/internal/resolver"
)

// resolveTarget turns the `[group] [process]` positional argument shape shared by start, stop,
// and restart into a ResolvedGroup plus an optional process name. args[0], when present, is a
// registered repository alias (resolveByName); with no arguments the current directory drives
// resolveAuto.
func resolveTarget(args []string) (*model.ResolvedGroup, string, error) {
	var processName string
	if len(args) > 1 {
		processName = args[1]
	}

	if len(args) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", model.WrapCLIError(model.ExitGroupResolution, "resolve current directory", err)
		}
		resolved, err := resolver.ResolveAuto(cwd)
		printResolverWarnings(resolved)
		return resolved, processName, err
	}

	resolved, err := resolver.ResolveByName(args[0], "", "")
	return resolved, processName, err
}

// printResolverWarnings surfaces any warnings the resolver attached to resolved (e.g. falling
// back to a project's first group with no Git root to disambiguate), the same way startOne
// prints a supervisor start's warnings.
func printResolverWarnings(resolved *model.ResolvedGroup) {
	if resolved == nil {
		return
	}
	for _, w := range resolved.Warnings {
		fmt.Fprintln(os.Stderr, w)
	}
}

// instanceId is a thin wrapper exposing resolver.GroupInstanceId under the cli package so every
// command that needs a group's identity doesn't need to import resolver directly just for this.
func instanceId(resolved *model.ResolvedGroup) (string, error) {
	return resolver.GroupInstanceId(resolved.RepositoryName, resolved.GroupDefinitionName, resolved.WorktreePath)
}

// resolveCommandEnv expands ${VAR} references in a command's env values and in its command
// string, returning the expanded env (for config.ResolveCommandPorts and the child environment)
// and the expanded command, and prints any warnings encountered while resolving them.
func resolveCommandEnv(cmd model.Command) (map[string]string, string) {
	resolvedEnv, warnings := config.ResolveEnvObject(cmd.Env)
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	command, cmdWarnings := config.ResolveCommandEnv(cmd.Command, resolvedEnv)
	for _, w := range cmdWarnings {
		fmt.Fprintln(os.Stderr, w)
	}

	return resolvedEnv, command
}
