package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portmux/internal/model"
	"github.com/mmr-tortoise/portmux/internal/resolver"
)

// NewSelectCommand creates the "select" cobra command. A full interactive picker
// (charmbracelet/bubbletea or huh) isn't built here — it belongs to the same class of excluded
// interactive surface as init's prompt flow. Non-interactively, --name picks a candidate by
// repository alias; with no --name the first candidate (per BuildSelectable's own sort order) is
// used.
func NewSelectCommand() *cobra.Command {
	var (
		all  bool
		name string
	)

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Pick a registered group and start it, stopping conflicting worktrees first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(all, name)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include candidates with no project config")
	cmd.Flags().StringVar(&name, "name", "", "repository alias to select (default: first candidate)")
	return cmd
}

func runSelect(all bool, name string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "resolve current directory", err)
	}
	gitRoot := resolver.CallerRepoRoot(cwd)

	candidates, err := resolver.BuildSelectable(rt.store, all, gitRoot)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		fmt.Println("No candidates to select")
		return nil
	}
	printSelectable(candidates)

	picked, err := pickCandidate(candidates, name)
	if err != nil {
		return err
	}
	if !picked.HasConfig {
		return model.NewCLIError(model.ExitGroupResolution,
			fmt.Sprintf("%s has no project config to start", picked.WorktreePath))
	}

	resolved, err := resolver.ResolveByName(picked.RepositoryName, picked.GroupDefinitionName, picked.WorktreePath)
	if err != nil {
		return err
	}
	id, err := instanceId(resolved)
	if err != nil {
		return err
	}

	if err := stopConflictingWorktrees(rt, candidates, picked); err != nil {
		return err
	}

	var started []startedProcess
	for _, c := range resolved.Group().Commands {
		result, startErr := startOne(rt, resolved, id, c)
		if startErr != nil {
			printError(fmt.Sprintf("failed to start %q", c.Name), startErr)
			continue
		}
		started = append(started, startedProcess{Name: c.Name, Pid: result.Pid})
	}

	printStartResult(started)
	return nil
}

// pickCandidate returns the named candidate, or the first in sorted order when name is empty.
func pickCandidate(candidates []model.SelectableCandidate, name string) (model.SelectableCandidate, error) {
	if name == "" {
		return candidates[0], nil
	}
	for _, c := range candidates {
		if c.RepositoryName == name {
			return c, nil
		}
	}
	return model.SelectableCandidate{}, model.NewCLIError(model.ExitGroupResolution,
		fmt.Sprintf("no candidate named %q", name))
}

// stopConflictingWorktrees stops every other worktree of the same repository that is currently
// running, since two worktrees of one repo can claim the same configured ports.
func stopConflictingWorktrees(rt *runtime, candidates []model.SelectableCandidate, picked model.SelectableCandidate) error {
	for _, c := range candidates {
		if c.RepositoryName != picked.RepositoryName || c.WorktreePath == picked.WorktreePath || !c.IsRunning {
			continue
		}
		resolved, err := resolver.ResolveByName(c.RepositoryName, c.GroupDefinitionName, c.WorktreePath)
		if err != nil {
			printError(fmt.Sprintf("failed to resolve conflicting worktree %s", c.WorktreePath), err)
			continue
		}
		id, err := instanceId(resolved)
		if err != nil {
			printError(fmt.Sprintf("failed to identify conflicting worktree %s", c.WorktreePath), err)
			continue
		}
		for _, cmd := range resolved.Group().Commands {
			if rt.store.Read(id, cmd.Name) == nil {
				continue
			}
			stopErr := rt.withGroupLock(id, func() error {
				return rt.supervisor.Stop(id, cmd.Name, 3*time.Second)
			})
			if stopErr != nil {
				printError(fmt.Sprintf("failed to stop %q in conflicting worktree %s", cmd.Name, c.WorktreePath), stopErr)
			}
		}
	}
	return nil
}

// printSelectable renders BuildSelectable candidates in the same table style ps uses.
func printSelectable(candidates []model.SelectableCandidate) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(candidates, "", "  ")
		fmt.Println(string(data))
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tGROUP\tBRANCH\tRUNNING\tHASCONFIG\tPATH")
	for _, c := range candidates {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\t%s\n", c.RepositoryName, c.GroupDefinitionName, c.BranchLabel, c.IsRunning, c.HasConfig, c.WorktreePath)
	}
	w.Flush()
}
