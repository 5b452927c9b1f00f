package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portmux/internal/config"
	"github.com/mmr-tortoise/portmux/internal/model"
	"github.com/mmr-tortoise/portmux/internal/supervisor"
)

// NewStartCommand creates the "start" cobra command.
func NewStartCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "start [group] [process]",
		Short: "Start one or all processes in a resolved group",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(args, all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "start every process in the resolved group")
	return cmd
}

func runStart(args []string, all bool) error {
	if all && len(args) > 1 {
		return model.NewCLIError(model.ExitGeneralError, "--all cannot be combined with an explicit process name")
	}

	resolved, processName, err := resolveTarget(args)
	if err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}

	id, err := instanceId(resolved)
	if err != nil {
		return err
	}

	group := resolved.Group()
	targets := group.Commands
	if !all && processName != "" {
		cmd, ok := findCommand(group, processName)
		if !ok {
			return model.NewCLIError(model.ExitGroupResolution, fmt.Sprintf("process %q not found in group %q", processName, resolved.GroupDefinitionName))
		}
		targets = []model.Command{cmd}
	}

	var started []startedProcess
	for _, c := range targets {
		result, startErr := startOne(rt, resolved, id, c)
		if startErr != nil {
			if len(targets) > 1 {
				VerboseLog("start %s failed: %v", c.Name, startErr)
				printError(fmt.Sprintf("failed to start %q", c.Name), startErr)
				continue
			}
			return startErr
		}
		started = append(started, startedProcess{Name: c.Name, Pid: result.Pid, Ports: nil})
	}

	printStartResult(started)
	return nil
}

type startedProcess struct {
	Name string `json:"name"`
	Pid  int    `json:"pid"`
	Ports []int `json:"ports,omitempty"`
}

func startOne(rt *runtime, resolved *model.ResolvedGroup, groupInstanceId string, c model.Command) (*supervisor.StartResult, error) {
	env, command := resolveCommandEnv(c)
	ports, err := config.ResolveCommandPorts(c.Ports, env, fmt.Sprintf("%s/%s", resolved.GroupDefinitionName, c.Name))
	if err != nil {
		return nil, err
	}

	opts := startOptionsFor(rt, resolved, groupInstanceId, c, env)
	opts.Ports = ports

	var result *supervisor.StartResult
	err = rt.withGroupLock(groupInstanceId, func() error {
		var startErr error
		result, startErr = rt.supervisor.Start(groupInstanceId, c.Name, command, opts)
		return startErr
	})
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		fmt.Fprintln(os.Stderr, w)
	}
	return result, nil
}

// startOptionsFor assembles the display/env/log fields shared by start and restart's calls into
// the Supervisor. Callers that have already resolved ports set opts.Ports themselves.
func startOptionsFor(rt *runtime, resolved *model.ResolvedGroup, groupInstanceId string, c model.Command, env map[string]string) supervisor.StartOptions {
	return supervisor.StartOptions{
		ProjectRoot:         resolved.WorktreePath,
		Cwd:                 c.Cwd,
		Env:                 env,
		MaxLogBytes:         rt.maxLogBytes(),
		LogDisabled:         rt.logDisabled(),
		GroupKey:            groupInstanceId,
		GroupLabel:          resolved.GroupDefinitionName,
		RepositoryName:      resolved.RepositoryName,
		GroupDefinitionName: resolved.GroupDefinitionName,
		WorktreePath:        resolved.WorktreePath,
		Branch:              resolved.BranchLabel,
	}
}

func findCommand(group model.Group, name string) (model.Command, bool) {
	for _, c := range group.Commands {
		if c.Name == name {
			return c, true
		}
	}
	return model.Command{}, false
}

func printStartResult(started []startedProcess) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]interface{}{"started": started}, "", "  ")
		fmt.Println(string(data))
		return
	}
	for _, p := range started {
		fmt.Printf("Started %s (pid %d)\n", p.Name, p.Pid)
	}
}
