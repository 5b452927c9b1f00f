package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portmux/internal/config"
	"github.com/mmr-tortoise/portmux/internal/model"
	"github.com/mmr-tortoise/portmux/internal/supervisor"
)

// NewRestartCommand creates the "restart" cobra command.
func NewRestartCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "restart [group] [process]",
		Short: "Stop then start one or all processes in a resolved group",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestart(args, all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "restart every process in the resolved group")
	return cmd
}

func runRestart(args []string, all bool) error {
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
		c, ok := findCommand(group, processName)
		if !ok {
			return model.NewCLIError(model.ExitGroupResolution, fmt.Sprintf("process %q not found in group %q", processName, resolved.GroupDefinitionName))
		}
		targets = []model.Command{c}
	}

	for _, c := range targets {
		env, command := resolveCommandEnv(c)
		ports, err := config.ResolveCommandPorts(c.Ports, env, fmt.Sprintf("%s/%s", resolved.GroupDefinitionName, c.Name))
		if err != nil {
			return err
		}

		opts := startOptionsFor(rt, resolved, id, c, env)
		opts.Ports = ports

		var result *supervisor.StartResult
		lockErr := rt.withGroupLock(id, func() error {
			var restartErr error
			result, restartErr = rt.supervisor.Restart(id, c.Name, command, opts, 3*time.Second)
			return restartErr
		})
		if lockErr != nil {
			if len(targets) > 1 {
				printError(fmt.Sprintf("failed to restart %q", c.Name), lockErr)
				continue
			}
			return lockErr
		}
		fmt.Printf("Restarted %s (pid %d)\n", c.Name, result.Pid)
	}
	return nil
}
