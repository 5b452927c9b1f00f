package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portmux/internal/model"
)

// NewStopCommand creates the "stop" cobra command.
func NewStopCommand() *cobra.Command {
	var all bool
	var timeoutMs int

	cmd := &cobra.Command{
		Use:   "stop [group] [process]",
		Short: "Stop one or all processes in a resolved group",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(args, all, time.Duration(timeoutMs)*time.Millisecond)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "stop every process in the resolved group")
	cmd.Flags().IntVarP(&timeoutMs, "timeout", "t", 3000, "SIGTERM→SIGKILL grace period in milliseconds")
	return cmd
}

func runStop(args []string, all bool, timeout time.Duration) error {
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
	} else if !all && len(targets) > 1 {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("group %q has multiple processes; pass a process name or --all", resolved.GroupDefinitionName))
	}

	if len(targets) == 0 {
		fmt.Println("No processes to stop")
		return nil
	}

	var stoppedAny bool
	for _, c := range targets {
		if rt.store.Read(id, c.Name) == nil {
			continue
		}
		stopErr := rt.withGroupLock(id, func() error {
			return rt.supervisor.Stop(id, c.Name, timeout)
		})
		if stopErr != nil {
			printError(fmt.Sprintf("failed to stop %q", c.Name), stopErr)
			continue
		}
		fmt.Printf("Stopped %s\n", c.Name)
		stoppedAny = true
	}

	if !stoppedAny {
		fmt.Println("No processes to stop")
	}
	return nil
}
