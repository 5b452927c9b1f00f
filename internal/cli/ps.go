package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portmux/internal/logwriter"
)

// NewPsCommand creates the "ps" cobra command.
func NewPsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "Enumerate supervised processes, verifying liveness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPs()
		},
	}
}

func runPs() error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	records, err := rt.supervisor.List()
	if err != nil {
		return err
	}

	for _, st := range records {
		if st.LogPath != "" {
			_ = logwriter.TrimIfOversize(st.LogPath, rt.maxLogBytes())
		}
	}

	if IsJSONOutput() {
		data, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	if len(records) == 0 {
		fmt.Println("No processes running")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tPROCESS\tPID\tSTATUS\tPORTS\tBRANCH")
	for _, st := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%v\t%s\n", st.GroupLabel, st.Process, st.Pid, st.Status, st.Ports, st.Branch)
	}
	return w.Flush()
}
