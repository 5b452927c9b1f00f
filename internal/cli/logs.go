package cli

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/portmux/internal/model"
)

// NewLogsCommand creates the "logs" cobra command. Continuous follow (tail -f semantics) is out
// of core scope; this dumps the last N lines of the recorded log file and exits. --no-follow is
// accepted as a no-op flag since "dump and exit" is the only mode implemented.
func NewLogsCommand() *cobra.Command {
	var (
		lines     int
		noFollow  bool
		timestamp bool
	)

	cmd := &cobra.Command{
		Use:   "logs <group> <process>",
		Short: "Show the tail of a supervised process's log file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(args[0], args[1], lines, noFollow, timestamp)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of trailing lines to show")
	cmd.Flags().BoolVar(&noFollow, "no-follow", false, "no-op; dump-and-exit is the only mode implemented")
	cmd.Flags().BoolVarP(&timestamp, "timestamp", "t", false, "prefix each line with the log file's mtime")
	return cmd
}

func runLogs(groupName, processName string, lines int, noFollow, timestamp bool) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	st := rt.store.Read(groupName, processName)
	if st == nil || st.LogPath == "" {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("no log recorded for %s/%s", groupName, processName))
	}

	f, err := os.Open(st.LogPath)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("open log file %s", st.LogPath), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "stat log file", err)
	}

	tail, err := tailLines(f, lines)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "read log tail", err)
	}

	prefix := ""
	if timestamp {
		prefix = info.ModTime().Format(time.RFC3339) + " "
	}
	for _, line := range tail {
		fmt.Println(prefix + line)
	}
	return nil
}

// tailLines returns the last n lines of f's contents, read in full and truncated in memory —
// adequate for the log sizes the Log Writer's maxBytes cap already bounds.
func tailLines(f *os.File, n int) ([]string, error) {
	var all []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		all = append(all, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(all) {
		return all, nil
	}
	return all[len(all)-n:], nil
}
