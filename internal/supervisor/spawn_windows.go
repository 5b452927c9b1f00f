//go:build windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// detach is a no-op placeholder on Windows, which has no process-group/session concept
// equivalent to Setsid; PortMux's primary supported platforms are Linux and macOS.
func detach(cmd *exec.Cmd) {}

// terminate has no SIGTERM equivalent on Windows; every signal value maps to an unconditional
// Kill, which is the closest available semantics.
func terminate(pid int, _ syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
