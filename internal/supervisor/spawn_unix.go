//go:build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// detach marks cmd to start in its own session, so it survives the parent CLI process exiting
// while staying killable as a group via terminate below.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// terminate sends sig to the process group rooted at pid, falling back to the bare PID if the
// group lookup fails (e.g. the process already exited).
func terminate(pid int, sig syscall.Signal) error {
	if pgid, err := syscall.Getpgid(pid); err == nil {
		return syscall.Kill(-pgid, sig)
	}
	return syscall.Kill(pid, sig)
}
