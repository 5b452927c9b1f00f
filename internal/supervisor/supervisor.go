// Package supervisor implements the Process Supervisor: spawning, stopping, and restarting
// detached background processes, and reconciling the `ps` view against reality. Each spawned
// command runs through `sh -c` with stdout/stderr wired to a per-process log file, and is stopped
// by signalling its whole process group rather than just its immediate PID.
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mmr-tortoise/portmux/internal/logging"
	"github.com/mmr-tortoise/portmux/internal/logwriter"
	"github.com/mmr-tortoise/portmux/internal/model"
	"github.com/mmr-tortoise/portmux/internal/pidutil"
	"github.com/mmr-tortoise/portmux/internal/portengine"
	"github.com/mmr-tortoise/portmux/internal/state"
)

// settleDelay is how long Start waits after spawning before checking the child is still alive.
var settleDelay = 2 * time.Second

// stopPollInterval is how often Stop polls for death after sending SIGTERM.
var stopPollInterval = 100 * time.Millisecond

// killGrace is how long Stop waits after SIGKILL before giving up.
var killGrace = 500 * time.Millisecond

// StartOptions carries everything startProcess needs beyond the (groupInstanceId, processName,
// shellCommand) triple.
type StartOptions struct {
	Ports       []int
	ProjectRoot string
	Cwd         string
	Env         map[string]string
	MaxLogBytes int64
	LogDisabled bool

	// Display fields, written through to ProcessState for ps to render without re-resolving.
	GroupKey            string
	GroupLabel          string
	RepositoryName      string
	GroupDefinitionName string
	WorktreePath        string
	Branch              string
}

// StartResult reports what Start did, including any non-fatal warnings surfaced along the way.
type StartResult struct {
	Pid      int
	LogPath  string
	Warnings []string
}

// Supervisor drives the process lifecycle, backed by a Store for durable state and a port
// reservation Engine for claiming and releasing TCP ports.
type Supervisor struct {
	store  *state.Store
	engine *portengine.Engine
}

// New returns a Supervisor backed by store and engine.
func New(store *state.Store, engine *portengine.Engine) *Supervisor {
	return &Supervisor{store: store, engine: engine}
}

// Start reconciles any stale state, reserves ports, then spawns the process, step by step.
func (s *Supervisor) Start(groupInstanceId, processName, shellCommand string, opts StartOptions) (*StartResult, error) {
	log := logging.Component("supervisor")

	// 1. reconcile.
	if err := s.engine.ReconcileFromState(); err != nil {
		return nil, err
	}

	// 2. plan reservation.
	var warnings []string
	var token string
	if len(opts.Ports) > 0 {
		plan, err := s.engine.PlanReservation(groupInstanceId, processName, opts.Ports)
		if err != nil {
			return nil, err
		}
		token = plan.ReservationToken
		warnings = append(warnings, plan.Warnings...)
	}

	// 3. check existing state.
	if existing := s.store.Read(groupInstanceId, processName); existing != nil {
		if existing.Status == model.StatusRunning && pidutil.IsAlive(existing.Pid) {
			s.engine.ReleaseReservation(token)
			return nil, model.NewCLIError(model.ExitProcessStart, "already running")
		}
		if err := s.store.Delete(groupInstanceId, processName); err != nil {
			s.engine.ReleaseReservation(token)
			return nil, err
		}
	}

	// 4-5. resolve cwd.
	cwd := opts.Cwd
	if cwd == "" {
		cwd = opts.ProjectRoot
	} else if !filepath.IsAbs(cwd) {
		cwd = filepath.Join(opts.ProjectRoot, cwd)
	}

	// 6. compose environment.
	childEnv := append([]string{}, os.Environ()...)
	for k, v := range opts.Env {
		childEnv = append(childEnv, k+"="+v)
	}

	// 7. allocate and open the log.
	maxBytes := opts.MaxLogBytes
	if maxBytes <= 0 {
		maxBytes = model.DefaultMaxLogBytes
	}
	logPath := s.store.GenerateLogPath(groupInstanceId, processName)
	logFile, err := logwriter.OpenForAppend(logPath, maxBytes, opts.LogDisabled)
	if err != nil {
		s.engine.ReleaseReservation(token)
		return nil, err
	}

	// 8-9. spawn, detached.
	cmd := exec.Command("sh", "-c", shellCommand)
	cmd.Dir = cwd
	cmd.Env = childEnv
	cmd.Stdin = nil
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	detach(cmd)

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		s.engine.ReleaseReservation(token)
		return nil, model.WrapCLIError(model.ExitProcessStart, "spawn child process", err)
	}

	// The parent must not wait on the detached child; reap it asynchronously so it never becomes
	// a zombie, without blocking Start's return.
	go func() { _ = cmd.Wait() }()

	// 10. close the parent-side log descriptor.
	if err := logFile.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close parent-side log descriptor")
	}

	// 11. obtain the pid.
	pid := cmd.Process.Pid
	if pid == 0 {
		s.engine.ReleaseReservation(token)
		return nil, model.NewCLIError(model.ExitProcessStart, "no pid")
	}

	// 12. settle delay.
	time.Sleep(settleDelay)
	if !pidutil.IsAlive(pid) {
		s.engine.ReleaseReservation(token)
		return nil, model.NewCLIError(model.ExitProcessStart, "exited immediately")
	}

	// 13. commit and persist.
	s.engine.CommitReservation(token)

	st := &model.ProcessState{
		Group:               groupInstanceId,
		Process:             processName,
		Status:              model.StatusRunning,
		Pid:                 pid,
		Command:             shellCommand,
		StartedAt:           time.Now().UTC().Format(time.RFC3339Nano),
		LogPath:             logPath,
		Ports:               opts.Ports,
		GroupKey:            opts.GroupKey,
		GroupLabel:          opts.GroupLabel,
		RepositoryName:      opts.RepositoryName,
		GroupDefinitionName: opts.GroupDefinitionName,
		WorktreePath:        opts.WorktreePath,
		Branch:              opts.Branch,
	}
	if err := s.store.Write(st); err != nil {
		return nil, err
	}

	return &StartResult{Pid: pid, LogPath: logPath, Warnings: warnings}, nil
}

// Stop signals the process group and waits up to timeout before escalating to SIGKILL.
func (s *Supervisor) Stop(groupInstanceId, processName string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	st := s.store.Read(groupInstanceId, processName)
	if st == nil {
		return model.NewCLIError(model.ExitProcessStop, "no state")
	}

	finish := func() error {
		logPath := st.LogPath
		if err := s.store.Delete(groupInstanceId, processName); err != nil {
			return err
		}
		if err := s.engine.ReleaseReservationByProcess(groupInstanceId, processName); err != nil {
			return err
		}
		if logPath != "" {
			_ = os.Remove(logPath) // best-effort; a leftover log file is harmless
		}
		return nil
	}

	if st.Status != model.StatusRunning || st.Pid == 0 {
		return finish()
	}

	if !pidutil.IsAlive(st.Pid) {
		return finish()
	}

	if err := terminate(st.Pid, syscall.SIGTERM); err != nil {
		_ = s.engine.ReleaseReservationByProcess(groupInstanceId, processName)
		return model.WrapCLIError(model.ExitProcessStop, "send SIGTERM", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !pidutil.IsAlive(st.Pid) {
			return finish()
		}
		time.Sleep(stopPollInterval)
	}

	if err := terminate(st.Pid, syscall.SIGKILL); err != nil {
		return model.WrapCLIError(model.ExitProcessStop, "send SIGKILL", err)
	}
	time.Sleep(killGrace)
	if pidutil.IsAlive(st.Pid) {
		return model.NewCLIError(model.ExitProcessStop, fmt.Sprintf("process %d did not die after SIGKILL", st.Pid))
	}

	return finish()
}

// Restart stops the existing process and starts it again with opts. A process with no state
// record cannot be restarted: Stop's "no state" error is returned wrapped as ProcessRestart.
func (s *Supervisor) Restart(groupInstanceId, processName, shellCommand string, opts StartOptions, timeout time.Duration) (*StartResult, error) {
	prior := s.store.Read(groupInstanceId, processName)

	if err := s.Stop(groupInstanceId, processName, timeout); err != nil {
		return nil, model.WrapCLIError(model.ExitProcessRestart, "stop before restart", err)
	}

	result, err := s.Start(groupInstanceId, processName, shellCommand, opts)
	if err != nil {
		errState := &model.ProcessState{
			Group:   groupInstanceId,
			Process: processName,
			Status:  model.StatusError,
			Error:   err.Error(),
		}
		if prior != nil {
			errState.LogPath = prior.LogPath
			errState.Ports = prior.Ports
		}
		_ = s.store.Write(errState)
		return nil, model.WrapCLIError(model.ExitProcessRestart, "restart failed", err)
	}

	return result, nil
}

// List reads every state file, verifies liveness of
// Running entries, and performs a delete-on-dead side effect for any that have died.
func (s *Supervisor) List() ([]*model.ProcessState, error) {
	records, err := s.store.ListAll()
	if err != nil {
		return nil, err
	}

	var live []*model.ProcessState
	for _, st := range records {
		if st.Status == model.StatusRunning && st.Pid != 0 && !pidutil.IsAlive(st.Pid) {
			stopped := *st
			stopped.Status = model.StatusStopped
			stopped.StoppedAt = time.Now().UTC().Format(time.RFC3339Nano)
			_ = s.store.Write(&stopped)
			_ = s.store.Delete(st.Group, st.Process)
			continue
		}
		live = append(live, st)
	}
	return live, nil
}
