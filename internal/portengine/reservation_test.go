package portengine

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/portmux/internal/model"
	"github.com/mmr-tortoise/portmux/internal/state"
)

// listenOnFreePort binds an ephemeral listener and returns its port, guaranteeing a port that
// IsPortInUse will report as in-use for the life of the test.
func listenOnFreePort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	return ln.Addr().(*net.TCPAddr).Port, func() { _ = ln.Close() }
}

// freeUnusedPort finds a port that is free both at bind time and after closing, by opening then
// immediately closing a listener.
func freeUnusedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestPlanReservation_RejectsOSPortInUse(t *testing.T) {
	store := state.New(t.TempDir())
	engine := NewEngine(store)

	port, closeFn := listenOnFreePort(t)
	defer closeFn()

	_, err := engine.PlanReservation("repo::app::abcd1234", "web", []int{port})
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitPortInUse, cliErr.Code)
}

func TestPlanReservation_DisjointPortsSucceed(t *testing.T) {
	store := state.New(t.TempDir())
	engine := NewEngine(store)

	portA := freeUnusedPort(t)
	portB := freeUnusedPort(t)
	for portB == portA {
		portB = freeUnusedPort(t)
	}

	resA, err := engine.PlanReservation("repo::app::aaaa0000", "web", []int{portA})
	require.NoError(t, err)
	assert.NotEmpty(t, resA.ReservationToken)

	resB, err := engine.PlanReservation("repo::app::bbbb0000", "web", []int{portB})
	require.NoError(t, err)
	assert.NotEmpty(t, resB.ReservationToken)
	assert.NotEqual(t, resA.ReservationToken, resB.ReservationToken)
}

func TestPlanReservation_RejectsPendingOverlap(t *testing.T) {
	store := state.New(t.TempDir())
	engine := NewEngine(store)

	port := freeUnusedPort(t)

	_, err := engine.PlanReservation("repo::app::aaaa0000", "web", []int{port})
	require.NoError(t, err)

	_, err = engine.PlanReservation("repo::app::bbbb0000", "web", []int{port})
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitPortInUse, cliErr.Code)
}

func TestPlanReservation_RejectsOverlapWithDurableRunningState(t *testing.T) {
	store := state.New(t.TempDir())
	engine := NewEngine(store)

	port := freeUnusedPort(t)

	require.NoError(t, store.Write(&model.ProcessState{
		Group:   "repo::app::aaaa0000",
		Process: "web",
		Status:  model.StatusRunning,
		Pid:     1, // pid 1 always exists
		Ports:   []int{port},
	}))

	_, err := engine.PlanReservation("repo::app::bbbb0000", "web", []int{port})
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitPortInUse, cliErr.Code)
}

func TestPlanReservation_SameProcessWarnsInsteadOfRejecting(t *testing.T) {
	store := state.New(t.TempDir())
	engine := NewEngine(store)

	port := freeUnusedPort(t)

	require.NoError(t, store.Write(&model.ProcessState{
		Group:   "repo::app::aaaa0000",
		Process: "web",
		Status:  model.StatusRunning,
		Pid:     1,
		Ports:   []int{port},
	}))

	result, err := engine.PlanReservation("repo::app::aaaa0000", "web", []int{port})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warnings)
}

func TestCommitReservation_ClearsPendingEntry(t *testing.T) {
	store := state.New(t.TempDir())
	engine := NewEngine(store)

	port := freeUnusedPort(t)
	result, err := engine.PlanReservation("repo::app::aaaa0000", "web", []int{port})
	require.NoError(t, err)

	engine.CommitReservation(result.ReservationToken)

	engine.mu.Lock()
	_, stillPending := engine.pending[result.ReservationToken]
	engine.mu.Unlock()
	assert.False(t, stillPending)

	// Committing releases the pending slot, so a fresh plan for the same port now succeeds again
	// (durability of the real reservation is the Supervisor's job via the state store).
	_, err = engine.PlanReservation("repo::app::cccc0000", "web", []int{port})
	assert.NoError(t, err)
}

func TestReleaseReservation_ClearsPendingEntry(t *testing.T) {
	store := state.New(t.TempDir())
	engine := NewEngine(store)

	port := freeUnusedPort(t)
	result, err := engine.PlanReservation("repo::app::aaaa0000", "web", []int{port})
	require.NoError(t, err)

	engine.ReleaseReservation(result.ReservationToken)

	_, err = engine.PlanReservation("repo::app::dddd0000", "web", []int{port})
	assert.NoError(t, err)
}

func TestReleaseReservationByProcess_DeletesState(t *testing.T) {
	store := state.New(t.TempDir())
	engine := NewEngine(store)

	require.NoError(t, store.Write(&model.ProcessState{
		Group:   "repo::app::aaaa0000",
		Process: "web",
		Status:  model.StatusRunning,
		Pid:     1,
	}))

	require.NoError(t, engine.ReleaseReservationByProcess("repo::app::aaaa0000", "web"))
	assert.Nil(t, store.Read("repo::app::aaaa0000", "web"))
}

func TestReconcileFromState_RemovesDeadPidEntries(t *testing.T) {
	store := state.New(t.TempDir())
	engine := NewEngine(store)

	require.NoError(t, store.Write(&model.ProcessState{
		Group:   "repo::app::aaaa0000",
		Process: "dead",
		Status:  model.StatusRunning,
		Pid:     1 << 30, // implausibly large, guaranteed not alive
	}))
	require.NoError(t, store.Write(&model.ProcessState{
		Group:   "repo::app::aaaa0000",
		Process: "alive",
		Status:  model.StatusRunning,
		Pid:     1, // always alive
	}))

	require.NoError(t, engine.ReconcileFromState())

	assert.Nil(t, store.Read("repo::app::aaaa0000", "dead"))
	assert.NotNil(t, store.Read("repo::app::aaaa0000", "alive"))
}

func TestReconcileFromState_IsIdempotent(t *testing.T) {
	store := state.New(t.TempDir())
	engine := NewEngine(store)

	require.NoError(t, store.Write(&model.ProcessState{
		Group:   "repo::app::aaaa0000",
		Process: "dead",
		Status:  model.StatusRunning,
		Pid:     1 << 30,
	}))

	require.NoError(t, engine.ReconcileFromState())
	require.NoError(t, engine.ReconcileFromState())

	assert.Nil(t, store.Read("repo::app::aaaa0000", "dead"))
}

func TestReconcileFromState_IgnoresStoppedRecords(t *testing.T) {
	store := state.New(t.TempDir())
	engine := NewEngine(store)

	require.NoError(t, store.Write(&model.ProcessState{
		Group:     "repo::app::aaaa0000",
		Process:   "stopped",
		Status:    model.StatusStopped,
		StoppedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}))

	require.NoError(t, engine.ReconcileFromState())
	assert.NotNil(t, store.Read("repo::app::aaaa0000", "stopped"))
}
