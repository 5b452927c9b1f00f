package supervisor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/portmux/internal/model"
	"github.com/mmr-tortoise/portmux/internal/pidutil"
	"github.com/mmr-tortoise/portmux/internal/portengine"
	"github.com/mmr-tortoise/portmux/internal/state"
)

// withFastTimings shrinks the settle delay and poll intervals for the duration of a test, so
// exercising real child processes doesn't make the suite slow.
func withFastTimings(t *testing.T) {
	t.Helper()
	origSettle, origPoll, origGrace := settleDelay, stopPollInterval, killGrace
	settleDelay = 20 * time.Millisecond
	stopPollInterval = 5 * time.Millisecond
	killGrace = 20 * time.Millisecond
	t.Cleanup(func() {
		settleDelay, stopPollInterval, killGrace = origSettle, origPoll, origGrace
	})
}

func newTestSupervisor(t *testing.T) (*Supervisor, *state.Store) {
	t.Helper()
	root := t.TempDir()
	store := state.New(root)
	engine := portengine.NewEngine(store)
	return New(store, engine), store
}

func TestStart_SpawnsLongRunningProcessAndPersistsState(t *testing.T) {
	withFastTimings(t)
	sup, store := newTestSupervisor(t)

	result, err := sup.Start("repo::dev::aaaa0000", "web", "sleep 30", StartOptions{
		ProjectRoot: t.TempDir(),
	})
	require.NoError(t, err)
	assert.NotZero(t, result.Pid)
	defer terminate(result.Pid, 9) // SIGKILL cleanup regardless of test outcome

	st := store.Read("repo::dev::aaaa0000", "web")
	require.NotNil(t, st)
	assert.Equal(t, model.StatusRunning, st.Status)
	assert.Equal(t, result.Pid, st.Pid)
}

func TestStart_FailsWhenAlreadyRunning(t *testing.T) {
	withFastTimings(t)
	sup, _ := newTestSupervisor(t)

	result, err := sup.Start("repo::dev::bbbb0000", "web", "sleep 30", StartOptions{ProjectRoot: t.TempDir()})
	require.NoError(t, err)
	defer terminate(result.Pid, 9)

	_, err = sup.Start("repo::dev::bbbb0000", "web", "sleep 30", StartOptions{ProjectRoot: t.TempDir()})
	require.Error(t, err)
	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitProcessStart, cliErr.Code)
}

func TestStart_ExitsImmediatelyFails(t *testing.T) {
	withFastTimings(t)
	sup, store := newTestSupervisor(t)

	_, err := sup.Start("repo::dev::cccc0000", "web", "true", StartOptions{ProjectRoot: t.TempDir()})
	require.Error(t, err)
	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitProcessStart, cliErr.Code)
	assert.Nil(t, store.Read("repo::dev::cccc0000", "web"))
}

func TestStart_WritesLogOutput(t *testing.T) {
	withFastTimings(t)
	sup, store := newTestSupervisor(t)

	result, err := sup.Start("repo::dev::dddd0000", "web", "echo hello && sleep 30", StartOptions{
		ProjectRoot: t.TempDir(),
	})
	require.NoError(t, err)
	defer terminate(result.Pid, 9)

	time.Sleep(30 * time.Millisecond)
	data, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")

	st := store.Read("repo::dev::dddd0000", "web")
	require.NotNil(t, st)
	assert.Equal(t, result.LogPath, st.LogPath)
}

func TestStop_TerminatesRunningProcessAndDeletesState(t *testing.T) {
	withFastTimings(t)
	sup, store := newTestSupervisor(t)

	result, err := sup.Start("repo::dev::eeee0000", "web", "sleep 30", StartOptions{ProjectRoot: t.TempDir()})
	require.NoError(t, err)

	require.NoError(t, sup.Stop("repo::dev::eeee0000", "web", 2*time.Second))

	assert.Nil(t, store.Read("repo::dev::eeee0000", "web"))
	assert.False(t, pidutil.IsAlive(result.Pid))
}

func TestStop_NoStateFails(t *testing.T) {
	sup, _ := newTestSupervisor(t)

	err := sup.Stop("repo::dev::ffff0000", "ghost", time.Second)
	require.Error(t, err)
	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitProcessStop, cliErr.Code)
}

func TestStop_DeadPidCleansUpWithoutSignaling(t *testing.T) {
	sup, store := newTestSupervisor(t)

	require.NoError(t, store.Write(&model.ProcessState{
		Group:   "repo::dev::00000000",
		Process: "ghost",
		Status:  model.StatusRunning,
		Pid:     1 << 30,
	}))

	require.NoError(t, sup.Stop("repo::dev::00000000", "ghost", time.Second))
	assert.Nil(t, store.Read("repo::dev::00000000", "ghost"))
}

func TestRestart_StopsThenStartsFreshProcess(t *testing.T) {
	withFastTimings(t)
	sup, store := newTestSupervisor(t)

	first, err := sup.Start("repo::dev::11110000", "web", "sleep 30", StartOptions{ProjectRoot: t.TempDir()})
	require.NoError(t, err)

	second, err := sup.Restart("repo::dev::11110000", "web", "sleep 30", StartOptions{ProjectRoot: t.TempDir()}, 2*time.Second)
	require.NoError(t, err)
	defer terminate(second.Pid, 9)

	assert.NotEqual(t, first.Pid, second.Pid)
	assert.False(t, pidutil.IsAlive(first.Pid))

	st := store.Read("repo::dev::11110000", "web")
	require.NotNil(t, st)
	assert.Equal(t, second.Pid, st.Pid)
}

func TestRestart_WritesErrorStateWhenStartFailsAfterStop(t *testing.T) {
	withFastTimings(t)
	sup, store := newTestSupervisor(t)

	_, err := sup.Start("repo::dev::22220000", "web", "sleep 30", StartOptions{ProjectRoot: t.TempDir()})
	require.NoError(t, err)

	_, err = sup.Restart("repo::dev::22220000", "web", "true", StartOptions{ProjectRoot: t.TempDir()}, 2*time.Second)
	require.Error(t, err)

	var cliErr *model.CLIError
	require.ErrorAs(t, err, &cliErr)
	assert.Equal(t, model.ExitProcessRestart, cliErr.Code)

	st := store.Read("repo::dev::22220000", "web")
	require.NotNil(t, st)
	assert.Equal(t, model.StatusError, st.Status)
}

func TestList_ReapsDeadEntriesAndReturnsLiveOnes(t *testing.T) {
	withFastTimings(t)
	sup, store := newTestSupervisor(t)

	result, err := sup.Start("repo::dev::33330000", "web", "sleep 30", StartOptions{ProjectRoot: t.TempDir()})
	require.NoError(t, err)
	defer terminate(result.Pid, 9)

	require.NoError(t, store.Write(&model.ProcessState{
		Group:   "repo::dev::44440000",
		Process: "ghost",
		Status:  model.StatusRunning,
		Pid:     1 << 30,
	}))

	list, err := sup.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "web", list[0].Process)

	assert.Nil(t, store.Read("repo::dev::44440000", "ghost"))
}

func TestStart_RelativeCwdJoinedUnderProjectRoot(t *testing.T) {
	withFastTimings(t)
	sup, store := newTestSupervisor(t)

	projectRoot := t.TempDir()
	sub := filepath.Join(projectRoot, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	result, err := sup.Start("repo::dev::55550000", "web", "pwd && sleep 30", StartOptions{
		ProjectRoot: projectRoot,
		Cwd:         "sub",
	})
	require.NoError(t, err)
	defer terminate(result.Pid, 9)

	time.Sleep(30 * time.Millisecond)
	data, err := os.ReadFile(result.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), sub)

	_ = store
}
