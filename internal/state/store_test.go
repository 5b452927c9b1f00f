package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/portmux/internal/model"
)

func TestReadWriteDelete(t *testing.T) {
	store := New(t.TempDir())

	st := &model.ProcessState{
		Group:   "myrepo::app::ab12cd34",
		Process: "web",
		Status:  model.StatusRunning,
		Pid:     4242,
		Ports:   []int{3000},
	}

	require.NoError(t, store.Write(st))

	got := store.Read(st.Group, st.Process)
	require.NotNil(t, got)
	assert.Equal(t, st.Pid, got.Pid)
	assert.Equal(t, st.Ports, got.Ports)

	require.NoError(t, store.Delete(st.Group, st.Process))
	assert.Nil(t, store.Read(st.Group, st.Process))
}

func TestDelete_Idempotent(t *testing.T) {
	store := New(t.TempDir())
	assert.NoError(t, store.Delete("nonexistent", "proc"))
}

func TestRead_CorruptFileTreatedAsAbsent(t *testing.T) {
	root := t.TempDir()
	store := New(root)

	require.NoError(t, os.MkdirAll(store.stateDir(), 0o700))
	path := store.recordPath("myrepo::app::ab12cd34", "web")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o600))

	assert.Nil(t, store.Read("myrepo::app::ab12cd34", "web"))
}

func TestRead_AbsentDirectory(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Nil(t, store.Read("a", "b"))
}

func TestWrite_AtomicRename(t *testing.T) {
	root := t.TempDir()
	store := New(root)

	st := &model.ProcessState{Group: "g", Process: "p", Status: model.StatusRunning}
	require.NoError(t, store.Write(st))

	// No leftover .tmp file after a successful write.
	entries, err := os.ReadDir(store.stateDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestListAll(t *testing.T) {
	store := New(t.TempDir())

	require.NoError(t, store.Write(&model.ProcessState{Group: "g1", Process: "p1", Status: model.StatusRunning}))
	require.NoError(t, store.Write(&model.ProcessState{Group: "g2", Process: "p2", Status: model.StatusRunning}))

	// A stray non-JSON file and a corrupt JSON file must be skipped, not fail the whole scan.
	require.NoError(t, os.WriteFile(filepath.Join(store.stateDir(), "notes.txt"), []byte("hello"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(store.stateDir(), "corrupt.json"), []byte("{bad"), 0o600))

	all, err := store.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListAll_MissingDirectory(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "missing"))
	all, err := store.ListAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGenerateLogPath_Unique(t *testing.T) {
	store := New(t.TempDir())
	a := store.GenerateLogPath("g", "p")
	b := store.GenerateLogPath("g", "p")
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, store.LogDir())
}
