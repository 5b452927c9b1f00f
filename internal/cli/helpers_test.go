// Package cli — helpers_test.go covers the pure helper functions of the start, restart, sync,
// select, and logs commands, without standing up a runtime (store/supervisor/lock).
package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mmr-tortoise/portmux/internal/model"
)

func TestFindCommand(t *testing.T) {
	group := model.Group{
		Commands: []model.Command{
			{Name: "web", Command: "npm run dev"},
			{Name: "worker", Command: "npm run worker"},
		},
	}

	c, ok := findCommand(group, "worker")
	assert.True(t, ok)
	assert.Equal(t, "npm run worker", c.Command)

	_, ok = findCommand(group, "missing")
	assert.False(t, ok)
}

func TestFirstGroupName_PicksLexicographicallyFirst(t *testing.T) {
	cfg := &model.ProjectConfig{
		Groups: map[string]model.Group{
			"zeta":  {Commands: []model.Command{{Name: "a", Command: "a"}}},
			"alpha": {Commands: []model.Command{{Name: "b", Command: "b"}}},
		},
	}
	assert.Equal(t, "alpha", firstGroupName(cfg))
}

func TestFirstGroupName_EmptyGroupsReturnsEmptyString(t *testing.T) {
	cfg := &model.ProjectConfig{Groups: map[string]model.Group{}}
	assert.Equal(t, "", firstGroupName(cfg))
}

func TestPickCandidate_EmptyNamePicksFirst(t *testing.T) {
	candidates := []model.SelectableCandidate{
		{RepositoryName: "first"},
		{RepositoryName: "second"},
	}
	picked, err := pickCandidate(candidates, "")
	assert.NoError(t, err)
	assert.Equal(t, "first", picked.RepositoryName)
}

func TestPickCandidate_MatchesByName(t *testing.T) {
	candidates := []model.SelectableCandidate{
		{RepositoryName: "first"},
		{RepositoryName: "second"},
	}
	picked, err := pickCandidate(candidates, "second")
	assert.NoError(t, err)
	assert.Equal(t, "second", picked.RepositoryName)
}

func TestPickCandidate_UnknownNameErrors(t *testing.T) {
	candidates := []model.SelectableCandidate{{RepositoryName: "first"}}
	_, err := pickCandidate(candidates, "nonexistent")
	assert.Error(t, err)
}

func TestTailLines_TruncatesToLastN(t *testing.T) {
	f := openTempWithLines(t, []string{"one", "two", "three", "four"})
	defer f.Close()

	lines, err := tailLines(f, 2)
	assert.NoError(t, err)
	assert.Equal(t, []string{"three", "four"}, lines)
}

func TestTailLines_NReturnsEverythingWhenUnderCap(t *testing.T) {
	f := openTempWithLines(t, []string{"one", "two"})
	defer f.Close()

	lines, err := tailLines(f, 10)
	assert.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)
}

func openTempWithLines(t *testing.T, lines []string) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log.txt")
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp log: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open temp log: %v", err)
	}
	return f
}
