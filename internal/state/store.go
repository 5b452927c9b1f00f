// Package state implements the Persistent State Store: one JSON file per (groupInstanceId,
// processName) pair under $HOME/.config/portmux/state/, plus the derived log directory under
// .../logs/.
//
// Writes go through a temp-file-then-rename primitive so a crash mid-write never leaves a
// half-written record behind.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmr-tortoise/portmux/internal/model"
	"github.com/mmr-tortoise/portmux/internal/slug"
)

// Store reads and writes ProcessState records under a root directory (normally
// $HOME/.config/portmux), in state/ for records and logs/ for log files.
type Store struct {
	root string
}

// New returns a Store rooted at root (typically the value of config.GlobalConfigDir()).
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) stateDir() string {
	return filepath.Join(s.root, "state")
}

func (s *Store) logDir() string {
	return filepath.Join(s.root, "logs")
}

// RecordSlug returns the file-name-safe slug for a (groupInstanceId, processName) pair, shared
// by Read/Write/Delete and by GenerateLogPath so the two always agree on naming.
func RecordSlug(groupInstanceId, processName string) string {
	return slug.Slug(groupInstanceId) + "-" + slug.Slug(processName)
}

func (s *Store) recordPath(groupInstanceId, processName string) string {
	return filepath.Join(s.stateDir(), RecordSlug(groupInstanceId, processName)+".json")
}

// Read returns the ProcessState for (groupInstanceId, processName), or nil if the file is absent
// or fails to parse — corruption is treated as absence, so callers never need to distinguish
// "never started" from "state file got mangled".
func (s *Store) Read(groupInstanceId, processName string) *model.ProcessState {
	data, err := os.ReadFile(s.recordPath(groupInstanceId, processName))
	if err != nil {
		return nil
	}

	var st model.ProcessState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil
	}
	return &st
}

// Write persists st atomically (temp file + rename), creating the state directory with mode
// 0700 if missing. The file is serialized with a 2-space indent and a trailing newline.
func (s *Store) Write(st *model.ProcessState) error {
	if err := os.MkdirAll(s.stateDir(), 0o700); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "create state directory", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "marshal process state", err)
	}
	data = append(data, '\n')

	path := s.recordPath(st.Group, st.Process)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "write process state", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "rename process state into place", err)
	}
	return nil
}

// Delete removes the state file for (groupInstanceId, processName). It is idempotent: deleting
// an already-absent record is not an error.
func (s *Store) Delete(groupInstanceId, processName string) error {
	err := os.Remove(s.recordPath(groupInstanceId, processName))
	if err != nil && !os.IsNotExist(err) {
		return model.WrapCLIError(model.ExitGeneralError, "delete process state", err)
	}
	return nil
}

// ListAll scans the state directory and returns every record that parses successfully, skipping
// non-.json entries and unparsable files rather than failing the whole enumeration.
func (s *Store) ListAll() ([]*model.ProcessState, error) {
	entries, err := os.ReadDir(s.stateDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, model.WrapCLIError(model.ExitGeneralError, "list state directory", err)
	}

	var result []*model.ProcessState
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.stateDir(), entry.Name()))
		if err != nil {
			continue
		}
		var st model.ProcessState
		if err := json.Unmarshal(data, &st); err != nil {
			continue
		}
		result = append(result, &st)
	}
	return result, nil
}

// GenerateLogPath returns a unique path for a new log file, of the form
// <logDir>/<groupSlug>-<processSlug>-<timestampHash>.log. The directory is not created here;
// the Log Writer creates it lazily on first open.
func (s *Store) GenerateLogPath(groupInstanceId, processName string) string {
	hash := fmt.Sprintf("%x", time.Now().UnixNano())
	if len(hash) > 8 {
		hash = hash[len(hash)-8:]
	}
	name := fmt.Sprintf("%s-%s.log", RecordSlug(groupInstanceId, processName), hash)
	return filepath.Join(s.logDir(), name)
}

// LogDir exposes the log directory path that GenerateLogPath places log files under.
func (s *Store) LogDir() string {
	return s.logDir()
}
