// Package logwriter implements the Log Writer: an append-only per-process log file that is
// trimmed in place, rather than rotated to numbered side files, whenever it grows past its
// configured cap. gopkg.in/lumberjack.v2 was considered and rejected for this — lumberjack's model
// is "roll to a new file and keep N old ones", which is the opposite of "keep one file, discard
// its oldest bytes" that this component requires.
package logwriter

import (
	"os"
	"path/filepath"

	"github.com/mmr-tortoise/portmux/internal/model"
)

// retainFraction is the portion of maxBytes kept when a log is trimmed.
const retainFraction = 0.5

// OpenForAppend opens path for append, creating its parent directory if needed. If the existing
// file exceeds maxBytes, it is trimmed in place to its most recent maxBytes*retainFraction bytes
// before being reopened. When disabled is true, the file is never created or touched and the
// returned writer discards everything by redirecting to the null device.
func OpenForAppend(path string, maxBytes int64, disabled bool) (*os.File, error) {
	if disabled {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "create log directory", err)
	}

	if err := trimIfOversize(path, maxBytes); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "open log file", err)
	}
	return f, nil
}

// TrimIfOversize is exported for `ps`, which performs the same trim when it scans recorded logs.
func TrimIfOversize(path string, maxBytes int64) error {
	return trimIfOversize(path, maxBytes)
}

func trimIfOversize(path string, maxBytes int64) error {
	if maxBytes <= 0 {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return model.WrapCLIError(model.ExitGeneralError, "stat log file", err)
	}
	if info.Size() <= maxBytes {
		return nil
	}

	retainBytes := int64(float64(maxBytes) * retainFraction)
	if retainBytes <= 0 {
		retainBytes = maxBytes
	}

	f, err := os.Open(path)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "open log file for trim", err)
	}
	defer f.Close()

	offset := info.Size() - retainBytes
	tail := make([]byte, retainBytes)
	if _, err := f.ReadAt(tail, offset); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "read log tail", err)
	}

	tmp := path + ".trim"
	if err := os.WriteFile(tmp, tail, 0o600); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "write trimmed log", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "rename trimmed log into place", err)
	}
	return nil
}
