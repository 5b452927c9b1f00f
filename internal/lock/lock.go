// Package lock implements the Lock Manager: one advisory lock file per (scope, key) under
// $HOME/.config/portmux/locks/, backed by github.com/gofrs/flock for the OS-level advisory
// primitive, with a retry-with-backoff acquire loop on top. The staleness-steal behavior is
// layered on top of flock itself: flock has no notion of lock age, so PortMux stamps the lock
// file's mtime on acquire and checks it before stealing a lock that looks abandoned.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/mmr-tortoise/portmux/internal/logging"
	"github.com/mmr-tortoise/portmux/internal/model"
)

const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 3 * time.Second
	maxRetries     = 10
	staleAfter     = 30 * time.Second
)

// Scope identifies which namespace a lock key lives in.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeGroup  Scope = "group"
)

// Path returns the lock file path for (scope, key) under root (normally
// config.GlobalConfigDir()).
func Path(root string, scope Scope, key string) string {
	return filepath.Join(root, "locks", fmt.Sprintf("%s-%s.lock", scope, key))
}

// WithLock acquires the advisory lock for (scope, key), runs body while holding it, and
// releases it on every exit path — including when body returns an error or panics (the panic is
// re-raised once the lock is released). If acquisition exhausts its retries it returns
// LockTimeout without running body. If releasing
// fails after body ran successfully, it returns LockRelease; if body itself failed, body's error
// takes precedence and the release failure is only logged, so callers always see the result that
// actually matters to them.
func WithLock(root string, scope Scope, key string, body func() error) error {
	path := Path(root, scope, key)
	log := logging.Component("lock")

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return model.WrapCLIError(model.ExitLockTimeout, "create lock directory", err)
	}

	fl := flock.New(path)
	if err := acquire(fl, path); err != nil {
		return err
	}

	var bodyErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				_ = release(fl, path)
				panic(r)
			}
		}()
		bodyErr = body()
	}()

	if relErr := release(fl, path); relErr != nil {
		if bodyErr != nil {
			log.Warn().Err(relErr).Str("path", path).Msg("failed to release lock after body error")
			return bodyErr
		}
		return model.WrapCLIError(model.ExitLockRelease, fmt.Sprintf("release lock %s", path), relErr)
	}

	return bodyErr
}

// acquire retries TryLock with exponential backoff, stealing the lock file if it is older than
// staleAfter, until maxRetries is exhausted.
func acquire(fl *flock.Flock, path string) error {
	backoff := initialBackoff
	log := logging.Component("lock")

	for attempt := 0; attempt <= maxRetries; attempt++ {
		locked, err := fl.TryLock()
		if err == nil && locked {
			stamp(path)
			return nil
		}

		if isStale(path) {
			log.Debug().Str("path", path).Msg("stealing stale lock")
			_ = os.Remove(path)
			fl = flock.New(path)
			continue
		}

		if attempt == maxRetries {
			break
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return model.NewCLIError(model.ExitLockTimeout, fmt.Sprintf("timed out acquiring lock %s", path))
}

// release unlocks fl and removes the now-empty lock file. A missing file is not an error — the
// lock is still considered released.
func release(fl *flock.Flock, path string) error {
	if err := fl.Unlock(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// stamp writes the current time into the lock file so isStale can later judge its age. flock
// holds the advisory lock on the file descriptor; writing content to it is independent of that
// and is only used for staleness bookkeeping.
func stamp(path string) {
	_ = os.WriteFile(path, []byte(time.Now().UTC().Format(time.RFC3339Nano)), 0o600)
}

// isStale reports whether the lock file at path is older than staleAfter. A missing file is not
// stale (there is nothing to steal).
func isStale(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > staleAfter
}
