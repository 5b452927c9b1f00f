// Package logging provides the structured diagnostic logger used by PortMux's internal
// subsystems (resolver, lock manager, supervisor, port engine). It is deliberately separate from
// the CLI's own stdout/stderr result printing: diagnostics go here, user-facing results and
// errors go through internal/cli's plain fmt/encoding-json printers.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	base        zerolog.Logger
	initOnce    sync.Once
	initialized bool
)

// Init configures the process-wide base logger. verbose raises the level to debug; otherwise
// only warnings and errors are emitted. Safe to call more than once; only the first call takes
// effect, matching the once-per-process initialization the CLI entry point performs.
func Init(verbose bool) zerolog.Logger {
	initOnce.Do(func() {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		base = zerolog.New(writer).Level(level).With().Timestamp().Logger()
		initialized = true
	})
	return base
}

// Component returns a child logger tagged with a "component" field, mirroring the per-package
// logger pattern used throughout the corpus's service layers. If the CLI entry point has not
// called Init yet (e.g. in a unit test exercising a subsystem directly), it initializes quietly
// at warn level.
func Component(name string) zerolog.Logger {
	if !initialized {
		Init(false)
	}
	return base.With().Str("component", name).Logger()
}

// Discard returns a logger that drops everything, useful for tests that exercise subsystems
// without caring about diagnostic output.
func Discard() zerolog.Logger {
	return zerolog.New(io.Discard)
}
