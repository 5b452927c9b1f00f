// Package model defines the domain types shared across every PortMux subsystem: config shapes,
// resolver output, process state, and port reservations. The error taxonomy lives in errors.go.
package model

import "regexp"

// nameRegex bounds group, process, and repository alias names to something safe to embed in a
// filesystem path segment and a lock-file name without further escaping.
var nameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateName reports whether name is a legal group/process/repository alias.
func ValidateName(name string) bool {
	return name != "" && nameRegex.MatchString(name)
}

// Command is one entry in a Group's ordered command sequence.
type Command struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Ports   []any             `json:"ports,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Group is a named set of commands run together.
type Group struct {
	Description string    `json:"description,omitempty"`
	Commands    []Command `json:"commands"`
}

// RunnerConfig carries the optional runner.mode setting. "background" is the only recognized
// value; it is also the only mode PortMux implements, so the field exists mostly for forward
// compatibility with the config schema.
type RunnerConfig struct {
	Mode string `json:"mode,omitempty"`
}

// ProjectConfig is the parsed contents of a repository's portmux.config.json.
type ProjectConfig struct {
	Groups map[string]Group `json:"groups"`
	Runner *RunnerConfig     `json:"runner,omitempty"`
}

// RepositoryEntry is one entry in GlobalConfig.Repositories.
type RepositoryEntry struct {
	Path  string `json:"path"`
	Group string `json:"group"`
}

// LogsConfig configures the Log Writer's size-bound tail retention.
type LogsConfig struct {
	MaxBytes int64 `json:"maxBytes,omitempty"`
	Disabled bool  `json:"disabled,omitempty"`
}

// DefaultMaxLogBytes is the fallback maxBytes when GlobalConfig.Logs is nil or MaxBytes is unset.
const DefaultMaxLogBytes int64 = 10 * 1024 * 1024

// GlobalConfig is the parsed contents of $HOME/.config/portmux/config.json.
type GlobalConfig struct {
	Repositories map[string]RepositoryEntry `json:"repositories"`
	Logs         *LogsConfig                `json:"logs,omitempty"`
}

// EffectiveMaxBytes returns the configured log cap, falling back to DefaultMaxLogBytes.
func (g *GlobalConfig) EffectiveMaxBytes() int64 {
	if g == nil || g.Logs == nil || g.Logs.MaxBytes <= 0 {
		return DefaultMaxLogBytes
	}
	return g.Logs.MaxBytes
}

// LoggingDisabled reports whether the global config turns off log-file writing entirely.
func (g *GlobalConfig) LoggingDisabled() bool {
	return g != nil && g.Logs != nil && g.Logs.Disabled
}

// ResolvedGroup is the runtime value produced by the Group Resolver: a concrete, addressable
// group instance plus everything the Supervisor and Port Engine need to act on it.
type ResolvedGroup struct {
	RepositoryName      string
	WorktreePath        string
	RepositoryPath      string
	ProjectConfig       *ProjectConfig
	ProjectConfigPath   string
	GroupDefinitionName string
	BranchLabel         string

	// Warnings carries messages the resolver wants surfaced to the user about how this group was
	// picked (e.g. falling back to the project's first group with no Git root to disambiguate),
	// without making that fallback an error.
	Warnings []string
}

// Group returns the resolved Group definition, which is guaranteed present by the resolver's own
// validation (a ResolvedGroup is never handed back with a dangling GroupDefinitionName).
func (r *ResolvedGroup) Group() Group {
	return r.ProjectConfig.Groups[r.GroupDefinitionName]
}

// ProcessStatus is the tagged status a ProcessState can carry.
type ProcessStatus string

const (
	StatusRunning ProcessStatus = "Running"
	StatusStopped ProcessStatus = "Stopped"
	StatusError   ProcessStatus = "Error"
)

// ProcessState is the durable record describing one supervised child process, one file per
// (groupInstanceId, processName) pair under $HOME/.config/portmux/state/.
type ProcessState struct {
	Group     string        `json:"group"`
	Process   string        `json:"process"`
	Status    ProcessStatus `json:"status"`
	Pid       int           `json:"pid,omitempty"`
	Command   string        `json:"command,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt string        `json:"startedAt,omitempty"`
	StoppedAt string        `json:"stoppedAt,omitempty"`
	LogPath   string        `json:"logPath,omitempty"`
	Ports     []int         `json:"ports,omitempty"`

	// Denormalized display fields, populated by the Supervisor at write time so that `ps` never
	// needs to re-resolve a group to render a human-readable row.
	GroupKey            string `json:"groupKey,omitempty"`
	GroupLabel          string `json:"groupLabel,omitempty"`
	RepositoryName      string `json:"repositoryName,omitempty"`
	GroupDefinitionName string `json:"groupDefinitionName,omitempty"`
	WorktreePath        string `json:"worktreePath,omitempty"`
	Branch              string `json:"branch,omitempty"`
}

// PortReservation is the in-memory (and, via ProcessState, durably shadowed) record of a set of
// ports claimed for one (groupInstanceId, processName) pair.
type PortReservation struct {
	GroupInstanceId string
	ProcessName     string
	Ports           []int
	Pid             int
	ReservedAt      string
	StartedAt       string
}

// SelectableCandidate is one row produced by the Group Resolver's buildSelectable operation,
// annotated for the `select` command's listing output.
type SelectableCandidate struct {
	RepositoryName      string `json:"repositoryName"`
	WorktreePath        string `json:"worktreePath"`
	GroupDefinitionName string `json:"groupDefinitionName"`
	BranchLabel         string `json:"branchLabel,omitempty"`
	IsRunning           bool   `json:"isRunning"`
	HasConfig           bool   `json:"hasConfig"`
	IsPrimary           bool   `json:"isPrimary"`
}
