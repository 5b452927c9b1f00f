package cli

import (
	"github.com/mmr-tortoise/portmux/internal/config"
	"github.com/mmr-tortoise/portmux/internal/lock"
	"github.com/mmr-tortoise/portmux/internal/model"
	"github.com/mmr-tortoise/portmux/internal/portengine"
	"github.com/mmr-tortoise/portmux/internal/state"
	"github.com/mmr-tortoise/portmux/internal/supervisor"
)

// runtime bundles the subsystems every process-lifecycle command needs, wired once per
// invocation from $HOME/.config/portmux.
type runtime struct {
	root         string
	store        *state.Store
	engine       *portengine.Engine
	supervisor   *supervisor.Supervisor
	globalConfig *model.GlobalConfig
}

func newRuntime() (*runtime, error) {
	root, err := config.GlobalConfigDir()
	if err != nil {
		return nil, err
	}

	global, err := config.LoadGlobal()
	if err != nil {
		return nil, err
	}

	store := state.New(root)
	engine := portengine.NewEngine(store)
	sup := supervisor.New(store, engine)

	return &runtime{root: root, store: store, engine: engine, supervisor: sup, globalConfig: global}, nil
}

// withGroupLock runs body while holding the advisory lock scoped to groupInstanceId — every
// command that mutates a group's state or ports acquires it first.
func (r *runtime) withGroupLock(groupInstanceId string, body func() error) error {
	return lock.WithLock(r.root, lock.ScopeGroup, groupInstanceId, body)
}

func (r *runtime) maxLogBytes() int64 {
	return r.globalConfig.EffectiveMaxBytes()
}

func (r *runtime) logDisabled() bool {
	return r.globalConfig.LoggingDisabled()
}
