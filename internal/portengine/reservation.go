// Package portengine implements the two-phase Port Reservation Engine:
// planReservation/commitReservation/releaseReservation plus reconcileFromState. Reservations
// check an OS-level probe and then cross-reference an internally tracked allocation table before
// committing; PortMux never auto-shifts a port to the next free number, it only ever reserves the
// literal numbers resolved from config, failing the reservation instead when one is already taken.
package portengine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmr-tortoise/portmux/internal/logging"
	"github.com/mmr-tortoise/portmux/internal/model"
	"github.com/mmr-tortoise/portmux/internal/pidutil"
	"github.com/mmr-tortoise/portmux/internal/state"
)

// PlanResult is returned by PlanReservation: the token phase 2 needs, plus any non-fatal
// warnings to surface to the user.
type PlanResult struct {
	ReservationToken string
	Warnings         []string
}

// Engine holds the process-wide pending-reservation table: an explicit, process-lifetime value
// private to the Port Engine, accessed only on the single thread of control of one CLI invocation.
type Engine struct {
	store *state.Store

	mu      sync.Mutex
	pending map[string]model.PortReservation
}

// NewEngine returns an Engine backed by store.
func NewEngine(store *state.Store) *Engine {
	return &Engine{store: store, pending: make(map[string]model.PortReservation)}
}

// loadReservationsFromState turns every Running ProcessState with a PID into a reservation.
func (e *Engine) loadReservationsFromState() ([]model.PortReservation, error) {
	records, err := e.store.ListAll()
	if err != nil {
		return nil, err
	}

	var reservations []model.PortReservation
	for _, r := range records {
		if r.Status != model.StatusRunning || r.Pid == 0 {
			continue
		}
		reservations = append(reservations, model.PortReservation{
			GroupInstanceId: r.Group,
			ProcessName:     r.Process,
			Ports:           r.Ports,
			Pid:             r.Pid,
			StartedAt:       r.StartedAt,
		})
	}
	return reservations, nil
}

// PlanReservation is phase 1: probe the OS for the requested ports, compare against every other
// known reservation (durable + pending), and mint a reservation token on success.
func (e *Engine) PlanReservation(groupInstanceId, processName string, ports []int) (*PlanResult, error) {
	for _, port := range ports {
		if IsPortInUse(port) {
			return nil, model.NewCLIError(model.ExitPortInUse, fmt.Sprintf("port %d is already in use", port))
		}
	}

	existing, err := e.loadReservationsFromState()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var warnings []string
	requested := toSet(ports)

	for _, r := range existing {
		if r.GroupInstanceId == groupInstanceId && r.ProcessName == processName {
			warnings = append(warnings, "already running; stop before starting again")
			continue
		}
		if overlap := intersects(requested, toSet(r.Ports)); overlap != 0 {
			return nil, model.NewCLIError(model.ExitPortInUse,
				fmt.Sprintf("port %d is already reserved by %s/%s", overlap, r.GroupInstanceId, r.ProcessName))
		}
	}

	for token, r := range e.pending {
		if r.GroupInstanceId == groupInstanceId && r.ProcessName == processName {
			continue
		}
		if overlap := intersects(requested, toSet(r.Ports)); overlap != 0 {
			return nil, model.NewCLIError(model.ExitPortInUse,
				fmt.Sprintf("port %d is already pending reservation (token %s)", overlap, token))
		}
	}

	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	e.pending[token] = model.PortReservation{
		GroupInstanceId: groupInstanceId,
		ProcessName:     processName,
		Ports:           ports,
		ReservedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}

	return &PlanResult{ReservationToken: token, Warnings: warnings}, nil
}

// CommitReservation is phase 2: the pending entry is simply discarded, since durability comes
// from the ProcessState the Supervisor writes, not from this in-memory table.
func (e *Engine) CommitReservation(token string) {
	if token == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, token)
}

// ReleaseReservation drops a pending entry on a failure path, when the token is known.
func (e *Engine) ReleaseReservation(token string) {
	if token == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, token)
}

// ReleaseReservationByProcess drops any pending entry for (groupInstanceId, processName) and
// deletes the ProcessState from the store, used by stop and by start's failure paths.
func (e *Engine) ReleaseReservationByProcess(groupInstanceId, processName string) error {
	e.mu.Lock()
	for token, r := range e.pending {
		if r.GroupInstanceId == groupInstanceId && r.ProcessName == processName {
			delete(e.pending, token)
		}
	}
	e.mu.Unlock()

	return e.store.Delete(groupInstanceId, processName)
}

// ReconcileFromState walks every Running reservation and deletes any whose recorded PID is no
// longer alive. Invoked at the beginning of every start, and idempotent by construction (R3):
// running it twice in a row with no process exits in between is a no-op the second time.
func (e *Engine) ReconcileFromState() error {
	log := logging.Component("portengine")

	records, err := e.store.ListAll()
	if err != nil {
		return err
	}

	for _, r := range records {
		if r.Status != model.StatusRunning {
			continue
		}
		if r.Pid != 0 && pidutil.IsAlive(r.Pid) {
			continue
		}
		log.Debug().Str("group", r.Group).Str("process", r.Process).Int("pid", r.Pid).
			Msg("reconciling orphaned reservation")
		if err := e.store.Delete(r.Group, r.Process); err != nil {
			return err
		}
	}
	return nil
}

func toSet(ports []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ports))
	for _, p := range ports {
		set[p] = struct{}{}
	}
	return set
}

// intersects returns the first port present in both sets, or 0 if they are disjoint. Iteration
// order over a's keys is made deterministic for reproducible error messages in tests.
func intersects(a, b map[int]struct{}) int {
	ports := make([]int, 0, len(a))
	for p := range a {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	for _, p := range ports {
		if _, ok := b[p]; ok {
			return p
		}
	}
	return 0
}
