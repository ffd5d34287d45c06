package state

import (
	"sync"
)

// Phase tracks the one-way lifecycle of a game room.
type Phase string

const (
	// PhaseLobby means the roster is still assembling; the simulation is idle.
	PhaseLobby Phase = "lobby"
	// PhasePlaying means the tick pipeline is advancing the simulation.
	PhasePlaying Phase = "playing"
	// PhaseEnded means a winner (or draw) has been decided; state is frozen.
	PhaseEnded Phase = "ended"
)

// TickDiff bundles every store's per-tick changes for the snapshot publisher.
type TickDiff struct {
	Tick        uint64        `json:"tick"`
	Phase       Phase         `json:"phase"`
	Winner      int           `json:"winner,omitempty"`
	Territories TerritoryDiff `json:"territories"`
	Players     PlayerDiff    `json:"players"`
	Probes      ProbeDiff     `json:"probes"`
	Routes      RouteDiff     `json:"routes"`
}

// Empty reports whether the diff carries no changes at all.
func (d TickDiff) Empty() bool {
	return len(d.Territories.Updated) == 0 && len(d.Territories.Removed) == 0 &&
		len(d.Players.Updated) == 0 && len(d.Players.Removed) == 0 &&
		len(d.Probes.Updated) == 0 && len(d.Probes.Removed) == 0 &&
		len(d.Routes.Updated) == 0 && len(d.Routes.Removed) == 0
}

// World aggregates the room's authoritative state.
type World struct {
	mu     sync.RWMutex
	tick   uint64
	phase  Phase
	winner int

	Territories *TerritoryStore
	Players     *PlayerStore
	Probes      *ProbeStore
	Routes      *RouteStore
}

// NewWorld constructs an empty world in the lobby phase.
func NewWorld() *World {
	return &World{
		phase:       PhaseLobby,
		Territories: NewTerritoryStore(),
		Players:     NewPlayerStore(),
		Probes:      NewProbeStore(),
		Routes:      NewRouteStore(),
	}
}

// Tick returns the current tick counter.
func (w *World) Tick() uint64 {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tick
}

// AdvanceTick increments and returns the tick counter.
func (w *World) AdvanceTick() uint64 {
	if w == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tick++
	return w.tick
}

// Phase returns the current lifecycle phase.
func (w *World) Phase() Phase {
	if w == nil {
		return PhaseLobby
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.phase
}

// Winner returns the winning player id, zero while undecided or on a draw.
func (w *World) Winner() int {
	if w == nil {
		return 0
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.winner
}

// Start moves the world from lobby to playing. Any other transition is a no-op.
func (w *World) Start() bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase != PhaseLobby {
		return false
	}
	w.phase = PhasePlaying
	return true
}

// End freezes the world with the given winner; zero records a draw. Only valid
// from the playing phase.
func (w *World) End(winner int) bool {
	if w == nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase != PhasePlaying {
		return false
	}
	w.phase = PhaseEnded
	w.winner = winner
	return true
}

// ConsumeDiff drains every store's pending changes into one tick diff.
func (w *World) ConsumeDiff() TickDiff {
	if w == nil {
		return TickDiff{}
	}
	w.mu.RLock()
	tick := w.tick
	phase := w.phase
	winner := w.winner
	w.mu.RUnlock()
	return TickDiff{
		Tick:        tick,
		Phase:       phase,
		Winner:      winner,
		Territories: w.Territories.ConsumeDiff(),
		Players:     w.Players.ConsumeDiff(),
		Probes:      w.Probes.ConsumeDiff(),
		Routes:      w.Routes.ConsumeDiff(),
	}
}

// Snapshot captures the complete world for keyframes and new subscribers.
type Snapshot struct {
	Tick        uint64         `json:"tick"`
	Phase       Phase          `json:"phase"`
	Winner      int            `json:"winner,omitempty"`
	Territories []*Territory   `json:"territories"`
	Players     []*Player      `json:"players"`
	Probes      []*Probe       `json:"probes,omitempty"`
	Routes      []*SupplyRoute `json:"routes,omitempty"`
}

// Snapshot returns a point-in-time copy of the entire world.
func (w *World) Snapshot() Snapshot {
	if w == nil {
		return Snapshot{Phase: PhaseLobby}
	}
	w.mu.RLock()
	tick := w.tick
	phase := w.phase
	winner := w.winner
	w.mu.RUnlock()
	return Snapshot{
		Tick:        tick,
		Phase:       phase,
		Winner:      winner,
		Territories: w.Territories.Snapshot(),
		Players:     w.Players.Snapshot(),
		Probes:      w.Probes.Snapshot(),
		Routes:      w.Routes.Snapshot(),
	}
}

// TotalArmies sums garrisons across every territory, in-flight probes excluded.
func (w *World) TotalArmies() int {
	if w == nil {
		return 0
	}
	total := 0
	for _, territory := range w.Territories.Snapshot() {
		total += territory.Armies
	}
	return total
}
