package state

import (
	"sort"
	"sync"
)

// PlayerKind distinguishes human connections from AI opponents.
type PlayerKind string

const (
	// HumanPlayer is a roster slot driven by a websocket client.
	HumanPlayer PlayerKind = "human"
	// BotPlayer is a roster slot driven by the AI controller.
	BotPlayer PlayerKind = "bot"
)

// Player is the authoritative per-player record. Territories mirrors the
// ownership column of the territory store; the two are only ever updated
// together through the engine's ownership helper.
type Player struct {
	ID          int              `json:"id"`
	Name        string           `json:"name"`
	Color       string           `json:"color"`
	Kind        PlayerKind       `json:"kind"`
	Territories map[int]struct{} `json:"-"`
	Eliminated  bool             `json:"eliminated,omitempty"`
}

// Clone returns an independent copy of the player record.
func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Territories = make(map[int]struct{}, len(p.Territories))
	for id := range p.Territories {
		clone.Territories[id] = struct{}{}
	}
	return &clone
}

// TerritoryCount reports how many territories the player currently holds.
func (p *Player) TerritoryCount() int {
	if p == nil {
		return 0
	}
	return len(p.Territories)
}

// TerritoryIDs returns the held territory ids in ascending order.
func (p *Player) TerritoryIDs() []int {
	if p == nil {
		return nil
	}
	ids := make([]int, 0, len(p.Territories))
	for id := range p.Territories {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// PlayerDiff groups updated and removed player identifiers for a tick.
type PlayerDiff struct {
	Updated []*Player `json:"updated,omitempty"`
	Removed []int     `json:"removed,omitempty"`
}

// PlayerStore maintains the room roster with dirty tracking.
type PlayerStore struct {
	mu      sync.RWMutex
	states  map[int]*Player
	dirty   map[int]struct{}
	removed map[int]struct{}
}

// NewPlayerStore constructs a thread-safe player container.
func NewPlayerStore() *PlayerStore {
	return &PlayerStore{
		states:  make(map[int]*Player),
		dirty:   make(map[int]struct{}),
		removed: make(map[int]struct{}),
	}
}

// Upsert records or updates the player and flags the record for the next diff.
func (s *PlayerStore) Upsert(player *Player) {
	if s == nil || player == nil || player.ID <= 0 {
		return
	}

	//1.- Clone the record so callers cannot alias the stored territory set.
	clone := player.Clone()
	if clone.Territories == nil {
		clone.Territories = make(map[int]struct{})
	}

	s.mu.Lock()
	s.states[clone.ID] = clone
	delete(s.removed, clone.ID)
	s.dirty[clone.ID] = struct{}{}
	s.mu.Unlock()
}

// Get returns a defensive clone of the stored player if present.
func (s *PlayerStore) Get(id int) *Player {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	player, ok := s.states[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return player.Clone()
}

// Mutate applies fn to the stored player under lock and marks it dirty when
// fn reports a change.
func (s *PlayerStore) Mutate(id int, fn func(*Player) bool) bool {
	if s == nil || fn == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.states[id]
	if !ok {
		return false
	}
	if fn(player) {
		s.dirty[id] = struct{}{}
	}
	return true
}

// Active returns the ids of non-eliminated players in ascending order.
func (s *PlayerStore) Active() []int {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	ids := make([]int, 0, len(s.states))
	for id, player := range s.states {
		if player != nil && !player.Eliminated {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// ConsumeDiff collects and clears the pending player updates and removals.
func (s *PlayerStore) ConsumeDiff() PlayerDiff {
	if s == nil {
		return PlayerDiff{}
	}

	s.mu.Lock()
	dirtyIDs := make([]int, 0, len(s.dirty))
	for id := range s.dirty {
		dirtyIDs = append(dirtyIDs, id)
	}
	removedIDs := make([]int, 0, len(s.removed))
	for id := range s.removed {
		removedIDs = append(removedIDs, id)
	}
	s.dirty = make(map[int]struct{})
	s.removed = make(map[int]struct{})

	sort.Ints(dirtyIDs)
	sort.Ints(removedIDs)
	updated := make([]*Player, 0, len(dirtyIDs))
	for _, id := range dirtyIDs {
		if player, ok := s.states[id]; ok {
			updated = append(updated, player.Clone())
		}
	}
	s.mu.Unlock()

	return PlayerDiff{Updated: updated, Removed: removedIDs}
}

// Snapshot returns every player as a defensive clone, ordered by id.
func (s *PlayerStore) Snapshot() []*Player {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	snapshot := make([]*Player, 0, len(s.states))
	for _, player := range s.states {
		if player != nil {
			snapshot = append(snapshot, player.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}
