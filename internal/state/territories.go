package state

import (
	"sort"
	"sync"
)

// NeutralOwner marks a territory that belongs to no player.
const NeutralOwner = 0

// Territory is the authoritative per-system record.
type Territory struct {
	ID             int     `json:"id"`
	Owner          int     `json:"owner"`
	Armies         int     `json:"armies"`
	Throne         bool    `json:"throne,omitempty"`
	MaxGarrison    int     `json:"max_garrison,omitempty"`
	GrowthProgress float64 `json:"-"`
	LastCombatTick uint64  `json:"last_combat_tick,omitempty"`
}

// Clone returns an independent copy of the territory record.
func (t *Territory) Clone() *Territory {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

// TerritoryDiff groups updated and removed territory identifiers for a tick.
type TerritoryDiff struct {
	Updated []*Territory `json:"updated,omitempty"`
	Removed []int        `json:"removed,omitempty"`
}

// TerritoryStore maintains the authoritative territory records with dirty tracking.
type TerritoryStore struct {
	mu      sync.RWMutex
	states  map[int]*Territory
	dirty   map[int]struct{}
	removed map[int]struct{}
}

// NewTerritoryStore constructs a thread-safe territory container.
func NewTerritoryStore() *TerritoryStore {
	return &TerritoryStore{
		states:  make(map[int]*Territory),
		dirty:   make(map[int]struct{}),
		removed: make(map[int]struct{}),
	}
}

// Upsert records or updates the territory and flags it for the next diff.
func (s *TerritoryStore) Upsert(territory *Territory) {
	if s == nil || territory == nil || territory.ID <= 0 {
		return
	}

	//1.- Clone the record to avoid concurrent mutation from callers.
	clone := territory.Clone()

	s.mu.Lock()
	//2.- Replace the stored state and mark it dirty for the diff collector.
	s.states[clone.ID] = clone
	delete(s.removed, clone.ID)
	s.dirty[clone.ID] = struct{}{}
	s.mu.Unlock()
}

// Get returns a defensive clone of the stored territory if present.
func (s *TerritoryStore) Get(id int) *Territory {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	territory, ok := s.states[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return territory.Clone()
}

// Mutate applies fn to the stored territory under lock and marks it dirty.
// The callback receives the live record; fn returning false leaves the dirty
// tracker untouched so pure reads stay free.
func (s *TerritoryStore) Mutate(id int, fn func(*Territory) bool) bool {
	if s == nil || fn == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	territory, ok := s.states[id]
	if !ok {
		return false
	}
	//1.- Apply the mutation in place and only flag the diff on change.
	if fn(territory) {
		s.dirty[id] = struct{}{}
	}
	return true
}

// OwnedBy returns the ascending ids of territories owned by the player.
func (s *TerritoryStore) OwnedBy(playerID int) []int {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	ids := make([]int, 0)
	for id, territory := range s.states {
		if territory != nil && territory.Owner == playerID {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// ConsumeDiff collects and clears the pending territory updates and removals.
func (s *TerritoryStore) ConsumeDiff() TerritoryDiff {
	if s == nil {
		return TerritoryDiff{}
	}

	s.mu.Lock()
	//1.- Snapshot the dirty and removed identifiers under lock.
	dirtyIDs := make([]int, 0, len(s.dirty))
	for id := range s.dirty {
		dirtyIDs = append(dirtyIDs, id)
	}
	removedIDs := make([]int, 0, len(s.removed))
	for id := range s.removed {
		removedIDs = append(removedIDs, id)
	}

	//2.- Reset the trackers before releasing the lock.
	s.dirty = make(map[int]struct{})
	s.removed = make(map[int]struct{})

	//3.- Clone the records corresponding to the dirty identifiers.
	sort.Ints(dirtyIDs)
	sort.Ints(removedIDs)
	updated := make([]*Territory, 0, len(dirtyIDs))
	for _, id := range dirtyIDs {
		if territory, ok := s.states[id]; ok {
			updated = append(updated, territory.Clone())
		}
	}
	s.mu.Unlock()

	return TerritoryDiff{Updated: updated, Removed: removedIDs}
}

// Snapshot returns every territory as a defensive clone, ordered by id.
func (s *TerritoryStore) Snapshot() []*Territory {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	snapshot := make([]*Territory, 0, len(s.states))
	for _, territory := range s.states {
		if territory != nil {
			snapshot = append(snapshot, territory.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}
