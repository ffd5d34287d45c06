package state

import (
	"sort"
	"sync"
)

// SupplyRoute redirects army generation from a source territory to a
// destination along a path of friendly territories. A source territory has at
// most one active route, so routes are keyed by source id.
type SupplyRoute struct {
	Source      int   `json:"source"`
	Destination int   `json:"destination"`
	Path        []int `json:"path"`
	Active      bool  `json:"active"`
}

// Clone returns an independent copy of the route record.
func (r *SupplyRoute) Clone() *SupplyRoute {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Path = append([]int(nil), r.Path...)
	return &clone
}

// RouteDiff groups updated and removed route sources for a tick.
type RouteDiff struct {
	Updated []*SupplyRoute `json:"updated,omitempty"`
	Removed []int          `json:"removed,omitempty"`
}

// RouteStore maintains supply routes keyed by source territory.
type RouteStore struct {
	mu      sync.RWMutex
	states  map[int]*SupplyRoute
	dirty   map[int]struct{}
	removed map[int]struct{}
}

// NewRouteStore constructs a thread-safe supply route container.
func NewRouteStore() *RouteStore {
	return &RouteStore{
		states:  make(map[int]*SupplyRoute),
		dirty:   make(map[int]struct{}),
		removed: make(map[int]struct{}),
	}
}

// Upsert records or replaces the route sourced at route.Source.
func (s *RouteStore) Upsert(route *SupplyRoute) {
	if s == nil || route == nil || route.Source <= 0 || len(route.Path) < 2 {
		return
	}

	clone := route.Clone()

	s.mu.Lock()
	s.states[clone.Source] = clone
	delete(s.removed, clone.Source)
	s.dirty[clone.Source] = struct{}{}
	s.mu.Unlock()
}

// Remove deletes any route sourced at the territory.
func (s *RouteStore) Remove(source int) {
	if s == nil {
		return
	}

	s.mu.Lock()
	if _, ok := s.states[source]; ok {
		delete(s.states, source)
		delete(s.dirty, source)
		s.removed[source] = struct{}{}
	}
	s.mu.Unlock()
}

// Get returns a defensive clone of the route sourced at the territory.
func (s *RouteStore) Get(source int) *SupplyRoute {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	route, ok := s.states[source]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return route.Clone()
}

// Mutate applies fn to the stored route under lock and marks it dirty when fn
// reports a change.
func (s *RouteStore) Mutate(source int, fn func(*SupplyRoute) bool) bool {
	if s == nil || fn == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	route, ok := s.states[source]
	if !ok {
		return false
	}
	if fn(route) {
		s.dirty[source] = struct{}{}
	}
	return true
}

// Sources returns every route source id in ascending order.
func (s *RouteStore) Sources() []int {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	ids := make([]int, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// ConsumeDiff collects and clears the pending route updates and removals.
func (s *RouteStore) ConsumeDiff() RouteDiff {
	if s == nil {
		return RouteDiff{}
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
	updated := make([]*SupplyRoute, 0, len(dirtyIDs))
	for _, id := range dirtyIDs {
		if route, ok := s.states[id]; ok {
			updated = append(updated, route.Clone())
		}
	}
	s.mu.Unlock()

	return RouteDiff{Updated: updated, Removed: removedIDs}
}

// Snapshot returns every route as a defensive clone, ordered by source id.
func (s *RouteStore) Snapshot() []*SupplyRoute {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	snapshot := make([]*SupplyRoute, 0, len(s.states))
	for _, route := range s.states {
		if route != nil {
			snapshot = append(snapshot, route.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Source < snapshot[j].Source })
	return snapshot
}
