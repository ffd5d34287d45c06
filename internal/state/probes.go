package state

import (
	"sort"
	"sync"
)

// Probe is an in-flight colonization attempt toward a neutral territory.
type Probe struct {
	ID       string  `json:"id"`
	Owner    int     `json:"owner"`
	From     int     `json:"from"`
	To       int     `json:"to"`
	Progress float64 `json:"progress"`
	Duration float64 `json:"duration"`
}

// Clone returns an independent copy of the probe record.
func (p *Probe) Clone() *Probe {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// ProbeDiff groups updated and removed probe identifiers for a tick.
type ProbeDiff struct {
	Updated []*Probe `json:"updated,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

// ProbeStore maintains the in-flight probes with dirty tracking.
type ProbeStore struct {
	mu      sync.RWMutex
	states  map[string]*Probe
	dirty   map[string]struct{}
	removed map[string]struct{}
}

// NewProbeStore constructs a thread-safe probe container.
func NewProbeStore() *ProbeStore {
	return &ProbeStore{
		states:  make(map[string]*Probe),
		dirty:   make(map[string]struct{}),
		removed: make(map[string]struct{}),
	}
}

// Upsert records or updates the probe and flags it for the next diff.
func (s *ProbeStore) Upsert(probe *Probe) {
	if s == nil || probe == nil || probe.ID == "" {
		return
	}

	clone := probe.Clone()

	s.mu.Lock()
	s.states[clone.ID] = clone
	delete(s.removed, clone.ID)
	s.dirty[clone.ID] = struct{}{}
	s.mu.Unlock()
}

// Remove deletes the probe and marks its identifier for removal in the diff.
func (s *ProbeStore) Remove(probeID string) {
	if s == nil || probeID == "" {
		return
	}

	s.mu.Lock()
	delete(s.states, probeID)
	delete(s.dirty, probeID)
	s.removed[probeID] = struct{}{}
	s.mu.Unlock()
}

// Get returns a defensive clone of the stored probe if present.
func (s *ProbeStore) Get(probeID string) *Probe {
	if s == nil || probeID == "" {
		return nil
	}

	s.mu.RLock()
	probe, ok := s.states[probeID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return probe.Clone()
}

// Advance moves every probe forward by the elapsed step and returns clones of
// the probes that reached their destination. Arrived probes stay stored until
// the caller removes them after resolving the landing.
func (s *ProbeStore) Advance(stepSeconds float64) []*Probe {
	if s == nil || stepSeconds <= 0 {
		return nil
	}

	s.mu.Lock()
	arrived := make([]*Probe, 0)
	//1.- Integrate progress as a fraction of the total transit duration.
	for id, probe := range s.states {
		if probe == nil || probe.Duration <= 0 {
			continue
		}
		probe.Progress += stepSeconds / probe.Duration
		s.dirty[id] = struct{}{}
		if probe.Progress >= 1 {
			probe.Progress = 1
			arrived = append(arrived, probe.Clone())
		}
	}
	s.mu.Unlock()
	//2.- Order arrivals by id so resolution is deterministic.
	sort.Slice(arrived, func(i, j int) bool { return arrived[i].ID < arrived[j].ID })
	return arrived
}

// ConsumeDiff collects and clears the pending probe updates and removals.
func (s *ProbeStore) ConsumeDiff() ProbeDiff {
	if s == nil {
		return ProbeDiff{}
	}

	s.mu.Lock()
	dirtyIDs := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		dirtyIDs = append(dirtyIDs, id)
	}
	removedIDs := make([]string, 0, len(s.removed))
	for id := range s.removed {
		removedIDs = append(removedIDs, id)
	}
	s.dirty = make(map[string]struct{})
	s.removed = make(map[string]struct{})

	sort.Strings(dirtyIDs)
	sort.Strings(removedIDs)
	updated := make([]*Probe, 0, len(dirtyIDs))
	for _, id := range dirtyIDs {
		if probe, ok := s.states[id]; ok {
			updated = append(updated, probe.Clone())
		}
	}
	s.mu.Unlock()

	return ProbeDiff{Updated: updated, Removed: removedIDs}
}

// Snapshot returns every probe as a defensive clone, ordered by id.
func (s *ProbeStore) Snapshot() []*Probe {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	snapshot := make([]*Probe, 0, len(s.states))
	for _, probe := range s.states {
		if probe != nil {
			snapshot = append(snapshot, probe.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	return snapshot
}
