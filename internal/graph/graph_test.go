package graph

import (
	"reflect"
	"testing"
)

func lineSpec() Spec {
	//1.- Four territories joined in a line: 1-2-3-4, with 2-4 as a shortcut.
	return Spec{Territories: []Territory{
		{ID: 1, X: 0, Y: 0, Neighbors: []int{2}},
		{ID: 2, X: 1, Y: 0, Neighbors: []int{1, 3, 4}},
		{ID: 3, X: 2, Y: 0, Neighbors: []int{2, 4}},
		{ID: 4, X: 1, Y: 1, Neighbors: []int{2, 3}},
	}}
}

func TestNewRejectsAsymmetricLanes(t *testing.T) {
	spec := Spec{Territories: []Territory{
		{ID: 1, Neighbors: []int{2}},
		{ID: 2, Neighbors: nil},
	}}
	if _, err := New(spec); err == nil {
		t.Fatalf("expected error for asymmetric lane")
	}
}

func TestNewRejectsSelfLoop(t *testing.T) {
	spec := Spec{Territories: []Territory{{ID: 1, Neighbors: []int{1}}}}
	if _, err := New(spec); err == nil {
		t.Fatalf("expected error for self loop")
	}
}

func TestNewRejectsUnknownNeighbor(t *testing.T) {
	spec := Spec{Territories: []Territory{{ID: 1, Neighbors: []int{9}}}}
	if _, err := New(spec); err == nil {
		t.Fatalf("expected error for unknown neighbor")
	}
}

func TestAdjacent(t *testing.T) {
	g, err := New(lineSpec())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if !g.Adjacent(1, 2) || !g.Adjacent(2, 1) {
		t.Fatalf("expected 1 and 2 to be adjacent")
	}
	if g.Adjacent(1, 3) {
		t.Fatalf("expected 1 and 3 to not be adjacent")
	}
	if g.Adjacent(2, 2) {
		t.Fatalf("a territory must not be adjacent to itself")
	}
}

func TestPathRestrictedToPredicate(t *testing.T) {
	g, err := New(lineSpec())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	owned := map[int]bool{1: true, 2: true, 3: true}
	path := g.Path(1, 3, func(id int) bool { return owned[id] })
	if want := []int{1, 2, 3}; !reflect.DeepEqual(path, want) {
		t.Fatalf("expected path %v, got %v", want, path)
	}
	//1.- Removing the middle territory from the predicate breaks the route.
	owned[2] = false
	if path := g.Path(1, 3, func(id int) bool { return owned[id] }); path != nil {
		t.Fatalf("expected no path, got %v", path)
	}
}

func TestPathDeterministicTieBreak(t *testing.T) {
	g, err := New(lineSpec())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	all := func(int) bool { return true }
	//1.- Both 2-3 and 2-4-3 reach territory 3; BFS must stop at the direct lane.
	for i := 0; i < 16; i++ {
		path := g.Path(1, 3, all)
		if want := []int{1, 2, 3}; !reflect.DeepEqual(path, want) {
			t.Fatalf("expected deterministic path %v, got %v", want, path)
		}
	}
}

func TestPathSameEndpoint(t *testing.T) {
	g, err := New(lineSpec())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	path := g.Path(2, 2, func(int) bool { return true })
	if want := []int{2}; !reflect.DeepEqual(path, want) {
		t.Fatalf("expected single-node path, got %v", path)
	}
}

func TestTerritoryReturnsClone(t *testing.T) {
	g, err := New(lineSpec())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	territory, ok := g.Territory(2)
	if !ok {
		t.Fatalf("expected territory 2 to exist")
	}
	territory.Neighbors[0] = 99
	if g.Adjacent(2, 99) {
		t.Fatalf("mutating the returned clone must not affect the graph")
	}
}

func TestTransitFactorOutsideHazards(t *testing.T) {
	spec := lineSpec()
	spec.Hazards = []Hazard{{X: 50, Y: 50, Radius: 1, Drag: 2}}
	g, err := New(spec)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if factor := g.TransitFactor(1, 3); factor != 1 {
		t.Fatalf("expected factor 1 away from hazards, got %v", factor)
	}
}

func TestTransitFactorInsideHazard(t *testing.T) {
	spec := lineSpec()
	//1.- A hazard large enough to cover the whole 1 -> 3 segment.
	spec.Hazards = []Hazard{{X: 1, Y: 0, Radius: 10, Drag: 0.5}}
	g, err := New(spec)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	factor := g.TransitFactor(1, 3)
	if factor < 1.49 || factor > 1.51 {
		t.Fatalf("expected factor near 1.5 for full coverage, got %v", factor)
	}
}

func TestNewRejectsInvalidHazard(t *testing.T) {
	spec := lineSpec()
	spec.Hazards = []Hazard{{X: 0, Y: 0, Radius: -1, Drag: 1}}
	if _, err := New(spec); err == nil {
		t.Fatalf("expected error for negative hazard radius")
	}
}
