package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrEmptyGraph indicates construction without any territories.
	ErrEmptyGraph = errors.New("graph requires at least one territory")
	// ErrUnknownTerritory indicates an adjacency referencing a missing id.
	ErrUnknownTerritory = errors.New("adjacency references unknown territory")
)

// Territory describes a single star system node on the conquest map.
type Territory struct {
	ID        int
	X, Y      float64
	Neighbors []int
}

// Spec carries the construction input produced by the map generator.
type Spec struct {
	Territories []Territory
	Hazards     []Hazard
}

// Graph is the immutable spatial layout shared by every room subsystem.
type Graph struct {
	nodes   map[int]Territory
	hazards []Hazard
}

// New validates the generator output and builds the immutable graph.
func New(spec Spec) (*Graph, error) {
	//1.- Reject empty maps before any per-node validation runs.
	if len(spec.Territories) == 0 {
		return nil, ErrEmptyGraph
	}
	nodes := make(map[int]Territory, len(spec.Territories))
	for _, territory := range spec.Territories {
		if territory.ID <= 0 {
			return nil, fmt.Errorf("territory id %d must be positive", territory.ID)
		}
		if _, exists := nodes[territory.ID]; exists {
			return nil, fmt.Errorf("duplicate territory id %d", territory.ID)
		}
		//2.- Copy and sort the neighbor list so iteration order is deterministic.
		neighbors := append([]int(nil), territory.Neighbors...)
		sort.Ints(neighbors)
		territory.Neighbors = neighbors
		nodes[territory.ID] = territory
	}
	//3.- Require symmetric lanes with no self-loops or dangling endpoints.
	for id, territory := range nodes {
		for _, neighbor := range territory.Neighbors {
			if neighbor == id {
				return nil, fmt.Errorf("territory %d has a self-loop", id)
			}
			other, ok := nodes[neighbor]
			if !ok {
				return nil, fmt.Errorf("%w: %d -> %d", ErrUnknownTerritory, id, neighbor)
			}
			if !containsID(other.Neighbors, id) {
				return nil, fmt.Errorf("lane %d -> %d is not symmetric", id, neighbor)
			}
		}
	}
	for _, hazard := range spec.Hazards {
		if err := hazard.validate(); err != nil {
			return nil, err
		}
	}
	return &Graph{nodes: nodes, hazards: append([]Hazard(nil), spec.Hazards...)}, nil
}

// Size reports the number of territories on the map.
func (g *Graph) Size() int {
	if g == nil {
		return 0
	}
	return len(g.nodes)
}

// Contains reports whether the territory id exists on the map.
func (g *Graph) Contains(id int) bool {
	if g == nil {
		return false
	}
	_, ok := g.nodes[id]
	return ok
}

// Territory returns a copy of the node with the given id.
func (g *Graph) Territory(id int) (Territory, bool) {
	if g == nil {
		return Territory{}, false
	}
	territory, ok := g.nodes[id]
	if !ok {
		return Territory{}, false
	}
	//1.- Clone the neighbor slice so callers cannot mutate shared layout.
	territory.Neighbors = append([]int(nil), territory.Neighbors...)
	return territory, true
}

// IDs returns every territory id in ascending order.
func (g *Graph) IDs() []int {
	if g == nil {
		return nil
	}
	ids := make([]int, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Neighbors returns the sorted neighbor ids of a territory.
func (g *Graph) Neighbors(id int) []int {
	if g == nil {
		return nil
	}
	territory, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return append([]int(nil), territory.Neighbors...)
}

// Adjacent reports whether a direct warp lane joins the two territories.
func (g *Graph) Adjacent(a, b int) bool {
	if g == nil || a == b {
		return false
	}
	territory, ok := g.nodes[a]
	if !ok {
		return false
	}
	return containsID(territory.Neighbors, b)
}

// Distance returns the Euclidean distance between two territory centers.
func (g *Graph) Distance(a, b int) float64 {
	if g == nil {
		return 0
	}
	from, okA := g.nodes[a]
	to, okB := g.nodes[b]
	if !okA || !okB {
		return 0
	}
	dx := to.X - from.X
	dy := to.Y - from.Y
	return math.Hypot(dx, dy)
}

// Path runs a breadth-first search from one territory to another restricted to
// nodes accepted by the owned predicate. Neighbor expansion happens in
// ascending id order so equal-length paths resolve deterministically. The
// returned sequence includes both endpoints; nil means no path exists.
func (g *Graph) Path(from, to int, owned func(id int) bool) []int {
	if g == nil || owned == nil {
		return nil
	}
	if !g.Contains(from) || !g.Contains(to) {
		return nil
	}
	if !owned(from) || !owned(to) {
		return nil
	}
	if from == to {
		return []int{from}
	}
	//1.- Standard BFS with a parent map to rebuild the route afterwards.
	parents := map[int]int{from: from}
	queue := []int{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, neighbor := range g.nodes[current].Neighbors {
			if _, seen := parents[neighbor]; seen {
				continue
			}
			if !owned(neighbor) {
				continue
			}
			parents[neighbor] = current
			if neighbor == to {
				//2.- Walk the parent chain back to the origin and reverse it.
				path := []int{to}
				for node := to; node != from; {
					node = parents[node]
					path = append(path, node)
				}
				reverse(path)
				return path
			}
			queue = append(queue, neighbor)
		}
	}
	return nil
}

func containsID(sorted []int, id int) bool {
	index := sort.SearchInts(sorted, id)
	return index < len(sorted) && sorted[index] == id
}

func reverse(values []int) {
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
}
