package graph

import (
	"fmt"
	"math"
)

// Hazard is a radial slow field on the map plane. Probe segments that cross a
// hazard take longer to traverse in proportion to the covered fraction and the
// field's drag factor.
type Hazard struct {
	X, Y   float64
	Radius float64
	Drag   float64
}

func (h Hazard) validate() error {
	if h.Radius <= 0 {
		return fmt.Errorf("hazard radius %v must be positive", h.Radius)
	}
	if h.Drag < 0 {
		return fmt.Errorf("hazard drag %v must be non-negative", h.Drag)
	}
	return nil
}

// sample returns the signed distance from a point to the hazard boundary,
// negative inside the field.
func (h Hazard) sample(x, y float64) float64 {
	//1.- Radial fields reduce clearance checks to a distance against the radius.
	return math.Hypot(x-h.X, y-h.Y) - h.Radius
}

// TransitFactor reports how much a straight segment between two territories is
// slowed by the map's hazards. The result is >= 1; a factor of 1.5 means the
// segment takes half again as long to cross.
func (g *Graph) TransitFactor(fromID, toID int) float64 {
	if g == nil || len(g.hazards) == 0 {
		return 1
	}
	from, okA := g.nodes[fromID]
	to, okB := g.nodes[toID]
	if !okA || !okB || (from.X == to.X && from.Y == to.Y) {
		return 1
	}
	factor := 1.0
	for _, hazard := range g.hazards {
		//1.- Accumulate each hazard's drag weighted by the covered fraction.
		covered := segmentCoverage(from.X, from.Y, to.X, to.Y, hazard)
		factor += covered * hazard.Drag
	}
	return factor
}

// segmentCoverage estimates the fraction of the segment that lies inside the
// hazard by sampling the field at fixed intervals along the line.
func segmentCoverage(x0, y0, x1, y1 float64, hazard Hazard) float64 {
	const steps = 32
	inside := 0
	for i := 0; i <= steps; i++ {
		t := float64(i) / steps
		x := x0 + (x1-x0)*t
		y := y0 + (y1-y0)*t
		if hazard.sample(x, y) < 0 {
			inside++
		}
	}
	return float64(inside) / float64(steps+1)
}
