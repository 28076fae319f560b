package geo

import (
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// Trajectory accumulates the positions of one episode. Consecutive
// duplicates (the kart held on a paused tick) are dropped.
type Trajectory struct {
	flat []float64
	last core.Position3D
	n    int
}

// Add appends a position.
func (t *Trajectory) Add(p core.Position3D) {
	if t.n > 0 && p == t.last {
		return
	}
	t.flat = append(t.flat, p.X, p.Z, p.Y)
	t.last = p
	t.n++
}

// AddStep appends the position of a step when its telemetry carries one.
func (t *Trajectory) AddStep(s core.Step) {
	if p, ok := s.Position(); ok {
		t.Add(p)
	}
}

// Len returns the number of distinct points.
func (t *Trajectory) Len() int {
	return t.n
}

// LineString returns the path. Fewer than two points give an empty line.
func (t *Trajectory) LineString() geom.LineString {
	if t.n < 2 {
		return geom.LineString{}
	}
	flat := make([]float64, len(t.flat))
	copy(flat, t.flat)
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXYZ))
}

// Distance is the ground distance covered.
func (t *Trajectory) Distance() float64 {
	return t.LineString().Length()
}

// Reset clears the trajectory for the next episode.
func (t *Trajectory) Reset() {
	t.flat = t.flat[:0]
	t.last = core.Position3D{}
	t.n = 0
}

// NewEmptyLineString is the path of an episode with no recorded positions.
func NewEmptyLineString() geom.LineString {
	return geom.LineString{}
}
