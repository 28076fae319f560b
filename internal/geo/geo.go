// Package geo turns kart positions into simplefeatures geometries.
//
// The game uses Y as height. Geometries are laid out on the ground plane
// (game X, game Z) with height carried as the Z ordinate, so 2D operations
// such as Length measure ground distance.
package geo

import (
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// PointFromPosition converts a kart position to an XYZ point.
func PointFromPosition(p core.Position3D) geom.Point {
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: p.X, Y: p.Z},
		Z:    p.Y,
		Type: geom.DimXYZ,
	})
}

// PositionFromPoint is the inverse of PointFromPosition. Empty points
// report false.
func PositionFromPoint(pt geom.Point) (core.Position3D, bool) {
	c, ok := pt.Coordinates()
	if !ok {
		return core.Position3D{}, false
	}
	return core.Position3D{X: c.X, Y: c.Z, Z: c.Y}, true
}

// PositionsFromLineString unpacks a trajectory back into kart positions.
func PositionsFromLineString(ls geom.LineString) []core.Position3D {
	seq := ls.Coordinates()
	out := make([]core.Position3D, 0, seq.Length())
	for i := 0; i < seq.Length(); i++ {
		c := seq.Get(i)
		out = append(out, core.Position3D{X: c.X, Y: c.Z, Z: c.Y})
	}
	return out
}
