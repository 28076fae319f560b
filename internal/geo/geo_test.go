package geo

import (
	"math"
	"testing"
	"time"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

func TestPointFromPosition_HeightIsZ(t *testing.T) {
	pt := PointFromPosition(core.Position3D{X: 100.5, Y: 12, Z: -200.25})

	coords, ok := pt.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	if coords.X != 100.5 || coords.Y != -200.25 {
		t.Errorf("expected ground plane (100.5,-200.25), got (%f,%f)", coords.X, coords.Y)
	}
	if coords.Z != 12 {
		t.Errorf("expected height 12 in Z, got %f", coords.Z)
	}

	back, ok := PositionFromPoint(pt)
	if !ok {
		t.Fatal("expected position back")
	}
	if back != (core.Position3D{X: 100.5, Y: 12, Z: -200.25}) {
		t.Errorf("round trip mismatch: %+v", back)
	}
}

func TestPositionFromPoint_Empty(t *testing.T) {
	if _, ok := PositionFromPoint(geom.NewEmptyPoint(geom.DimXYZ)); ok {
		t.Error("expected empty point to report false")
	}
}

func TestTrajectory(t *testing.T) {
	var tr Trajectory
	tr.Add(core.Position3D{X: 0, Y: 5, Z: 0})
	tr.Add(core.Position3D{X: 0, Y: 5, Z: 0})
	if tr.Len() != 1 {
		t.Fatalf("expected duplicate to be dropped, got %d points", tr.Len())
	}
	if !tr.LineString().IsEmpty() {
		t.Error("expected empty line for a single point")
	}

	tr.Add(core.Position3D{X: 3, Y: 50, Z: 4})
	tr.AddStep(core.Step{Time: time.Now(), Telemetry: map[string]float64{
		core.AddrPosX: 3, core.AddrPosY: 0, core.AddrPosZ: 10,
	}})
	tr.AddStep(core.Step{Telemetry: map[string]float64{core.AddrSpeed: 1}})

	if tr.Len() != 3 {
		t.Fatalf("expected 3 points, got %d", tr.Len())
	}
	// height changes do not count towards ground distance
	if d := tr.Distance(); math.Abs(d-11) > 1e-9 {
		t.Errorf("expected ground distance 11, got %f", d)
	}

	pts := PositionsFromLineString(tr.LineString())
	if len(pts) != 3 || pts[1] != (core.Position3D{X: 3, Y: 50, Z: 4}) {
		t.Errorf("unexpected points %+v", pts)
	}

	tr.Reset()
	if tr.Len() != 0 || tr.Distance() != 0 {
		t.Error("expected reset trajectory to be empty")
	}
}
