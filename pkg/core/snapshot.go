// pkg/core/snapshot.go
package core

import "time"

// Snapshot is the set of values captured at one tick. It is never mutated
// after it has been published.
type Snapshot struct {
	Tick       int64
	CapturedAt time.Time
	Values     map[string]Value
}

// Has reports whether the snapshot carries name.
func (s Snapshot) Has(name string) bool {
	_, ok := s.Values[name]
	return ok
}

// Int returns the integer value of name, or 0.
func (s Snapshot) Int(name string) int64 {
	return s.Values[name].Int
}

// Float returns the value of name as a float, or 0.
func (s Snapshot) Float(name string) float64 {
	return s.Values[name].Number()
}

// Scene returns the decoded scene of the snapshot.
func (s Snapshot) Scene() Scene {
	if !s.Has(AddrSceneID) {
		return SceneUnknown
	}
	return SceneFromRaw(s.Int(AddrSceneID))
}

// RaceFinished reports whether the player is no longer racing.
func (s Snapshot) RaceFinished() bool {
	st := s.Int(AddrStatus)
	return st != StatusRacing && st != StatusRacingPaused
}

// Telemetry flattens the telemetry leaves into floats.
func (s Snapshot) Telemetry() map[string]float64 {
	out := make(map[string]float64, len(TelemetryFields))
	for _, name := range TelemetryFields {
		if v, ok := s.Values[name]; ok {
			out[name] = v.Number()
		}
	}
	return out
}
