// pkg/core/recording.go
package core

import "time"

// Position3D is a kart position in game units. Y is height.
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Position returns the kart position carried in the step telemetry, if any.
func (s Step) Position() (Position3D, bool) {
	x, okX := s.Telemetry[AddrPosX]
	y, okY := s.Telemetry[AddrPosY]
	z, okZ := s.Telemetry[AddrPosZ]
	if !okX || !okY || !okZ {
		return Position3D{}, false
	}
	return Position3D{X: x, Y: y, Z: z}, true
}

// ExportMetadata describes an exported episode file for upload.
type ExportMetadata struct {
	EpisodeID  string        `json:"episodeId"`
	InstanceID string        `json:"instanceId"`
	Mode       string        `json:"mode"`
	TrackCode  int           `json:"trackCode"`
	TrackName  string        `json:"trackName"`
	Steps      uint32        `json:"steps"`
	Duration   time.Duration `json:"duration"`
	Outcome    string        `json:"outcome"`
}

// Outcome is a short label for how an episode ended.
func (e Episode) Outcome() string {
	switch {
	case e.RaceFinished:
		return "finished"
	case e.TimedOut:
		return "timeout"
	default:
		return "reset"
	}
}

// Metadata builds the export metadata of a finished episode.
func (e Episode) Metadata() ExportMetadata {
	md := ExportMetadata{
		EpisodeID:  e.ID.String(),
		InstanceID: e.InstanceID,
		Mode:       e.Mode.String(),
		TrackCode:  e.TrackCode,
		Steps:      e.Steps,
		Outcome:    e.Outcome(),
	}
	if t, ok := TrackByCode(e.TrackCode); ok {
		md.TrackName = t.Name
	}
	if !e.EndedAt.IsZero() {
		md.Duration = e.EndedAt.Sub(e.StartedAt)
	}
	return md
}
