// Package convert provides functions to convert between GORM models and core models
package convert

import (
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/geo"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/model"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// CoreToEpisode converts a core.Episode to a GORM model.Episode. The path
// is the trajectory recorded so far and may be empty.
func CoreToEpisode(ep core.Episode, path geom.LineString) model.Episode {
	m := model.Episode{
		ID:           datatypes.UUID(ep.ID),
		InstanceID:   ep.InstanceID,
		Mode:         ep.Mode.String(),
		Setup:        datatypes.NewJSONType(ep.Setup),
		TrackCode:    ep.TrackCode,
		StartedAt:    ep.StartedAt,
		Steps:        ep.Steps,
		TimedOut:     ep.TimedOut,
		RaceFinished: ep.RaceFinished,
		Path:         path,
		Distance:     path.Length(),
	}
	if t, ok := core.TrackByCode(ep.TrackCode); ok {
		m.TrackName = t.Name
	}
	if !ep.EndedAt.IsZero() {
		ended := ep.EndedAt
		m.EndedAt = &ended
	}
	return m
}

// CoreToStep converts a core.Step to a GORM model.Step.
func CoreToStep(s core.Step) model.Step {
	m := model.Step{
		EpisodeID: datatypes.UUID(s.EpisodeID),
		Index:     s.Index,
		Time:      s.Time,
		Telemetry: datatypes.NewJSONType(s.Telemetry),
		Action:    CoreToAction(s.Action),
		Position:  geom.NewEmptyPoint(geom.DimXYZ),
	}
	if pos, ok := s.Position(); ok {
		m.Position = geo.PointFromPosition(pos)
	}
	return m
}

// CoreToAction converts a controller command to its embedded columns.
func CoreToAction(a core.Action) model.StepAction {
	return model.StepAction{
		Forward:  a.Forward,
		Backward: a.Backward,
		X:        a.X,
		Y:        a.Y,
		LookBack: a.LookBack,
		Horn:     a.Horn,
		Drift:    a.Drift,
	}
}
