package convert

import (
	"github.com/google/uuid"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/model"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// EpisodeToCore converts a GORM model.Episode to a core.Episode.
// An unrecognised mode string reads back as training.
func EpisodeToCore(m model.Episode) core.Episode {
	mode, _ := core.ParseRunMode(m.Mode)
	ep := core.Episode{
		ID:           uuid.UUID(m.ID),
		InstanceID:   m.InstanceID,
		Mode:         mode,
		Setup:        m.Setup.Data(),
		TrackCode:    m.TrackCode,
		StartedAt:    m.StartedAt,
		Steps:        m.Steps,
		TimedOut:     m.TimedOut,
		RaceFinished: m.RaceFinished,
	}
	if m.EndedAt != nil {
		ep.EndedAt = *m.EndedAt
	}
	return ep
}

// StepToCore converts a GORM model.Step to a core.Step.
func StepToCore(m model.Step) core.Step {
	return core.Step{
		EpisodeID: uuid.UUID(m.EpisodeID),
		Index:     m.Index,
		Time:      m.Time,
		Telemetry: m.Telemetry.Data(),
		Action:    ActionToCore(m.Action),
	}
}

// ActionToCore converts the embedded action columns back to a command.
func ActionToCore(m model.StepAction) core.Action {
	return core.Action{
		Forward:  m.Forward,
		Backward: m.Backward,
		X:        m.X,
		Y:        m.Y,
		LookBack: m.LookBack,
		Horn:     m.Horn,
		Drift:    m.Drift,
	}
}
