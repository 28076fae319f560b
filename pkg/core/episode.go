// pkg/core/episode.go
package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunMode selects the RUN cadence of an episode.
type RunMode int

const (
	// RunTraining steps the game in lockstep with the agent.
	RunTraining RunMode = iota
	// RunInference lets the game run freely and samples at a fixed rate.
	RunInference
)

func (m RunMode) String() string {
	if m == RunInference {
		return "inference"
	}
	return "training"
}

// ParseRunMode accepts "training"/"inference" and the launcher's "0"/"1".
func ParseRunMode(s string) (RunMode, bool) {
	switch s {
	case "training", "0", "":
		return RunTraining, true
	case "inference", "1":
		return RunInference, true
	}
	return RunTraining, false
}

// MarshalText encodes the mode by name.
func (m RunMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts every form ParseRunMode does.
func (m *RunMode) UnmarshalText(b []byte) error {
	v, ok := ParseRunMode(string(b))
	if !ok {
		return fmt.Errorf("unknown run mode %q", b)
	}
	*m = v
	return nil
}

// RunState is the mutable state of one episode. A fresh value is created
// for each episode.
type RunState struct {
	Step           uint32
	Terminal       bool
	TimedOut       bool
	RaceFinished   bool
	ResetRequested bool
	Mode           RunMode
}

// Episode summarises one race for recording.
type Episode struct {
	ID           uuid.UUID `json:"id"`
	InstanceID   string    `json:"instanceId"`
	Mode         RunMode   `json:"mode"`
	Setup        GameSetup `json:"setup"`
	TrackCode    int       `json:"trackCode"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	Steps        uint32    `json:"steps"`
	TimedOut     bool      `json:"timedOut"`
	RaceFinished bool      `json:"raceFinished"`
}

// NewEpisode starts an episode record for setup.
func NewEpisode(instanceID string, mode RunMode, setup GameSetup) Episode {
	return Episode{
		ID:         uuid.New(),
		InstanceID: instanceID,
		Mode:       mode,
		Setup:      setup,
		StartedAt:  time.Now().UTC(),
	}
}

// Step is one recorded transition of an episode.
type Step struct {
	EpisodeID uuid.UUID          `json:"episodeId"`
	Index     uint32             `json:"index"`
	Time      time.Time          `json:"time"`
	Telemetry map[string]float64 `json:"telemetry"`
	Action    Action             `json:"action"`
}

// Phase is the coarse lifecycle position of an instance.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInitializing Phase = "initializing"
	PhasePlaying      Phase = "playing"
	PhaseRecovering   Phase = "recovering"
)
