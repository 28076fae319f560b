// Package streaming defines the JSON messages of the live episode stream.
package streaming

import (
	"encoding/json"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// Message types.
const (
	TypeStartEpisode = "start_episode"
	TypeStep         = "step"
	TypeEndEpisode   = "end_episode"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`
}

// EpisodePayload carries the episode header or its final summary.
type EpisodePayload struct {
	Episode  *core.Episode       `json:"episode"`
	Metadata core.ExportMetadata `json:"metadata"`
}

// StepPayload is one step of the current episode.
type StepPayload struct {
	EpisodeID string             `json:"episodeId"`
	Index     uint32             `json:"index"`
	TimeMs    int64              `json:"timeMs"`
	Telemetry map[string]float64 `json:"telemetry"`
	Action    core.Action        `json:"action"`
}

// NewStepPayload flattens a step for the wire.
func NewStepPayload(s *core.Step) StepPayload {
	return StepPayload{
		EpisodeID: s.EpisodeID.String(),
		Index:     s.Index,
		TimeMs:    s.Time.UnixMilli(),
		Telemetry: s.Telemetry,
		Action:    s.Action,
	}
}
