// Package websocket streams episodes live to a collector over WebSocket.
// It implements storage.Backend but not storage.Uploadable.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams episode headers, steps and summaries. Headers and
// summaries wait for the collector's ack; steps never wait.
type Backend struct {
	conn *connection
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{conn: newConnection(cfg.URL, cfg.Secret, logger.With("component", "websocket"))}
}

// Init connects to the collector. Later link failures are retried in the
// background.
func (b *Backend) Init() error {
	return b.conn.open()
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// StartEpisode sends the episode header and waits for the server ack.
func (b *Backend) StartEpisode(ep *core.Episode) error {
	data, err := marshalEnvelope(streaming.TypeStartEpisode, streaming.EpisodePayload{Episode: ep, Metadata: ep.Metadata()})
	if err != nil {
		return err
	}

	b.conn.setHeader(data)
	return b.conn.sendAndWait(data, streaming.TypeStartEpisode, ackTimeout)
}

// RecordStep streams one step. It never waits for the server.
func (b *Backend) RecordStep(s *core.Step) error {
	data, err := marshalEnvelope(streaming.TypeStep, streaming.NewStepPayload(s))
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// EndEpisode sends the summary and waits for the server ack.
func (b *Backend) EndEpisode(ep *core.Episode) error {
	data, err := marshalEnvelope(streaming.TypeEndEpisode, streaming.EpisodePayload{Episode: ep, Metadata: ep.Metadata()})
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndEpisode, ackTimeout)
	b.conn.setHeader(nil)
	return err
}

// QueueLen returns the number of messages not yet written.
func (b *Backend) QueueLen() int {
	return len(b.conn.outbox)
}

// Dropped returns how many messages the full outbox refused.
func (b *Backend) Dropped() int64 {
	return b.conn.dropped.Load()
}

// Redials returns how many times the link was restored.
func (b *Backend) Redials() int64 {
	return b.conn.redials.Load()
}
