// Package session tracks the live state of one instance for logs and the status file.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// Status is a point-in-time copy of the session state.
type Status struct {
	InstanceID string         `json:"instanceId"`
	Mode       string         `json:"mode"`
	Phase      core.Phase     `json:"phase"`
	EpisodeID  string         `json:"episodeId,omitempty"`
	TrackCode  int            `json:"trackCode,omitempty"`
	Step       uint32         `json:"step"`
	Episodes   int            `json:"episodes"`
	Recoveries int            `json:"recoveries"`
	Setup      core.GameSetup `json:"setup"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Context holds the current instance and episode state
type Context struct {
	mu         sync.RWMutex
	instanceID string
	mode       core.RunMode
	phase      core.Phase
	episode    uuid.UUID
	trackCode  int
	step       uint32
	episodes   int
	recoveries int
	setup      core.GameSetup
	updatedAt  time.Time
}

// NewContext creates a new Context with default values
func NewContext(instanceID string, mode core.RunMode) *Context {
	return &Context{
		instanceID: instanceID,
		mode:       mode,
		phase:      core.PhaseIdle,
		setup:      core.DefaultGameSetup(),
		updatedAt:  time.Now().UTC(),
	}
}

func (c *Context) InstanceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instanceID
}

func (c *Context) Phase() core.Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// SetPhase records a lifecycle change. Entering recovery counts a recovery.
func (c *Context) SetPhase(p core.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = p
	if p == core.PhaseRecovering {
		c.recoveries++
	}
	c.updatedAt = time.Now().UTC()
}

// BeginEpisode records a new episode.
func (c *Context) BeginEpisode(ep core.Episode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.episode = ep.ID
	c.trackCode = ep.TrackCode
	c.setup = ep.Setup
	c.step = 0
	c.episodes++
	c.updatedAt = time.Now().UTC()
}

func (c *Context) SetStep(step uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
	c.updatedAt = time.Now().UTC()
}

// Status returns a copy of the current state.
func (c *Context) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := Status{
		InstanceID: c.instanceID,
		Mode:       c.mode.String(),
		Phase:      c.phase,
		TrackCode:  c.trackCode,
		Step:       c.step,
		Episodes:   c.episodes,
		Recoveries: c.recoveries,
		Setup:      c.setup,
		UpdatedAt:  c.updatedAt,
	}
	if c.episode != uuid.Nil {
		st.EpisodeID = c.episode.String()
	}
	return st
}

// LogAttrs are the session attributes added to every log record.
func (c *Context) LogAttrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	attrs := []slog.Attr{
		slog.String("instance", c.instanceID),
		slog.String("phase", string(c.phase)),
	}
	if c.episode != uuid.Nil {
		attrs = append(attrs,
			slog.String("episode", c.episode.String()),
			slog.Any("step", c.step),
		)
	}
	return attrs
}
