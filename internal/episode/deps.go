package episode

import (
	"context"
	"image"
	"log/slog"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/sampler"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// Sampler is the part of the telemetry sampler the orchestrator drives.
type Sampler interface {
	SetMode(sampler.Mode)
	Held() <-chan uint32
	Release()
	Snapshot() (core.Snapshot, bool)
	Resolve(ctx context.Context) (uint64, error)
	Table() core.AddressTable
	Use(core.AddressTable)
}

// Navigator brings the game to the start of a race.
type Navigator interface {
	Navigate(ctx context.Context, setup core.GameSetup) error
}

// Status names a boolean status leaf.
type Status string

const (
	StatusWaitingForAction Status = "waiting_for_action"
	StatusInitializingGame Status = "initializing_game"
	StatusPlayingGame      Status = "playing_game"
)

// StepResult is everything published for one step.
type StepResult struct {
	Step         uint32
	Mode         core.RunMode
	Frame        []byte
	Terminal     bool
	TimedOut     bool
	RaceFinished bool
	Snapshot     core.Snapshot
	HasSnapshot  bool
}

// Publisher sends status and step results to the agent.
type Publisher interface {
	PublishStatus(ctx context.Context, s Status, v bool) error
	PublishStep(ctx context.Context, r StepResult) error
}

// Frames captures the game window.
type Frames interface {
	Capture(ctx context.Context) (*image.RGBA, error)
}

// Pad applies agent actions to the controller.
type Pad interface {
	Apply(a core.Action) error
}

// Validator recognises the track on screen after navigation.
type Validator interface {
	Validate(ctx context.Context, setup core.GameSetup) (core.Track, error)
}

// Relauncher tears down the emulator and instrumentation and starts them
// again. It returns once telemetry is live.
type Relauncher interface {
	Relaunch(ctx context.Context) error
}

// Recorder receives finished steps and episodes. Calls must not block.
type Recorder interface {
	BeginEpisode(ep core.Episode)
	RecordStep(step core.Step)
	EndEpisode(ep core.Episode)
}

// Tracker follows the session state for logs and the status file.
type Tracker interface {
	SetPhase(p core.Phase)
	BeginEpisode(ep core.Episode)
	SetStep(step uint32)
}

// Dependencies holds all collaborators of the orchestrator. Validator,
// Relauncher, Recorder and Tracker are optional.
type Dependencies struct {
	Sampler    Sampler
	Navigator  Navigator
	Publisher  Publisher
	Frames     Frames
	Pad        Pad
	Validator  Validator
	Relauncher Relauncher
	Recorder   Recorder
	Tracker    Tracker
	Logger     *slog.Logger
}

type noopTracker struct{}

func (noopTracker) SetPhase(core.Phase)       {}
func (noopTracker) BeginEpisode(core.Episode) {}
func (noopTracker) SetStep(uint32)            {}

type noopRecorder struct{}

func (noopRecorder) BeginEpisode(core.Episode) {}
func (noopRecorder) RecordStep(core.Step)      {}
func (noopRecorder) EndEpisode(core.Episode)   {}
