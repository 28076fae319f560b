// Package episode runs the reset, setup and run cycle of a game instance.
package episode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/frame"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/queue"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/sampler"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// ErrValidationFailed is returned by setup when the track on screen could
// not be confirmed. It escalates to a relaunch of the emulator.
var ErrValidationFailed = errors.New("track validation failed")

// Config holds the orchestrator settings.
type Config struct {
	InstanceID string
	Mode       core.RunMode
	// Resolve rewrites the speed address from the live player pointers.
	Resolve bool
	// Validate checks the track on screen after navigation.
	Validate bool
	// AutoStart starts the first episode without waiting for a reset.
	AutoStart bool
	// FreeRunRate is the step rate of the inference cadence, in Hz.
	FreeRunRate float64
	// PollInterval paces the race-finish check of the stepper cadence.
	PollInterval time.Duration
	Setup        core.GameSetup
}

// DefaultConfig returns the training defaults.
func DefaultConfig() Config {
	return Config{
		Mode:         core.RunTraining,
		Resolve:      true,
		AutoStart:    true,
		FreeRunRate:  10,
		PollInterval: time.Second / 30,
		Setup:        core.DefaultGameSetup(),
	}
}

type setupUpdate struct {
	key   core.SetupKey
	value int32
}

// Orchestrator owns the episode loop. Reset, Configure and Act are called by
// the transport; Run is the orchestrator task.
type Orchestrator struct {
	deps    Dependencies
	cfg     Config
	logger  *slog.Logger
	metrics *metrics
	base    core.AddressTable

	pending *queue.Queue[setupUpdate]
	wake    chan struct{}

	mu     sync.Mutex
	setup  core.GameSetup
	reset  bool
	action *core.Action
}

// New creates an orchestrator. The sampler's current table is kept as the
// base every episode derives its resolved table from.
func New(deps Dependencies, cfg Config) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracker == nil {
		deps.Tracker = noopTracker{}
	}
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	if cfg.FreeRunRate <= 0 {
		cfg.FreeRunRate = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second / 30
	}
	return &Orchestrator{
		deps:    deps,
		cfg:     cfg,
		logger:  deps.Logger.With("component", "orchestrator"),
		metrics: newMetrics(),
		base:    deps.Sampler.Table(),
		pending: queue.New[setupUpdate](),
		wake:    make(chan struct{}, 1),
		setup:   cfg.Setup,
		reset:   cfg.AutoStart,
	}
}

func (o *Orchestrator) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Reset requests a new episode. A running episode stops at its next wait.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.reset = true
	o.mu.Unlock()
	o.logger.Debug("reset requested")
	o.signal()
}

// Configure queues a setup change for the next episode.
func (o *Orchestrator) Configure(key core.SetupKey, value int32) error {
	var probe core.GameSetup
	if err := probe.Set(key, value); err != nil {
		return err
	}
	o.pending.Push(setupUpdate{key: key, value: value})
	return nil
}

// Act delivers one action. Only the latest undelivered action is kept.
func (o *Orchestrator) Act(a core.Action) {
	o.mu.Lock()
	a = a.Clamp()
	o.action = &a
	o.mu.Unlock()
	o.signal()
}

// Setup returns the setup as of the last episode start.
func (o *Orchestrator) Setup() core.GameSetup {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.setup
}

func (o *Orchestrator) resetRequested() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reset
}

// Run loops over episodes until ctx ends or recovery is impossible.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		if err := o.waitReset(ctx); err != nil {
			return err
		}
		setup := o.applyPending()

		started := time.Now()
		ep, err := o.prepare(ctx, setup)
		if errors.Is(err, ErrValidationFailed) {
			if rerr := o.recover(ctx, err); rerr != nil {
				return rerr
			}
			continue
		}
		if err != nil {
			return err
		}
		o.metrics.setupTime.Record(ctx, time.Since(started).Seconds())

		if err := o.play(ctx, setup, ep); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) waitReset(ctx context.Context) error {
	o.deps.Tracker.SetPhase(core.PhaseIdle)
	o.logger.Info("waiting for reset")
	for {
		if o.resetRequested() {
			return nil
		}
		select {
		case <-o.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// applyPending folds queued configuration into the setup and returns the
// copy used by the next episode.
func (o *Orchestrator) applyPending() core.GameSetup {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, u := range o.pending.Drain() {
		if err := o.setup.Set(u.key, u.value); err != nil {
			o.logger.Warn("dropping setup update", "key", string(u.key), "error", err)
		}
	}
	return o.setup
}

// prepare is the SETUP phase.
func (o *Orchestrator) prepare(ctx context.Context, setup core.GameSetup) (core.Episode, error) {
	o.deps.Tracker.SetPhase(core.PhaseInitializing)
	o.publishStatus(ctx, StatusInitializingGame, true)
	defer o.publishStatus(ctx, StatusInitializingGame, false)

	o.deps.Sampler.SetMode(sampler.ModeSampler)
	o.deps.Sampler.Use(o.base)
	if err := o.deps.Navigator.Navigate(ctx, setup); err != nil {
		return core.Episode{}, fmt.Errorf("navigating to race: %w", err)
	}

	ep := core.NewEpisode(o.cfg.InstanceID, o.cfg.Mode, setup)
	if setup.RaceRuleCourses == core.CoursesChoose {
		if t, ok := core.TrackBySlot(int(setup.CourseCup), int(setup.Course)); ok {
			ep.TrackCode = t.Code
		}
	}

	if o.cfg.Validate && o.deps.Validator != nil {
		track, err := o.deps.Validator.Validate(ctx, setup)
		if err != nil {
			if ctx.Err() != nil {
				return core.Episode{}, ctx.Err()
			}
			return core.Episode{}, fmt.Errorf("%w: %v", ErrValidationFailed, err)
		}
		ep.TrackCode = track.Code
	}

	if o.cfg.Resolve {
		addr, err := o.deps.Sampler.Resolve(ctx)
		if err != nil {
			return core.Episode{}, fmt.Errorf("resolving speed pointer: %w", err)
		}
		table, err := o.base.WithOffset(core.AddrSpeed, addr)
		if err != nil {
			return core.Episode{}, err
		}
		o.deps.Sampler.Use(table)
		o.logger.Debug("speed pointer resolved", "address", fmt.Sprintf("0x%08x", addr))
	}
	return ep, nil
}

// recover relaunches the emulator after a failed setup. The reset request
// stays pending so the next loop sets up again.
func (o *Orchestrator) recover(ctx context.Context, cause error) error {
	o.metrics.recoveries.Add(ctx, 1)
	o.deps.Tracker.SetPhase(core.PhaseRecovering)
	o.logger.Warn("setup failed, relaunching emulator", "error", cause)

	if o.deps.Relauncher == nil {
		return fmt.Errorf("no relauncher configured: %w", cause)
	}
	if err := o.deps.Relauncher.Relaunch(ctx); err != nil {
		return fmt.Errorf("relaunching after %v: %w", cause, err)
	}
	o.deps.Sampler.Use(o.base)
	o.logger.Info("emulator relaunched")
	return nil
}

// play is the RUN phase of one episode.
func (o *Orchestrator) play(ctx context.Context, setup core.GameSetup, ep core.Episode) error {
	o.mu.Lock()
	o.reset = false
	o.action = nil
	o.mu.Unlock()

	st := &core.RunState{Mode: o.cfg.Mode}
	o.metrics.episodes.Add(ctx, 1)
	o.deps.Tracker.BeginEpisode(ep)
	o.deps.Tracker.SetPhase(core.PhasePlaying)
	o.deps.Recorder.BeginEpisode(ep)
	o.publishStatus(ctx, StatusPlayingGame, true)
	o.logger.Info("episode started", "episode", ep.ID.String(), "mode", o.cfg.Mode.String(), "track", ep.TrackCode, "maxStep", setup.MaxStep)

	var err error
	if o.cfg.Mode == core.RunInference {
		err = o.freeRun(ctx, setup, ep, st)
	} else {
		err = o.stepper(ctx, setup, ep, st)
	}
	if err != nil {
		o.deps.Sampler.SetMode(sampler.ModeSampler)
		return err
	}

	st.Terminal = true
	st.RaceFinished = o.raceFinished()
	if st.TimedOut {
		o.metrics.timeouts.Add(ctx, 1)
	}
	o.publishStep(ctx, st)
	o.deps.Sampler.SetMode(sampler.ModeSampler)
	o.publishStatus(ctx, StatusPlayingGame, false)

	ep.EndedAt = time.Now().UTC()
	ep.Steps = st.Step
	ep.TimedOut = st.TimedOut
	ep.RaceFinished = st.RaceFinished
	o.deps.Recorder.EndEpisode(ep)
	o.logger.Info("episode finished",
		"episode", ep.ID.String(),
		"steps", st.Step,
		"timedOut", st.TimedOut,
		"raceFinished", st.RaceFinished,
		"reset", st.ResetRequested,
	)
	return nil
}

// stepper holds the game on every accepted tick until the agent acts.
func (o *Orchestrator) stepper(ctx context.Context, setup core.GameSetup, ep core.Episode, st *core.RunState) error {
	o.deps.Sampler.SetMode(sampler.ModeStepper)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if o.stopRequested(st) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.deps.Sampler.Held():
			done, err := o.step(ctx, setup, ep, st, o.deps.Sampler.Release)
			if err != nil || done {
				return err
			}
		case <-ticker.C:
		}
	}
}

// freeRun samples the running game at a fixed rate.
func (o *Orchestrator) freeRun(ctx context.Context, setup core.GameSetup, ep core.Episode, st *core.RunState) error {
	o.deps.Sampler.SetMode(sampler.ModeSampler)
	limiter := rate.NewLimiter(rate.Limit(o.cfg.FreeRunRate), 1)

	for {
		if o.stopRequested(st) {
			return nil
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		done, err := o.step(ctx, setup, ep, st, func() {})
		if err != nil || done {
			return err
		}
	}
}

func (o *Orchestrator) stopRequested(st *core.RunState) bool {
	if o.raceFinished() {
		st.RaceFinished = true
		return true
	}
	if o.resetRequested() {
		st.ResetRequested = true
		return true
	}
	return false
}

// step publishes, waits for the agent, applies its action and releases the
// game. It reports whether the episode is over.
func (o *Orchestrator) step(ctx context.Context, setup core.GameSetup, ep core.Episode, st *core.RunState, release func()) (bool, error) {
	o.publishStep(ctx, st)

	a, ok, err := o.waitAction(ctx)
	if err != nil {
		return true, err
	}
	if ok {
		if err := o.deps.Pad.Apply(a); err != nil {
			o.logger.Error("failed to apply action", "error", err)
		}
		o.deps.Recorder.RecordStep(o.recordStep(ep, st.Step, a))
	}
	release()

	st.Step++
	o.metrics.steps.Add(ctx, 1)
	o.deps.Tracker.SetStep(st.Step)

	if int64(st.Step) >= int64(setup.MaxStep) {
		st.TimedOut = true
		return true, nil
	}
	if !ok {
		st.ResetRequested = true
		return true, nil
	}
	return false, nil
}

// waitAction blocks until an action or a reset arrives. ok is false on reset.
func (o *Orchestrator) waitAction(ctx context.Context) (a core.Action, ok bool, err error) {
	o.publishStatus(ctx, StatusWaitingForAction, true)
	defer o.publishStatus(ctx, StatusWaitingForAction, false)
	for {
		o.mu.Lock()
		switch {
		case o.reset:
			o.mu.Unlock()
			return core.Action{}, false, nil
		case o.action != nil:
			a = *o.action
			o.action = nil
			o.mu.Unlock()
			return a, true, nil
		}
		o.mu.Unlock()

		select {
		case <-o.wake:
		case <-ctx.Done():
			return core.Action{}, false, ctx.Err()
		}
	}
}

func (o *Orchestrator) raceFinished() bool {
	snap, ok := o.deps.Sampler.Snapshot()
	if !ok || !snap.Has(core.AddrStatus) {
		return false
	}
	return snap.RaceFinished()
}

func (o *Orchestrator) recordStep(ep core.Episode, index uint32, a core.Action) core.Step {
	s := core.Step{EpisodeID: ep.ID, Index: index, Time: time.Now().UTC(), Action: a}
	if snap, ok := o.deps.Sampler.Snapshot(); ok {
		s.Telemetry = snap.Telemetry()
	}
	return s
}

func (o *Orchestrator) publishStep(ctx context.Context, st *core.RunState) {
	r := StepResult{
		Step:         st.Step,
		Mode:         st.Mode,
		Terminal:     st.Terminal,
		TimedOut:     st.TimedOut,
		RaceFinished: o.raceFinished(),
	}
	r.Snapshot, r.HasSnapshot = o.deps.Sampler.Snapshot()
	r.Frame = frame.RGB(o.capture(ctx))

	if err := o.deps.Publisher.PublishStep(ctx, r); err != nil {
		o.logger.Error("failed to publish step", "step", st.Step, "error", err)
	}
}

func (o *Orchestrator) capture(ctx context.Context) *image.RGBA {
	if o.deps.Frames == nil {
		return nil
	}
	img, err := o.deps.Frames.Capture(ctx)
	if err != nil {
		o.logger.Warn("frame capture failed", "error", err)
		return nil
	}
	return img
}

func (o *Orchestrator) publishStatus(ctx context.Context, s Status, v bool) {
	if err := o.deps.Publisher.PublishStatus(ctx, s, v); err != nil {
		o.logger.Error("failed to publish status", "status", string(s), "error", err)
	}
}
