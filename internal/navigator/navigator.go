// Package navigator drives the game menus from whatever screen is showing
// to the start of a race matching a GameSetup.
package navigator

import (
	"context"
	"log/slog"
	"time"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/input"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// SnapshotReader exposes the latest telemetry snapshot.
type SnapshotReader interface {
	Snapshot() (core.Snapshot, bool)
}

// Controller issues one menu input at a time.
type Controller interface {
	Tap(ctx context.Context, b input.Button) error
	Nudge(ctx context.Context, d input.Direction) error
}

// Grid widths of the selection screens.
const (
	playerGridWidth  = 7
	variantGridWidth = 3
	cupGridWidth     = 6
	cupCount         = 12
	// raceEndNextIdx is the "next race" entry of the end-of-race menu.
	raceEndNextIdx = 2
)

var carItems = []string{core.AddrCarBodyIdx, core.AddrCarWheelIdx, core.AddrCarWingIdx}

var ruleItems = []string{
	core.AddrRuleCC,
	core.AddrRuleTeam,
	core.AddrRuleItem,
	core.AddrRuleAI,
	core.AddrRuleCarAI,
	core.AddrRuleTrack,
	core.AddrRuleNum,
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithPollInterval sets the delay between two transitions.
func WithPollInterval(d time.Duration) Option {
	return func(n *Navigator) { n.poll = d }
}

// WithSettleDelay sets the wait used on result screens.
func WithSettleDelay(d time.Duration) Option {
	return func(n *Navigator) { n.settle = d }
}

// WithKeyGap sets the pause between the keys of a blind sequence.
func WithKeyGap(d time.Duration) Option {
	return func(n *Navigator) { n.keyGap = d }
}

// WithReadRetry sets how often a missing value is polled for.
func WithReadRetry(d time.Duration) Option {
	return func(n *Navigator) { n.readRetry = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Navigator) { n.logger = l }
}

// Navigator is a polling state machine over core.Scene.
type Navigator struct {
	reader    SnapshotReader
	pad       Controller
	logger    *slog.Logger
	poll      time.Duration
	settle    time.Duration
	keyGap    time.Duration
	readRetry time.Duration
}

func New(reader SnapshotReader, pad Controller, opts ...Option) *Navigator {
	n := &Navigator{
		reader:    reader,
		pad:       pad,
		logger:    slog.Default(),
		poll:      100 * time.Millisecond,
		settle:    time.Second,
		keyGap:    100 * time.Millisecond,
		readRetry: 5 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Navigate runs the state machine until the race is ready or ctx ends.
func (n *Navigator) Navigate(ctx context.Context, setup core.GameSetup) error {
	state := core.SceneInit
	for {
		next, err := n.Step(ctx, state, setup)
		if err != nil {
			return err
		}
		if next != state {
			n.logger.Debug("navigator transition", "from", state.String(), "to", next.String())
		}
		state = next
		if state == core.SceneReady {
			n.logger.Info("race ready")
			return nil
		}
		if err := sleep(ctx, n.poll); err != nil {
			return err
		}
	}
}

// Step performs the action for state and returns the next state.
func (n *Navigator) Step(ctx context.Context, state core.Scene, setup core.GameSetup) (core.Scene, error) {
	switch state {
	case core.SceneInit:
		return n.scene(ctx)

	case core.SceneTitleScreen:
		return n.confirmThenScene(ctx)

	case core.SceneMainMenu:
		return n.list(ctx, core.AddrMainMenuIdx, setup.MainMode)

	case core.SceneSoloMenu:
		return n.list(ctx, core.AddrSoloMenuIdx, setup.GameMode)

	case core.ScenePlayerSelection:
		return n.grid(ctx, core.AddrPlayerMenuIdx, setup.Player, playerGridWidth)

	case core.ScenePlayerAltSelection:
		return n.grid(ctx, core.AddrPlayerAltIdx, setup.PlayerVariant, variantGridWidth)

	case core.SceneCarSelection:
		item, err := n.read(ctx, core.AddrCarMenuIdx)
		if err != nil {
			return state, err
		}
		if int(item) >= 0 && int(item) < len(carItems) {
			want, _ := setup.CarPart(int(item))
			if err := n.downUntil(ctx, carItems[item], want); err != nil {
				return state, err
			}
		}
		return n.scene(ctx)

	case core.SceneRaceRuleSelection:
		item, err := n.read(ctx, core.AddrRuleMenuIdx)
		if err != nil {
			return state, err
		}
		if int(item) >= 0 && int(item) < len(ruleItems) {
			want, _ := setup.RaceRule(int(item))
			if err := n.rightUntil(ctx, ruleItems[item], want, int(item) == len(ruleItems)-1); err != nil {
				return state, err
			}
		}
		return n.scene(ctx)

	case core.SceneRaceTrackSelection:
		idx, err := n.read(ctx, core.AddrTrackCupSelIdx)
		if err != nil {
			return state, err
		}
		if idx < cupCount {
			if err := n.gridMove(ctx, idx, setup.CourseCup, cupGridWidth); err != nil {
				return state, err
			}
		} else if err := n.flatMove(ctx, idx, setup.Course); err != nil {
			return state, err
		}
		return n.scene(ctx)

	case core.SceneGoValidation:
		cur, err := n.scene(ctx)
		if err != nil {
			return state, err
		}
		if cur != core.SceneGoValidation {
			return core.SceneWaitRace, nil
		}
		return state, n.pad.Tap(ctx, input.ButtonConfirm)

	case core.SceneRace, core.SceneRaceAfterPause:
		if err := n.pad.Tap(ctx, input.ButtonPause); err != nil {
			return state, err
		}
		return n.scene(ctx)

	case core.ScenePauseMenu:
		// quit entry sits one below resume
		if err := n.blind(ctx, input.Down); err != nil {
			return state, err
		}
		return core.SceneQuitValidation, nil

	case core.SceneQuitValidation:
		if err := n.blind(ctx, input.Right); err != nil {
			return state, err
		}
		return core.SceneInit, nil

	case core.SceneRaceResult:
		if err := n.pad.Tap(ctx, input.ButtonConfirm); err != nil {
			return state, err
		}
		if err := sleep(ctx, n.settle); err != nil {
			return state, err
		}
		return n.scene(ctx)

	case core.SceneRaceEndMenu:
		if err := sleep(ctx, n.settle); err != nil {
			return state, err
		}
		idx, err := n.read(ctx, core.AddrRaceEndMenuIdx)
		if err != nil {
			return state, err
		}
		if idx == raceEndNextIdx {
			err = n.pad.Tap(ctx, input.ButtonConfirm)
		} else {
			err = n.pad.Nudge(ctx, input.Down)
		}
		if err != nil {
			return state, err
		}
		return n.scene(ctx)

	case core.SceneCinematicIntroRace:
		if err := n.pad.Tap(ctx, input.ButtonConfirm); err != nil {
			return state, err
		}
		return core.SceneWaitRace, nil

	case core.SceneWaitRace:
		return n.waitRace(ctx)

	case core.SceneReady:
		return state, nil
	}
	return core.SceneInit, nil
}

func (n *Navigator) waitRace(ctx context.Context) (core.Scene, error) {
	cur, err := n.scene(ctx)
	if err != nil {
		return core.SceneWaitRace, err
	}
	if cur == core.SceneCinematicIntroRace {
		if err := n.pad.Tap(ctx, input.ButtonConfirm); err != nil {
			return core.SceneWaitRace, err
		}
	}
	if cur == core.SceneRaceEndMenu {
		return core.SceneInit, nil
	}
	status, err := n.read(ctx, core.AddrStatus)
	if err != nil {
		return core.SceneWaitRace, err
	}
	if status == core.StatusRacing && (cur == core.SceneRace || cur == core.SceneRaceAfterPause) {
		return core.SceneReady, nil
	}
	return core.SceneWaitRace, nil
}

func (n *Navigator) confirmThenScene(ctx context.Context) (core.Scene, error) {
	if err := n.pad.Tap(ctx, input.ButtonConfirm); err != nil {
		return core.SceneInit, err
	}
	return n.scene(ctx)
}

// list moves down a vertical menu until the cursor is on want, then confirms.
func (n *Navigator) list(ctx context.Context, name string, want int32) (core.Scene, error) {
	idx, err := n.read(ctx, name)
	if err != nil {
		return core.SceneInit, err
	}
	if idx == int64(want) {
		err = n.pad.Tap(ctx, input.ButtonConfirm)
	} else {
		err = n.pad.Nudge(ctx, input.Down)
	}
	if err != nil {
		return core.SceneInit, err
	}
	return n.scene(ctx)
}

func (n *Navigator) grid(ctx context.Context, name string, want int32, width int64) (core.Scene, error) {
	idx, err := n.read(ctx, name)
	if err != nil {
		return core.SceneInit, err
	}
	if err := n.gridMove(ctx, idx, want, width); err != nil {
		return core.SceneInit, err
	}
	return n.scene(ctx)
}

// gridMove fixes the row first, then the column, then confirms.
func (n *Navigator) gridMove(ctx context.Context, idx int64, want int32, width int64) error {
	switch {
	case idx/width != int64(want)/width:
		return n.pad.Nudge(ctx, input.Down)
	case idx != int64(want):
		return n.pad.Nudge(ctx, input.Right)
	default:
		return n.pad.Tap(ctx, input.ButtonConfirm)
	}
}

func (n *Navigator) flatMove(ctx context.Context, idx int64, want int32) error {
	if idx != int64(want) {
		return n.pad.Nudge(ctx, input.Right)
	}
	return n.pad.Tap(ctx, input.ButtonConfirm)
}

// downUntil cycles a vertical part list and confirms the matching part.
func (n *Navigator) downUntil(ctx context.Context, name string, want int32) error {
	v, err := n.read(ctx, name)
	if err != nil {
		return err
	}
	if v != int64(want) {
		return n.pad.Nudge(ctx, input.Down)
	}
	return n.pad.Tap(ctx, input.ButtonConfirm)
}

// rightUntil cycles a rule value; on a match it moves to the next rule, or
// confirms the screen when the rule is the last one.
func (n *Navigator) rightUntil(ctx context.Context, name string, want int32, last bool) error {
	v, err := n.read(ctx, name)
	if err != nil {
		return err
	}
	switch {
	case v != int64(want):
		return n.pad.Nudge(ctx, input.Right)
	case last:
		return n.pad.Tap(ctx, input.ButtonConfirm)
	default:
		return n.pad.Nudge(ctx, input.Down)
	}
}

// blind plays a direction then confirm without reading the cursor.
func (n *Navigator) blind(ctx context.Context, d input.Direction) error {
	if err := n.pad.Nudge(ctx, d); err != nil {
		return err
	}
	if err := sleep(ctx, n.keyGap); err != nil {
		return err
	}
	return n.pad.Tap(ctx, input.ButtonConfirm)
}

func (n *Navigator) scene(ctx context.Context) (core.Scene, error) {
	raw, err := n.read(ctx, core.AddrSceneID)
	if err != nil {
		return core.SceneInit, err
	}
	return core.SceneFromRaw(raw), nil
}

// read polls the snapshot cache until name is present.
func (n *Navigator) read(ctx context.Context, name string) (int64, error) {
	for {
		if snap, ok := n.reader.Snapshot(); ok {
			if v, ok := snap.Values[name]; ok {
				return v.Int, nil
			}
		}
		if err := sleep(ctx, n.readRetry); err != nil {
			return 0, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RaceFinished reports whether the player left the racing states.
func RaceFinished(snap core.Snapshot) bool {
	return snap.RaceFinished()
}
