// Package worker records episodes off the orchestrator goroutine. Calls are
// queued on one buffered dispatcher command so begin, step and end keep their
// order.
package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/cache"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/dispatcher"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/storage"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// CmdRecord is the dispatcher command carrying every recording event.
const CmdRecord = "record"

const (
	kindBegin = "begin"
	kindStep  = "step"
	kindEnd   = "end"
)

// DefaultBufferSize is the capacity of the recording queue.
const DefaultBufferSize = 4096

// reserve keeps room for episode boundaries when steps are being shed.
const reserve = 16

// ErrNoEpisode is returned when a step or end arrives outside an episode.
var ErrNoEpisode = errors.New("no episode in progress")

// Telemetry receives step and episode points. The influx manager implements it.
type Telemetry interface {
	WriteStep(ep core.Episode, st core.Step) error
	WriteEpisode(ep core.Episode) error
}

// Uploader sends a finished export file to the archive service.
type Uploader interface {
	Upload(filePath string, meta core.ExportMetadata) error
}

// Dependencies holds all dependencies for the worker manager. Every field
// but Logger is optional.
type Dependencies struct {
	Backend    storage.Backend
	Telemetry  Telemetry
	Uploader   Uploader
	Logger     *slog.Logger
	BufferSize int
}

// Manager implements the episode recorder.
type Manager struct {
	deps       Dependencies
	dispatcher *dispatcher.Dispatcher

	mu      sync.Mutex
	current *core.Episode

	dropped  cache.SafeCounter
	failed   cache.SafeCounter
	uploaded cache.SafeCounter
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.BufferSize <= reserve {
		deps.BufferSize = DefaultBufferSize
	}
	return &Manager{deps: deps}
}

// RegisterHandlers registers the recording handler with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	m.dispatcher = d
	d.Register(CmdRecord, m.handle, dispatcher.Buffered(m.deps.BufferSize), dispatcher.Blocking())
}

// enqueue hands an event to the dispatcher. Without one the event is
// handled inline, which tests and the export command rely on.
func (m *Manager) enqueue(kind string, v any) error {
	e := dispatcher.Event{Command: CmdRecord, Key: kind, Value: v, Timestamp: time.Now()}
	if m.dispatcher == nil {
		if _, err := m.handle(e); err != nil {
			m.deps.Logger.Error("record event failed", "kind", kind, "error", err)
		}
		return nil
	}
	_, err := m.dispatcher.Dispatch(e)
	return err
}

// BeginEpisode queues the start of an episode.
func (m *Manager) BeginEpisode(ep core.Episode) {
	if err := m.enqueue(kindBegin, ep); err != nil {
		m.failed.Inc()
		m.deps.Logger.Error("failed to queue episode start", "episode", ep.ID, "error", err)
	}
}

// RecordStep queues a step. Steps are dropped once the queue is nearly full.
func (m *Manager) RecordStep(st core.Step) {
	if m.dispatcher != nil && m.dispatcher.QueueLen(CmdRecord) >= m.deps.BufferSize-reserve {
		m.dropped.Inc()
		return
	}
	if err := m.enqueue(kindStep, st); err != nil {
		m.failed.Inc()
		m.deps.Logger.Debug("failed to queue step", "step", st.Index, "error", err)
	}
}

// EndEpisode queues the end of an episode.
func (m *Manager) EndEpisode(ep core.Episode) {
	if err := m.enqueue(kindEnd, ep); err != nil {
		m.failed.Inc()
		m.deps.Logger.Error("failed to queue episode end", "episode", ep.ID, "error", err)
	}
}

func (m *Manager) handle(e dispatcher.Event) (any, error) {
	var err error
	switch e.Key {
	case kindBegin:
		ep, _ := e.Value.(core.Episode)
		err = m.handleBegin(ep)
	case kindStep:
		st, _ := e.Value.(core.Step)
		err = m.handleStep(st)
	case kindEnd:
		ep, _ := e.Value.(core.Episode)
		err = m.handleEnd(ep)
	default:
		err = fmt.Errorf("unknown record kind %q", e.Key)
	}
	if err != nil {
		m.failed.Inc()
	}
	return nil, err
}

func (m *Manager) handleBegin(ep core.Episode) error {
	m.mu.Lock()
	m.current = &ep
	m.mu.Unlock()

	if m.deps.Backend == nil {
		return nil
	}
	if err := m.deps.Backend.StartEpisode(&ep); err != nil {
		return fmt.Errorf("start episode %s: %w", ep.ID, err)
	}
	return nil
}

func (m *Manager) handleStep(st core.Step) error {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur == nil || cur.ID != st.EpisodeID {
		return fmt.Errorf("%w: step %d of %s", ErrNoEpisode, st.Index, st.EpisodeID)
	}

	var errs []error
	if m.deps.Backend != nil {
		if err := m.deps.Backend.RecordStep(&st); err != nil {
			errs = append(errs, fmt.Errorf("record step %d: %w", st.Index, err))
		}
	}
	if m.deps.Telemetry != nil {
		if err := m.deps.Telemetry.WriteStep(*cur, st); err != nil {
			errs = append(errs, fmt.Errorf("write step point: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) handleEnd(ep core.Episode) error {
	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.mu.Unlock()
	if cur == nil || cur.ID != ep.ID {
		return fmt.Errorf("%w: end of %s", ErrNoEpisode, ep.ID)
	}

	var errs []error
	if m.deps.Backend != nil {
		if err := m.deps.Backend.EndEpisode(&ep); err != nil {
			errs = append(errs, fmt.Errorf("end episode %s: %w", ep.ID, err))
		}
	}
	if m.deps.Telemetry != nil {
		if err := m.deps.Telemetry.WriteEpisode(ep); err != nil {
			errs = append(errs, fmt.Errorf("write episode point: %w", err))
		}
	}
	if len(errs) == 0 {
		errs = append(errs, m.upload())
	}
	m.deps.Logger.Info("episode recorded",
		"episode", ep.ID, "steps", ep.Steps, "outcome", ep.Outcome())
	return errors.Join(errs...)
}

func (m *Manager) upload() error {
	if m.deps.Uploader == nil {
		return nil
	}
	up, ok := m.deps.Backend.(storage.Uploadable)
	if !ok {
		return nil
	}
	path := up.GetExportedFilePath()
	if path == "" {
		return nil
	}
	if err := m.deps.Uploader.Upload(path, up.GetExportMetadata()); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	m.uploaded.Inc()
	m.deps.Logger.Info("episode uploaded", "file", path)
	return nil
}

// QueueLen is the number of recording events waiting.
func (m *Manager) QueueLen() int {
	if m.dispatcher == nil {
		return 0
	}
	return m.dispatcher.QueueLen(CmdRecord)
}

// BackendQueueLen is the number of steps the backend still has to write, for
// backends that batch.
func (m *Manager) BackendQueueLen() int {
	if q, ok := m.deps.Backend.(interface{ QueueLen() int }); ok {
		return q.QueueLen()
	}
	return 0
}

// LastWriteDuration returns the duration of the last batched backend write.
// Returns 0 if the backend doesn't batch.
func (m *Manager) LastWriteDuration() time.Duration {
	if p, ok := m.deps.Backend.(storage.WriteDurationProvider); ok {
		return p.LastWriteDuration()
	}
	return 0
}

// Dropped counts steps shed under backpressure.
func (m *Manager) Dropped() int { return m.dropped.Value() }

// Failed counts recording events that could not be queued or written.
func (m *Manager) Failed() int { return m.failed.Value() }

// Uploaded counts export files sent to the archive service.
func (m *Manager) Uploaded() int { return m.uploaded.Value() }
