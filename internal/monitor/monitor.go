// Package monitor writes the periodic status file of an instance and watches
// the transport for stalls.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/model"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/session"
)

// StatusFileName is written in the status directory.
const StatusFileName = "status.json"

// SessionSource provides the live session state. session.Context implements it.
type SessionSource interface {
	Status() session.Status
}

// RecorderStats exposes the recording backlog. worker.Manager implements it.
type RecorderStats interface {
	QueueLen() int
	BackendQueueLen() int
	Dropped() int
	Failed() int
	LastWriteDuration() time.Duration
}

// Dependencies holds all dependencies for the monitor service. Recorder and
// DB are optional.
type Dependencies struct {
	Session   SessionSource
	Recorder  RecorderStats
	DB        *gorm.DB
	Logger    *slog.Logger
	StatusDir string
	Interval  time.Duration
}

// Queues is the recorder part of a report.
type Queues struct {
	Record  int `json:"record"`
	Backend int `json:"backend"`
	Dropped int `json:"dropped"`
	Failed  int `json:"failed"`
}

// Report is the content of the status file.
type Report struct {
	session.Status
	Queues      Queues  `json:"queues"`
	LastWriteMs float64 `json:"lastWriteMs"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// StatusPath is the full path of the status file.
func (s *Service) StatusPath() string {
	return filepath.Join(s.deps.StatusDir, StatusFileName)
}

// GetProgramStatus samples the session and recorder state.
func (s *Service) GetProgramStatus() (Report, model.InstanceStatus) {
	st := s.deps.Session.Status()
	r := Report{Status: st}
	if rec := s.deps.Recorder; rec != nil {
		r.Queues = Queues{
			Record:  rec.QueueLen(),
			Backend: rec.BackendQueueLen(),
			Dropped: rec.Dropped(),
			Failed:  rec.Failed(),
		}
		r.LastWriteMs = float64(rec.LastWriteDuration().Microseconds()) / 1000
	}

	row := model.InstanceStatus{
		Time:       time.Now().UTC(),
		InstanceID: st.InstanceID,
		Phase:      string(st.Phase),
		EpisodeID:  st.EpisodeID,
		Step:       st.Step,
		Episodes:   st.Episodes,
		Recoveries: st.Recoveries,
		QueueLengths: model.RecordQueueLengths{
			Record:  clamp16(r.Queues.Record),
			Backend: clamp16(r.Queues.Backend),
			Dropped: uint32(max(r.Queues.Dropped, 0)),
		},
		LastWriteDurationMs: float32(r.LastWriteMs),
	}
	return r, row
}

func clamp16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

// WriteStatus samples the state once, replaces the status file and, with a
// database, appends a status row.
func (s *Service) WriteStatus() error {
	report, row := s.GetProgramStatus()

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	if err := os.MkdirAll(s.deps.StatusDir, 0755); err != nil {
		return fmt.Errorf("creating status dir: %w", err)
	}
	tmp := s.StatusPath() + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	if err := os.Rename(tmp, s.StatusPath()); err != nil {
		return fmt.Errorf("replacing status file: %w", err)
	}

	if s.deps.DB != nil {
		if err := s.deps.DB.Create(&row).Error; err != nil {
			return fmt.Errorf("writing status row: %w", err)
		}
	}
	return nil
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "path", s.StatusPath(), "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.WriteStatus(); err != nil {
					logger.Error("Error writing status", "error", err)
				}
			}
		}
	}()

	return nil
}

// Run starts the monitor and stops it when ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.isRunning = false
	done := s.done
	s.mu.Unlock()
	<-done
}
