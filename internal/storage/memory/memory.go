// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"os"
	"sync"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/geo"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// Backend keeps the current episode in memory and writes one JSON export
// per finished episode.
type Backend struct {
	cfg config.MemoryConfig

	mu      sync.Mutex
	episode *core.Episode
	steps   []core.Step
	path    geo.Trajectory

	lastExport string
	lastMeta   core.ExportMetadata
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init creates the output directory.
func (b *Backend) Init() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	return nil
}

// Close drops an unfinished episode.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.episode = nil
	b.steps = nil
	return nil
}

func (b *Backend) StartEpisode(ep *core.Episode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *ep
	b.episode = &cp
	b.steps = b.steps[:0]
	b.path.Reset()
	return nil
}

func (b *Backend) RecordStep(s *core.Step) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.episode == nil || s.EpisodeID != b.episode.ID {
		return fmt.Errorf("step %d of episode %s outside the current episode", s.Index, s.EpisodeID)
	}
	b.steps = append(b.steps, *s)
	b.path.AddStep(*s)
	return nil
}

// EndEpisode writes the export file.
func (b *Backend) EndEpisode(ep *core.Episode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.episode == nil || ep.ID != b.episode.ID {
		return fmt.Errorf("end of episode %s that was never started", ep.ID)
	}

	data := newExport(*ep, b.steps, &b.path)
	path, err := WriteExport(b.cfg.OutputDir, data, b.cfg.CompressOutput)
	if err != nil {
		return err
	}
	b.lastExport = path
	b.lastMeta = data.Metadata
	b.episode = nil
	b.steps = nil
	return nil
}

// GetExportedFilePath returns the file written by the last EndEpisode.
func (b *Backend) GetExportedFilePath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastExport
}

// GetExportMetadata describes the last export.
func (b *Backend) GetExportMetadata() core.ExportMetadata {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastMeta
}
