package worker

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/dispatcher"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/storage/memory"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu      sync.Mutex
	calls   []string
	steps   []uint32
	stepErr error
	queue   int
	lastDur time.Duration
}

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartEpisode(ep *core.Episode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "start")
	return nil
}

func (b *mockBackend) EndEpisode(ep *core.Episode) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "end")
	return nil
}

func (b *mockBackend) RecordStep(s *core.Step) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "step")
	b.steps = append(b.steps, s.Index)
	return b.stepErr
}

func (b *mockBackend) QueueLen() int                    { return b.queue }
func (b *mockBackend) LastWriteDuration() time.Duration { return b.lastDur }

func (b *mockBackend) snapshot() ([]string, []uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...), append([]uint32(nil), b.steps...)
}

type mockTelemetry struct {
	mu       sync.Mutex
	steps    int
	episodes int
}

func (m *mockTelemetry) WriteStep(core.Episode, core.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps++
	return nil
}

func (m *mockTelemetry) WriteEpisode(core.Episode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.episodes++
	return nil
}

type mockUploader struct {
	path string
	meta core.ExportMetadata
	err  error
}

func (u *mockUploader) Upload(path string, meta core.ExportMetadata) error {
	u.path = path
	u.meta = meta
	return u.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(quietLogger())
	require.NoError(t, err)
	return d
}

func runEpisode(m *Manager, steps int) core.Episode {
	ep := core.NewEpisode("00000001", core.RunTraining, core.DefaultGameSetup())
	m.BeginEpisode(ep)
	for i := 1; i <= steps; i++ {
		m.RecordStep(core.Step{EpisodeID: ep.ID, Index: uint32(i), Time: time.Now()})
	}
	ep.Steps = uint32(steps)
	ep.EndedAt = time.Now().UTC()
	ep.RaceFinished = true
	m.EndEpisode(ep)
	return ep
}

func TestManager_KeepsOrderThroughDispatcher(t *testing.T) {
	backend := &mockBackend{}
	tel := &mockTelemetry{}
	m := NewManager(Dependencies{Backend: backend, Telemetry: tel, Logger: quietLogger()})
	d := newDispatcher(t)
	m.RegisterHandlers(d)

	runEpisode(m, 50)
	d.Close()

	calls, steps := backend.snapshot()
	require.Len(t, calls, 52)
	assert.Equal(t, "start", calls[0])
	assert.Equal(t, "end", calls[51])
	for i, idx := range steps {
		assert.Equal(t, uint32(i+1), idx)
	}
	assert.Equal(t, 50, tel.steps)
	assert.Equal(t, 1, tel.episodes)
	assert.Zero(t, m.Failed())
	assert.Zero(t, m.Dropped())
	assert.Zero(t, m.QueueLen())
}

func TestManager_StepOutsideEpisode(t *testing.T) {
	backend := &mockBackend{}
	m := NewManager(Dependencies{Backend: backend, Logger: quietLogger()})

	m.RecordStep(core.Step{Index: 1})
	m.EndEpisode(core.NewEpisode("x", core.RunTraining, core.DefaultGameSetup()))

	calls, _ := backend.snapshot()
	assert.Empty(t, calls)
	assert.Equal(t, 2, m.Failed())
}

func TestManager_StepFromOtherEpisode(t *testing.T) {
	backend := &mockBackend{}
	m := NewManager(Dependencies{Backend: backend, Logger: quietLogger()})

	ep := core.NewEpisode("x", core.RunTraining, core.DefaultGameSetup())
	other := core.NewEpisode("x", core.RunTraining, core.DefaultGameSetup())
	m.BeginEpisode(ep)
	m.RecordStep(core.Step{EpisodeID: other.ID, Index: 1})

	calls, _ := backend.snapshot()
	assert.Equal(t, []string{"start"}, calls)
	assert.Equal(t, 1, m.Failed())
}

func TestManager_BackendErrorCounted(t *testing.T) {
	backend := &mockBackend{stepErr: errors.New("disk full")}
	m := NewManager(Dependencies{Backend: backend, Logger: quietLogger()})

	runEpisode(m, 3)
	assert.Equal(t, 3, m.Failed())
}

func TestManager_NoBackend(t *testing.T) {
	tel := &mockTelemetry{}
	m := NewManager(Dependencies{Telemetry: tel, Logger: quietLogger()})

	runEpisode(m, 2)
	assert.Equal(t, 2, tel.steps)
	assert.Zero(t, m.Failed())
	assert.Zero(t, m.BackendQueueLen())
	assert.Zero(t, m.LastWriteDuration())
}

func TestManager_BackendStats(t *testing.T) {
	backend := &mockBackend{queue: 7, lastDur: 25 * time.Millisecond}
	m := NewManager(Dependencies{Backend: backend, Logger: quietLogger()})

	assert.Equal(t, 7, m.BackendQueueLen())
	assert.Equal(t, 25*time.Millisecond, m.LastWriteDuration())
}

func TestManager_UploadsExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	backend := memory.New(config.MemoryConfig{OutputDir: dir, CompressOutput: true})
	require.NoError(t, backend.Init())
	up := &mockUploader{}
	m := NewManager(Dependencies{Backend: backend, Uploader: up, Logger: quietLogger()})

	ep := runEpisode(m, 4)

	assert.Equal(t, backend.GetExportedFilePath(), up.path)
	assert.FileExists(t, up.path)
	assert.Equal(t, ep.ID.String(), up.meta.EpisodeID)
	assert.Equal(t, "finished", up.meta.Outcome)
	assert.Equal(t, 1, m.Uploaded())
	assert.Zero(t, m.Failed())
}

func TestManager_UploadFailureCounted(t *testing.T) {
	backend := memory.New(config.MemoryConfig{OutputDir: t.TempDir()})
	require.NoError(t, backend.Init())
	up := &mockUploader{err: errors.New("403")}
	m := NewManager(Dependencies{Backend: backend, Uploader: up, Logger: quietLogger()})

	runEpisode(m, 1)
	assert.Equal(t, 1, m.Failed())
	assert.Zero(t, m.Uploaded())
}
