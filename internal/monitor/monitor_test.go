package monitor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/database"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/model"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/session"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

type fakeRecorder struct{}

func (fakeRecorder) QueueLen() int                    { return 3 }
func (fakeRecorder) BackendQueueLen() int             { return 70000 }
func (fakeRecorder) Dropped() int                     { return 2 }
func (fakeRecorder) Failed() int                      { return 1 }
func (fakeRecorder) LastWriteDuration() time.Duration { return 1500 * time.Microsecond }

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession() *session.Context {
	sc := session.NewContext("00000007", core.RunInference)
	sc.SetPhase(core.PhasePlaying)
	sc.BeginEpisode(core.NewEpisode("00000007", core.RunInference, core.DefaultGameSetup()))
	sc.SetStep(42)
	return sc
}

func TestGetProgramStatus(t *testing.T) {
	svc := NewService(Dependencies{Session: newSession(), Recorder: fakeRecorder{}, Logger: quiet()})

	report, row := svc.GetProgramStatus()
	assert.Equal(t, "00000007", report.InstanceID)
	assert.Equal(t, "inference", report.Mode)
	assert.Equal(t, uint32(42), report.Step)
	assert.Equal(t, Queues{Record: 3, Backend: 70000, Dropped: 2, Failed: 1}, report.Queues)
	assert.InDelta(t, 1.5, report.LastWriteMs, 1e-9)

	assert.Equal(t, "playing", row.Phase)
	assert.Equal(t, report.EpisodeID, row.EpisodeID)
	assert.Equal(t, uint16(3), row.QueueLengths.Record)
	assert.Equal(t, uint16(65535), row.QueueLengths.Backend)
	assert.Equal(t, uint32(2), row.QueueLengths.Dropped)
}

func TestGetProgramStatus_NoRecorder(t *testing.T) {
	svc := NewService(Dependencies{Session: newSession(), Logger: quiet()})
	report, _ := svc.GetProgramStatus()
	assert.Zero(t, report.Queues)
	assert.Zero(t, report.LastWriteMs)
}

func TestWriteStatus(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "status")
	db, err := database.OpenSqlite(filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	svc := NewService(Dependencies{Session: newSession(), Recorder: fakeRecorder{}, DB: db, StatusDir: dir, Logger: quiet()})
	require.NoError(t, svc.WriteStatus())
	require.NoError(t, svc.WriteStatus())

	data, err := os.ReadFile(svc.StatusPath())
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "00000007", got["instanceId"])
	assert.Equal(t, "playing", got["phase"])
	assert.Equal(t, float64(42), got["step"])
	assert.Contains(t, got, "queues")

	var rows int64
	require.NoError(t, db.Model(&model.InstanceStatus{}).Count(&rows).Error)
	assert.Equal(t, int64(2), rows)
}

func TestService_StartStop(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(Dependencies{Session: newSession(), StatusDir: dir, Interval: 10 * time.Millisecond, Logger: quiet()})

	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start())
	assert.True(t, svc.IsRunning())

	require.Eventually(t, func() bool {
		_, err := os.Stat(svc.StatusPath())
		return err == nil
	}, time.Second, 10*time.Millisecond)

	svc.Stop()
	svc.Stop()
	assert.False(t, svc.IsRunning())
}

func TestService_RunStopsWithContext(t *testing.T) {
	svc := NewService(Dependencies{Session: newSession(), StatusDir: t.TempDir(), Interval: 10 * time.Millisecond, Logger: quiet()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, svc.IsRunning, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, svc.IsRunning())
}

type fakeActivity struct {
	last atomic.Int64
}

func (f *fakeActivity) LastActivity() time.Time { return time.Unix(0, f.last.Load()) }
func (f *fakeActivity) touch()                  { f.last.Store(time.Now().UnixNano()) }

func TestWatchdog_Expires(t *testing.T) {
	src := &fakeActivity{}
	w := NewWatchdog(src, 50*time.Millisecond, quiet())

	start := time.Now()
	err := w.Watch(context.Background())
	assert.ErrorIs(t, err, ErrStalled)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWatchdog_KeptAliveByActivity(t *testing.T) {
	src := &fakeActivity{}
	w := NewWatchdog(src, 80*time.Millisecond, quiet())

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				src.touch()
			}
		}
	}()

	assert.NoError(t, w.Watch(ctx))
}

func TestWatchdog_Disabled(t *testing.T) {
	w := NewWatchdog(&fakeActivity{}, 0, quiet())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, w.Watch(ctx))
}
