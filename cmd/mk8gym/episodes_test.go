package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/database"
	gormstorage "github.com/0xlouis/MarioKart8-Gym-Env/internal/storage/gorm"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/storage/memory"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

func recordedBackend(t *testing.T) (*gormstorage.Backend, core.Episode) {
	t.Helper()
	db, err := database.OpenSqlite(filepath.Join(t.TempDir(), "episodes.db"))
	require.NoError(t, err)
	b := gormstorage.New(gormstorage.Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })

	ep := core.NewEpisode("00000007", core.RunInference, core.DefaultGameSetup())
	ep.TrackCode = core.Tracks()[0].Code
	require.NoError(t, b.StartEpisode(&ep))
	for i := uint32(1); i <= 3; i++ {
		st := core.Step{
			EpisodeID: ep.ID,
			Index:     i,
			Time:      ep.StartedAt.Add(time.Duration(i) * 100 * time.Millisecond),
			Telemetry: map[string]float64{core.AddrPosX: float64(i), core.AddrPosY: 0, core.AddrPosZ: 0},
		}
		require.NoError(t, b.RecordStep(&st))
	}
	ep.Steps = 3
	ep.RaceFinished = true
	ep.EndedAt = ep.StartedAt.Add(2 * time.Second)
	require.NoError(t, b.EndEpisode(&ep))
	return b, ep
}

func TestListEpisodes(t *testing.T) {
	b, ep := recordedBackend(t)

	var out bytes.Buffer
	require.NoError(t, listEpisodes(context.Background(), b, &out, "", 10))
	s := out.String()
	assert.Contains(t, s, "INSTANCE")
	assert.Contains(t, s, ep.ID.String())
	assert.Contains(t, s, "00000007")
	assert.Contains(t, s, core.Tracks()[0].Name)

	out.Reset()
	require.NoError(t, listEpisodes(context.Background(), b, &out, "other", 10))
	assert.NotContains(t, out.String(), ep.ID.String())
}

func TestExportAndUpload(t *testing.T) {
	b, ep := recordedBackend(t)
	dir := t.TempDir()

	paths, err := exportEpisodes(context.Background(), b, []uuid.UUID{ep.ID}, dir, true)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	data, err := memory.ReadExport(paths[0])
	require.NoError(t, err)
	assert.Len(t, data.Steps, 3)
	assert.Equal(t, ep.ID.String(), data.Metadata.EpisodeID)

	u := &fakeUploader{}
	var out bytes.Buffer
	require.NoError(t, uploadExports(u, &out, paths))
	require.Len(t, u.metas, 1)
	assert.Equal(t, uint32(3), u.metas[0].Steps)
	assert.Contains(t, out.String(), ep.ID.String())
}

func TestExportUnknownEpisode(t *testing.T) {
	b, _ := recordedBackend(t)
	paths, err := exportEpisodes(context.Background(), b, []uuid.UUID{uuid.New()}, t.TempDir(), false)
	assert.ErrorIs(t, err, gormstorage.ErrEpisodeNotFound)
	assert.Empty(t, paths)
}

func TestUploadStopsOnError(t *testing.T) {
	b, ep := recordedBackend(t)
	paths, err := exportEpisodes(context.Background(), b, []uuid.UUID{ep.ID}, t.TempDir(), false)
	require.NoError(t, err)

	u := &fakeUploader{err: errors.New("503")}
	err = uploadExports(u, &bytes.Buffer{}, paths)
	assert.ErrorContains(t, err, "503")
}

func TestParseIDs(t *testing.T) {
	id := uuid.New()
	ids, err := parseIDs([]string{id.String()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, ids)

	_, err = parseIDs([]string{"nope"})
	assert.Error(t, err)
}

type fakeUploader struct {
	metas []core.ExportMetadata
	err   error
}

func (f *fakeUploader) Upload(_ string, meta core.ExportMetadata) error {
	if f.err != nil {
		return f.err
	}
	f.metas = append(f.metas, meta)
	return nil
}
