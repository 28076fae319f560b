package postgres

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/model"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

func TestInit_InjectedDB(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "pg.db")), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	b := New(Dependencies{DB: db})
	require.NoError(t, b.Init())

	ep := core.NewEpisode("00000004", core.RunTraining, core.DefaultGameSetup())
	require.NoError(t, b.StartEpisode(&ep))
	s := core.Step{EpisodeID: ep.ID, Index: 1, Time: time.Now().UTC()}
	require.NoError(t, b.RecordStep(&s))
	require.NoError(t, b.Close())

	var steps int64
	require.NoError(t, db.Model(&model.Step{}).Count(&steps).Error)
	assert.Equal(t, int64(1), steps)
}

func TestInit_Unreachable(t *testing.T) {
	b := New(Dependencies{Config: config.DBConfig{
		Host: "127.0.0.1", Port: "1", Username: "u", Password: "p", Database: "mk8gym",
	}})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}
