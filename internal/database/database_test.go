package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/model"
)

func TestOpenSqlite_FileAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "episodes.db")
	db, err := OpenSqlite(path)
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	assert.True(t, db.Migrator().HasTable(&model.Episode{}))
	assert.True(t, db.Migrator().HasTable(&model.Step{}))
	assert.FileExists(t, path)
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := OpenSqlite("")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	dir := t.TempDir()
	path := filepath.Join(dir, "dump.db")
	require.NoError(t, DumpMemoryDBToDisk(db, path))
	// second dump replaces the first
	require.NoError(t, DumpMemoryDBToDisk(db, path))
	assert.FileExists(t, path)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary dump files must not be left behind")

	assert.Error(t, DumpMemoryDBToDisk(db, ""))
}

func TestGetBackupDBPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.db", "b.db", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.db"), 0o755))

	paths, err := GetBackupDBPaths(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db")}, paths)

	_, err = GetBackupDBPaths(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestManager_FallsBackToSqlite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.db")
	m := NewManager(zerolog.Nop(), config.DBConfig{
		Host: "127.0.0.1", Port: "1", Username: "u", Password: "p", Database: "mk8gym",
	}, path)

	require.NoError(t, m.Connect())
	t.Cleanup(func() { _ = m.Close() })

	assert.True(t, m.IsValid)
	assert.True(t, m.IsLocal)
	require.NoError(t, m.Setup())
	assert.True(t, m.DB.Migrator().HasTable(&model.InstanceStatus{}))
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(config.DBConfig{Host: "db", Port: "5432", Username: "u", Password: "p", Database: "mk8gym"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=mk8gym sslmode=disable", dsn)
}
