// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/logging"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/storage/memory"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/storage/postgres"
	sqlitestorage "github.com/0xlouis/MarioKart8-Gym-Env/internal/storage/sqlite"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/storage/websocket"
)

// Dependencies holds what the SQL and streaming backends need besides
// StorageConfig.
type Dependencies struct {
	DB         config.DBConfig
	LogManager *logging.SlogManager
	Logger     *slog.Logger
}

// NewBackend creates a storage backend based on configuration. The type
// "none" disables recording and returns a nil Backend.
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite":
		b, err := sqlitestorage.New(sqlitestorage.Config{
			DumpPath:     cfg.SQLite.Path,
			DumpInterval: cfg.SQLite.DumpInterval,
		}, deps.LogManager)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "postgres":
		return postgres.New(postgres.Dependencies{
			Config:     deps.DB,
			LogManager: deps.LogManager,
		}), nil
	case "websocket":
		return websocket.New(websocket.Config{
			URL:    cfg.Websocket.URL,
			Secret: cfg.Websocket.Secret,
		}, deps.Logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
