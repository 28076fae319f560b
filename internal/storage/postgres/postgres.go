// Package postgres records episodes into PostgreSQL through the GORM backend.
package postgres

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/database"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/logging"
	gormstorage "github.com/0xlouis/MarioKart8-Gym-Env/internal/storage/gorm"
)

// Dependencies holds the connection settings. DB may be injected; otherwise
// Init connects with Config.
type Dependencies struct {
	DB         *gorm.DB
	Config     config.DBConfig
	LogManager *logging.SlogManager
}

// Backend is the GORM backend on a Postgres connection.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
}

// New creates a new Postgres storage backend.
func New(deps Dependencies) *Backend {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{deps: deps}
}

// Init connects when no DB was injected, then migrates and starts the writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.OpenPostgres(b.deps.Config)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
		b.deps.LogManager.WriteLog("postgres:Init", fmt.Sprintf("Connected to %s:%s/%s", b.deps.Config.Host, b.deps.Config.Port, b.deps.Config.Database), "INFO")
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         b.deps.DB,
		LogManager: b.deps.LogManager,
	})
	return b.Backend.Init()
}

// Close flushes queued steps.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
