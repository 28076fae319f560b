// internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// Backend is the interface all storage implementations must satisfy.
// Calls for one instance arrive from a single goroutine.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Episode management
	StartEpisode(ep *core.Episode) error
	EndEpisode(ep *core.Episode) error

	// Step recording
	RecordStep(s *core.Step) error
}

// Uploadable is an optional interface for storage backends that produce
// files suitable for upload.
type Uploadable interface {
	GetExportedFilePath() string
	GetExportMetadata() core.ExportMetadata
}

// Reader is implemented by backends that can read recorded episodes back.
type Reader interface {
	// ListEpisodes returns the most recent episodes first. An empty
	// instanceID matches every instance; limit <= 0 means no limit.
	ListEpisodes(ctx context.Context, instanceID string, limit int) ([]core.Episode, error)
	LoadEpisode(ctx context.Context, id uuid.UUID) (core.Episode, []core.Step, error)
}

// WriteDurationProvider is implemented by backends that batch writes.
type WriteDurationProvider interface {
	LastWriteDuration() time.Duration
}
