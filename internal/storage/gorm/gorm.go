// Package gormstorage records episodes through GORM. Steps are queued and
// written in batches by a background goroutine; episode rows are written
// synchronously at start and end. The postgres and sqlite backends wrap it.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/database"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/geo"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/logging"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/model"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/model/convert"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/queue"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// DefaultFlushInterval is how often queued steps are written.
const DefaultFlushInterval = time.Second

// ErrEpisodeNotFound is returned by LoadEpisode for an unknown ID.
var ErrEpisodeNotFound = errors.New("episode not found")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	FlushInterval time.Duration
}

// Backend implements storage.Backend with queue-based batch writes.
type Backend struct {
	deps  Dependencies
	steps *queue.Queue[model.Step]

	mu   sync.Mutex
	path geo.Trajectory

	writeMu   sync.Mutex
	lastWrite atomic.Int64

	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{
		deps:  deps,
		steps: queue.New[model.Step](),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend: no database")
	}
	b.deps.LogManager.WriteLog("gorm:Init", "Migrating schema", "INFO")
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writeLoop()
	return nil
}

// Close stops the writer after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() { close(b.stopChan) })
	<-b.done
	return nil
}

// StartEpisode inserts the episode row.
func (b *Backend) StartEpisode(ep *core.Episode) error {
	b.mu.Lock()
	b.path.Reset()
	b.mu.Unlock()

	row := convert.CoreToEpisode(*ep, geo.NewEmptyLineString())
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert episode %s: %w", ep.ID, err)
	}
	return nil
}

// RecordStep queues a step for the next batch.
func (b *Backend) RecordStep(s *core.Step) error {
	b.mu.Lock()
	b.path.AddStep(*s)
	b.mu.Unlock()

	b.steps.Push(convert.CoreToStep(*s))
	return nil
}

// EndEpisode writes outstanding steps, then the final episode row with its
// trajectory.
func (b *Backend) EndEpisode(ep *core.Episode) error {
	b.flush()

	b.mu.Lock()
	path := b.path.LineString()
	b.mu.Unlock()

	row := convert.CoreToEpisode(*ep, path)
	if err := b.deps.DB.Save(&row).Error; err != nil {
		return fmt.Errorf("failed to update episode %s: %w", ep.ID, err)
	}
	return nil
}

// QueueLen returns the number of steps waiting to be written.
func (b *Backend) QueueLen() int {
	return b.steps.Len()
}

// LastWriteDuration returns the duration of the last batch write.
func (b *Backend) LastWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the batch goes back to the head of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string)) {
	items := q.Drain()
	if len(items) == 0 {
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(&items).Error
	})
	if err != nil {
		log("gorm:writeQueue", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		q.Requeue(items...)
	}
}

func (b *Backend) flush() {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	writeQueue(b.deps.DB, b.steps, "steps", b.deps.LogManager.WriteLog)
	b.lastWrite.Store(int64(time.Since(start)))
}

func (b *Backend) writeLoop() {
	defer close(b.done)
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.flush()
			return
		case <-ticker.C:
			b.flush()
		}
	}
}

// ListEpisodes returns recorded episodes, newest first.
func (b *Backend) ListEpisodes(ctx context.Context, instanceID string, limit int) ([]core.Episode, error) {
	q := b.deps.DB.WithContext(ctx).Model(&model.Episode{}).Order("started_at desc")
	if instanceID != "" {
		q = q.Where("instance_id = ?", instanceID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []model.Episode
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	out := make([]core.Episode, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.EpisodeToCore(r))
	}
	return out, nil
}

// LoadEpisode returns an episode and its steps in order.
func (b *Backend) LoadEpisode(ctx context.Context, id uuid.UUID) (core.Episode, []core.Step, error) {
	db := b.deps.DB.WithContext(ctx)

	var row model.Episode
	err := db.Where("id = ?", datatypes.UUID(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Episode{}, nil, fmt.Errorf("%w: %s", ErrEpisodeNotFound, id)
	}
	if err != nil {
		return core.Episode{}, nil, fmt.Errorf("failed to load episode %s: %w", id, err)
	}

	var rows []model.Step
	if err := db.Where("episode_id = ?", datatypes.UUID(id)).Order("step_index asc").Find(&rows).Error; err != nil {
		return core.Episode{}, nil, fmt.Errorf("failed to load steps of %s: %w", id, err)
	}
	steps := make([]core.Step, 0, len(rows))
	for _, r := range rows {
		steps = append(steps, convert.StepToCore(r))
	}
	return convert.EpisodeToCore(row), steps, nil
}
