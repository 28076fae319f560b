// Package influx writes per-step telemetry points to InfluxDB, falling back to
// a gzipped line-protocol file when the server is unreachable.
package influx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// ErrDisabled is returned by Connect when influx output is turned off.
var ErrDisabled = errors.New("influx is disabled")

const (
	MeasurementStep    = "step"
	MeasurementEpisode = "episode"

	retention = 60 * 60 * 24 * 30
)

// Manager handles InfluxDB connections and writes.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger
	BackupPath   string

	cfg        config.InfluxConfig
	mu         sync.Mutex
	backupFile *os.File
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig, backupPath string) *Manager {
	return &Manager{
		Logger:     log,
		BackupPath: backupPath,
		cfg:        cfg,
	}
}

// Bucket is the bucket every point goes to.
func (m *Manager) Bucket() string {
	return m.cfg.Bucket
}

// Connect pings the server and prepares the write API. An unreachable server
// is not an error; points go to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.cfg.URL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		m.Logger.Warn().Err(err).Str("backupPath", m.BackupPath).
			Msg("InfluxDB unreachable, writing to backup file")
		return m.openBackup()
	}

	if err := m.ensureBucket(ctx); err != nil {
		return err
	}

	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())

	m.IsValid = true
	m.Logger.Info().Str("url", m.cfg.URL()).Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter != nil {
		return nil
	}
	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) ensureBucket(ctx context.Context) error {
	org, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.Logger.Info().Str("org", m.cfg.Org).Msg("Organization not found, creating")
		org, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			return fmt.Errorf("creating organization %s: %w", m.cfg.Org, err)
		}
	}

	if _, err := m.Client.BucketsAPI().FindBucketByName(ctx, m.cfg.Bucket); err == nil {
		return nil
	}
	m.Logger.Info().Str("bucket", m.cfg.Bucket).Msg("Bucket not found, creating")
	rule := domain.RetentionRuleTypeExpire
	_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
		Type:         &rule,
		EverySeconds: retention,
	})
	if err != nil {
		return fmt.Errorf("creating bucket %s: %w", m.cfg.Bucket, err)
	}
	return nil
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	// PointToLineProtocol already ends the line
	line := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := m.BackupWriter.Write([]byte(line)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// WriteStep records the telemetry and action of one step.
func (m *Manager) WriteStep(ep core.Episode, st core.Step) error {
	return m.WritePoint(StepPoint(ep, st))
}

// WriteEpisode records the summary of a finished episode.
func (m *Manager) WriteEpisode(ep core.Episode) error {
	return m.WritePoint(EpisodePoint(ep))
}

// Close flushes pending points and closes the backup file.
func (m *Manager) Close() error {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BackupWriter == nil {
		return nil
	}
	err := m.BackupWriter.Close()
	if cerr := m.backupFile.Close(); err == nil {
		err = cerr
	}
	m.BackupWriter = nil
	m.backupFile = nil
	return err
}

func tags(p *influxdb2_write.Point, ep core.Episode) {
	p.AddTag("instance", ep.InstanceID).
		AddTag("episode", ep.ID.String()).
		AddTag("mode", ep.Mode.String()).
		AddTag("track", fmt.Sprintf("%d", ep.TrackCode))
}

// StepPoint builds the point of one step. Every telemetry value becomes a
// field; the action is flattened under an action_ prefix.
func StepPoint(ep core.Episode, st core.Step) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(MeasurementStep).SetTime(st.Time)
	tags(p, ep)
	p.AddField("index", int64(st.Index))
	for name, v := range st.Telemetry {
		p.AddField(name, v)
	}
	a := st.Action
	p.AddField("action_forward", a.Forward).
		AddField("action_backward", a.Backward).
		AddField("action_x", a.X).
		AddField("action_y", a.Y).
		AddField("action_look_back", a.LookBack).
		AddField("action_horn", a.Horn).
		AddField("action_drift", a.Drift)
	return p
}

// EpisodePoint builds the summary point of a finished episode.
func EpisodePoint(ep core.Episode) *influxdb2_write.Point {
	ts := ep.EndedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	md := ep.Metadata()
	p := influxdb2_write.NewPointWithMeasurement(MeasurementEpisode).SetTime(ts)
	tags(p, ep)
	p.AddField("steps", int64(ep.Steps)).
		AddField("duration_ms", md.Duration.Milliseconds()).
		AddField("timed_out", ep.TimedOut).
		AddField("race_finished", ep.RaceFinished).
		AddField("outcome", md.Outcome)
	return p
}
