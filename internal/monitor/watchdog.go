package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrStalled is returned by Watch when the transport went quiet for longer
// than the timeout. The serve loop relaunches the instance on it.
var ErrStalled = errors.New("no transport activity")

// ActivitySource reports the last transport message. transport.Adapter
// implements it.
type ActivitySource interface {
	LastActivity() time.Time
}

// Watchdog fails once activity stops.
type Watchdog struct {
	source  ActivitySource
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewWatchdog creates a watchdog. A zero timeout disables it.
func NewWatchdog(source ActivitySource, timeout time.Duration, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{source: source, timeout: timeout, logger: logger, now: time.Now}
}

// Watch blocks until ctx ends, returning nil, or until the source has been
// idle for the timeout, returning ErrStalled. Time before the first message
// counts from the call.
func (w *Watchdog) Watch(ctx context.Context) error {
	if w.timeout <= 0 {
		<-ctx.Done()
		return nil
	}

	start := w.now()
	tick := w.timeout / 10
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			last := w.source.LastActivity()
			if last.Before(start) {
				last = start
			}
			if idle := w.now().Sub(last); idle > w.timeout {
				w.logger.Warn("watchdog expired", "idle", idle, "timeout", w.timeout)
				return ErrStalled
			}
		}
	}
}
