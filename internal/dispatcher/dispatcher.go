// Package dispatcher routes commands to handlers. A handler either runs on
// the caller's goroutine or behind a lane: a buffered queue drained by one
// worker, which keeps the events of one command in order.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrUnknownCommand is returned by Dispatch when no handler is registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned when a non-blocking lane refuses an event.
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned for lane events dispatched after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Queued is the result of an event accepted by a lane.
const Queued = "queued"

// Event is one routed message. Inbound bus messages carry the raw Payload
// and the topic Key (the setup key for setup commands); internal producers
// put a decoded Value instead.
type Event struct {
	Command   string
	Key       string
	Payload   []byte
	Value     any
	Timestamp time.Time
}

// NewEvent stamps an event with the current time.
func NewEvent(command, key string, payload []byte) Event {
	return Event{Command: command, Key: key, Payload: payload, Timestamp: time.Now()}
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger is satisfied by *slog.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	lane     int
	blocking bool
	logged   bool
}

// Buffered runs the handler behind a lane of the given capacity. Dispatch
// returns Queued without waiting for the handler.
func Buffered(size int) Option {
	return func(o *options) { o.lane = size }
}

// Blocking makes Dispatch wait for room in a full lane instead of refusing.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs every event at debug level and failures at error level.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger  Logger
	metrics *metrics

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	lanes    map[string]*lane
	closed   bool
	workers  sync.WaitGroup
}

// New creates a dispatcher. Metrics go to the global OTel meter, a no-op
// until a provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		lanes:    make(map[string]*lane),
	}
	m, err := newMetrics(d.laneLengths)
	if err != nil {
		return nil, err
	}
	d.metrics = m
	return d, nil
}

// Register adds the handler of command. Registering a command twice is a
// programming error and panics.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.handlers[command]; dup {
		panic("dispatcher: command registered twice: " + command)
	}

	h = d.timed(command, h)
	if o.logged {
		h = d.logged(command, h)
	}
	if o.lane > 0 {
		l := &lane{
			command:  command,
			events:   make(chan Event, o.lane),
			blocking: o.blocking,
			attrs:    metric.WithAttributes(attribute.String("command", command)),
		}
		d.lanes[command] = l
		d.workers.Add(1)
		go d.drain(l, h)
		h = d.enqueue(l)
	}
	d.handlers[command] = h
}

// Dispatch routes an event to its handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	return h(e)
}

// HasHandler reports whether command is registered.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// QueueLen returns the number of events waiting in the lane of command.
func (d *Dispatcher) QueueLen(command string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if l, ok := d.lanes[command]; ok {
		return len(l.events)
	}
	return 0
}

func (d *Dispatcher) laneLengths(observe func(command string, n int)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for cmd, l := range d.lanes {
		observe(cmd, len(l.events))
	}
}

// Close refuses further lane events and waits until the queued ones are
// handled. Direct handlers keep working.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, l := range d.lanes {
		close(l.events)
	}
	d.mu.Unlock()
	d.workers.Wait()
}

type lane struct {
	command  string
	events   chan Event
	blocking bool
	attrs    metric.MeasurementOption
}

func (d *Dispatcher) drain(l *lane, h HandlerFunc) {
	defer d.workers.Done()
	for e := range l.events {
		if _, err := h(e); err != nil {
			d.logger.Error("queued event failed", "command", l.command, "key", e.Key, "error", err)
		}
		d.metrics.processed.Add(context.Background(), 1, l.attrs)
	}
}

// enqueue holds the read lock while sending so Close cannot close the
// channel under a pending send.
func (d *Dispatcher) enqueue(l *lane) HandlerFunc {
	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, fmt.Errorf("%w: %s", ErrClosed, l.command)
		}
		if l.blocking {
			l.events <- e
			return Queued, nil
		}
		select {
		case l.events <- e:
			return Queued, nil
		default:
			d.metrics.dropped.Add(context.Background(), 1, l.attrs)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, l.command)
		}
	}
}

func (d *Dispatcher) timed(command string, h HandlerFunc) HandlerFunc {
	attrs := metric.WithAttributes(attribute.String("command", command))
	return func(e Event) (any, error) {
		start := time.Now()
		res, err := h(e)
		d.metrics.duration.Record(context.Background(), time.Since(start).Seconds(), attrs)
		return res, err
	}
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "key", e.Key, "bytes", len(e.Payload))
		res, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "key", e.Key, "took", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event handled", "command", command, "took", time.Since(start))
		}
		return res, err
	}
}
