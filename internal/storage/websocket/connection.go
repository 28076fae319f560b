package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/streaming"
)

const (
	outboxSize   = 10_000
	ackBuffer    = 16
	maxRedials   = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait / 2
)

var errClosed = errors.New("stream closed")

// connection owns one collector link. A single goroutine writes, pings and
// redials; the episode header is replayed on every new link so the
// collector can attach the steps that follow.
type connection struct {
	url     string
	secret  string
	logger  *slog.Logger
	backoff time.Duration

	outbox chan []byte
	acks   chan streaming.AckMessage

	done      chan struct{}
	stopped   chan struct{}
	started   atomic.Bool
	closeOnce sync.Once

	mu     sync.Mutex
	header []byte

	dropped atomic.Int64
	redials atomic.Int64
}

func newConnection(rawURL, secret string, logger *slog.Logger) *connection {
	return &connection{
		url:     rawURL,
		secret:  secret,
		logger:  logger,
		backoff: time.Second,
		outbox:  make(chan []byte, outboxSize),
		acks:    make(chan streaming.AckMessage, ackBuffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// open dials once and starts the link goroutine.
func (c *connection) open() error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	c.started.Store(true)
	go c.run(conn)
	return nil
}

func (c *connection) dial() (*ws.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *connection) run(conn *ws.Conn) {
	defer close(c.stopped)
	for conn != nil {
		err := c.serve(conn)
		_ = conn.Close()
		if c.closing() {
			return
		}
		c.logger.Warn("collector link lost", "error", err)
		conn = c.redial()
	}
}

// serve pumps the outbox into conn until the link fails or close is asked.
// On close the outbox is flushed before the close frame.
func (c *connection) serve(conn *ws.Conn) error {
	readErr := make(chan error, 1)
	go func() { readErr <- c.readAcks(conn) }()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			c.flush(conn)
			return conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
		case err := <-readErr:
			return err
		case <-ping.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case data := <-c.outbox:
			if err := write(conn, data); err != nil {
				return err
			}
		}
	}
}

func (c *connection) flush(conn *ws.Conn) {
	for {
		select {
		case data := <-c.outbox:
			if err := write(conn, data); err != nil {
				c.logger.Warn("flush on close failed", "error", err, "left", len(c.outbox))
				return
			}
		default:
			return
		}
	}
}

func write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// readAcks forwards acks until the link fails. A missing pong ends it too.
func (c *connection) readAcks(conn *ws.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ack streaming.AckMessage
		if err := json.Unmarshal(msg, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("ignoring collector message", "raw", string(msg))
			continue
		}
		select {
		case c.acks <- ack:
		default:
			c.logger.Debug("ack buffer full, dropping", "for", ack.For)
		}
	}
}

// redial retries with exponential backoff and replays the header. It gives
// up after maxRedials attempts or on close.
func (c *connection) redial() *ws.Conn {
	wait := c.backoff
	for attempt := 1; attempt <= maxRedials; attempt++ {
		select {
		case <-c.done:
			return nil
		case <-time.After(wait):
		}
		wait = min(wait*2, maxBackoff)

		conn, err := c.dial()
		if err != nil {
			c.logger.Warn("redial failed", "attempt", attempt, "error", err)
			continue
		}
		if h := c.currentHeader(); h != nil {
			if err := write(conn, h); err != nil {
				c.logger.Warn("header replay failed", "attempt", attempt, "error", err)
				_ = conn.Close()
				continue
			}
		}
		c.redials.Add(1)
		c.logger.Info("collector link restored", "attempt", attempt)
		return conn
	}
	c.logger.Error("giving up on collector", "attempts", maxRedials)
	return nil
}

func (c *connection) setHeader(h []byte) {
	c.mu.Lock()
	c.header = h
	c.mu.Unlock()
}

func (c *connection) currentHeader() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header
}

// send queues data without blocking. Messages beyond the outbox are dropped
// and counted.
func (c *connection) send(data []byte) {
	select {
	case c.outbox <- data:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("collector outbox full, dropping", "dropped", n)
		}
	}
}

// sendAndWait queues data and waits for the ack naming ackFor.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	if c.closing() {
		return fmt.Errorf("%w: cannot send %s", errClosed, ackFor)
	}
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-c.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("%w while waiting for ack of %q", errClosed, ackFor)
		}
	}
}

// close stops the link goroutine after it flushed the outbox. Safe to call
// more than once.
func (c *connection) close() error {
	c.closeOnce.Do(func() { close(c.done) })
	if c.started.Load() {
		<-c.stopped
	}
	return nil
}
