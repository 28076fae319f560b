// Package gdbstub is a minimal GDB remote serial protocol client for the
// emulator's debug stub. It implements instrument.Instrumentation.
package gdbstub

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/channel"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/instrument"
)

var (
	// ErrClosed is returned once the connection is gone.
	ErrClosed = errors.New("gdb stub connection closed")
	// ErrUnexpectedReply is returned when the stub answers with something
	// other than what the command expects.
	ErrUnexpectedReply = errors.New("unexpected reply from gdb stub")
	// ErrExited is returned by Next when the target process exits.
	ErrExited = errors.New("target process exited")
)

// breakpointKind is the ARM instruction width for Z0/z0.
const breakpointKind = 4

// packetBuffer bounds the replies queued between the reader and callers.
const packetBuffer = 64

// Client talks to one stub over one connection. Requests are serialised;
// Next and the request methods must not be called concurrently with each
// other, which matches how the sampler drives them from one goroutine.
type Client struct {
	conn   net.Conn
	logger *slog.Logger

	packets channel.Channel[string]
	writeMu sync.Mutex
	reqMu   sync.Mutex

	mu      sync.Mutex
	running bool
	readErr error
	done    chan struct{}
}

// Dial connects to the stub at addr (host:port).
func Dial(ctx context.Context, addr string, logger *slog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing gdb stub %s: %w", addr, err)
	}
	return NewClient(conn, logger), nil
}

// NewClient wraps an established connection and starts reading from it.
func NewClient(conn net.Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		conn:    conn,
		logger:  logger,
		packets: channel.New[string](packetBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.packets.Close()

	rd := bufio.NewReader(c.conn)
	for {
		kind, payload, err := readFrame(rd)
		if errors.Is(err, ErrChecksum) {
			c.logger.Debug("gdb packet checksum mismatch")
			_ = c.write([]byte{'-'})
			continue
		}
		if err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}

		switch kind {
		case frameAck, frameInterrupt, frameNotify:
			continue
		case frameNack:
			c.logger.Debug("gdb stub requested retransmit")
			continue
		}

		if err := c.write([]byte{'+'}); err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			return
		}
		if !c.packets.TrySend(payload) {
			c.logger.Error("dropping gdb packet, reply queue full", "packet", payload, "dropped", c.packets.Dropped())
		}
	}
}

func (c *Client) write(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(b)
	return err
}

func (c *Client) send(payload string) error {
	if err := c.write(encodePacket(payload)); err != nil {
		return fmt.Errorf("sending %q: %w", payload, err)
	}
	return nil
}

func (c *Client) recv(ctx context.Context) (string, error) {
	p, err := channel.Recv[string](ctx, c.packets)
	if errors.Is(err, channel.ErrClosed) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.readErr != nil {
			return "", fmt.Errorf("%w: %v", ErrClosed, c.readErr)
		}
		return "", ErrClosed
	}
	return p, err
}

func (c *Client) request(ctx context.Context, payload string) (string, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.send(payload); err != nil {
		return "", err
	}
	reply, err := c.recv(ctx)
	if err != nil {
		return "", err
	}
	if len(reply) == 3 && reply[0] == 'E' {
		return "", fmt.Errorf("%s: stub error %s", payload, reply[1:])
	}
	return reply, nil
}

func (c *Client) expectOK(ctx context.Context, payload string) error {
	reply, err := c.request(ctx, payload)
	if err != nil {
		return err
	}
	if reply != "OK" {
		return fmt.Errorf("%s: %w: %q", payload, ErrUnexpectedReply, reply)
	}
	return nil
}

// Handshake asks for the halt reason. The target is halted afterwards.
func (c *Client) Handshake(ctx context.Context) error {
	reply, err := c.request(ctx, "?")
	if err != nil {
		return err
	}
	if _, err := parseStop(reply); err != nil && !errors.Is(err, ErrExited) {
		return err
	}
	c.setRunning(false)
	c.logger.Debug("gdb handshake", "reply", reply)
	return nil
}

func (c *Client) ReadMemory(ctx context.Context, addr uint64, size int) ([]byte, error) {
	reply, err := c.request(ctx, fmt.Sprintf("m%x,%x", addr, size))
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(reply)
	if err != nil {
		return nil, fmt.Errorf("m%x: %w: %q", addr, ErrUnexpectedReply, reply)
	}
	if len(raw) != size {
		return nil, fmt.Errorf("m%x: short read %d/%d", addr, len(raw), size)
	}
	return raw, nil
}

func (c *Client) ReadRegister(ctx context.Context, name string) (uint64, error) {
	n, err := registerNumber(name)
	if err != nil {
		return 0, err
	}
	reply, err := c.request(ctx, fmt.Sprintf("p%x", n))
	if err != nil {
		return 0, err
	}
	raw, err := hex.DecodeString(reply)
	if err != nil || len(raw) == 0 || len(raw) > 8 {
		return 0, fmt.Errorf("p%x: %w: %q", n, ErrUnexpectedReply, reply)
	}
	var v uint64
	for i, b := range raw {
		v |= uint64(b) << (8 * i)
	}
	return v, nil
}

func (c *Client) SetWriteWatch(ctx context.Context, addr uint64, size int) error {
	return c.expectOK(ctx, fmt.Sprintf("Z2,%x,%x", addr, size))
}

func (c *Client) SetBreakpoint(ctx context.Context, addr uint64) error {
	return c.expectOK(ctx, fmt.Sprintf("Z0,%x,%x", addr, breakpointKind))
}

func (c *Client) ClearBreakpoint(ctx context.Context, addr uint64) error {
	return c.expectOK(ctx, fmt.Sprintf("z0,%x,%x", addr, breakpointKind))
}

func (c *Client) setRunning(v bool) {
	c.mu.Lock()
	c.running = v
	c.mu.Unlock()
}

func (c *Client) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Resume continues the target. The stop reply is collected by Next.
func (c *Client) Resume(ctx context.Context) error {
	if c.isRunning() {
		return nil
	}
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	if err := c.send("c"); err != nil {
		return err
	}
	c.setRunning(true)
	return nil
}

// Next resumes the target if needed and waits for it to stop.
func (c *Client) Next(ctx context.Context) (instrument.Event, error) {
	if err := c.Resume(ctx); err != nil {
		return instrument.Event{}, err
	}
	for {
		reply, err := c.recv(ctx)
		if err != nil {
			return instrument.Event{}, err
		}
		ev, err := parseStop(reply)
		if errors.Is(err, ErrUnexpectedReply) {
			// console output and late replies are skipped
			c.logger.Debug("ignoring packet while running", "packet", reply)
			continue
		}
		c.setRunning(false)
		return ev, err
	}
}

// Halt interrupts a running target.
func (c *Client) Halt(context.Context) error {
	return c.write([]byte{0x03})
}

// Close detaches from the target and closes the connection.
func (c *Client) Close() error {
	if c.isRunning() {
		_ = c.Halt(context.Background())
	}
	_ = c.send("D")
	err := c.conn.Close()
	<-c.done
	return err
}

// parseStop decodes a stop reply (S/T/W/X).
func parseStop(reply string) (instrument.Event, error) {
	if reply == "" {
		return instrument.Event{}, fmt.Errorf("%w: empty stop reply", ErrUnexpectedReply)
	}
	switch reply[0] {
	case 'W', 'X':
		return instrument.Event{}, ErrExited
	case 'S':
		return instrument.Event{Kind: instrument.EventHit}, nil
	case 'T':
	default:
		return instrument.Event{}, fmt.Errorf("%w: %q", ErrUnexpectedReply, reply)
	}

	ev := instrument.Event{Kind: instrument.EventHit}
	if len(reply) < 3 {
		return ev, nil
	}
	for _, field := range strings.Split(reply[3:], ";") {
		key, val, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		switch key {
		case "watch", "awatch", "rwatch":
			ev.Kind = instrument.EventTick
			if addr, err := strconv.ParseUint(val, 16, 64); err == nil {
				ev.Address = addr
			}
		}
	}
	return ev, nil
}

var namedRegisters = map[string]int{
	"sp":   13,
	"lr":   14,
	"pc":   15,
	"cpsr": 25,
}

func registerNumber(name string) (int, error) {
	if n, ok := namedRegisters[name]; ok {
		return n, nil
	}
	if strings.HasPrefix(name, "r") {
		n, err := strconv.Atoi(name[1:])
		if err == nil && n >= 0 && n <= 15 {
			return n, nil
		}
	}
	return 0, fmt.Errorf("unknown register %q", name)
}

var _ instrument.Instrumentation = (*Client)(nil)
