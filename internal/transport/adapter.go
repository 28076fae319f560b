// Package transport exposes an episode over MQTT: inbound orders become
// dispatcher events and step results go out as retained messages.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/dispatcher"
	"github.com/0xlouis/MarioKart8-Gym-Env/internal/episode"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// Dispatcher commands produced by inbound orders.
const (
	CommandReset  = "reset"
	CommandSetup  = "setup"
	CommandAction = "action"
)

// qos is "at least once"; every outbound message is also retained.
const qos = 1

// Config holds the broker connection settings.
type Config struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	Prefix     string
	InstanceID string
	KeepAlive  time.Duration
	Timeout    time.Duration
}

// Client is the subset of mqtt.Client the adapter uses.
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// Adapter connects one instance to the broker.
type Adapter struct {
	cfg        Config
	topics     Topics
	client     Client
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger

	activity atomic.Int64
}

// New creates an adapter backed by a paho client. The last will marks the
// instance offline; every (re)connect subscribes and marks it online.
func New(cfg Config, d *dispatcher.Dispatcher, logger *slog.Logger) *Adapter {
	a := newAdapter(cfg, nil, d, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "mk8gym-" + cfg.InstanceID
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetKeepAlive(cfg.KeepAlive).
		SetAutoReconnect(true).
		SetBinaryWill(a.topics.Status(), EncodeBool(false), qos, true).
		SetOnConnectHandler(func(mqtt.Client) { a.online() }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			a.logger.Warn("broker connection lost", "error", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	a.client = mqtt.NewClient(opts)
	return a
}

func newAdapter(cfg Config, client Client, d *dispatcher.Dispatcher, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	a := &Adapter{
		cfg:        cfg,
		topics:     NewTopics(cfg.Prefix, cfg.InstanceID),
		client:     client,
		dispatcher: d,
		logger:     logger.With("component", "transport"),
	}
	a.touch()
	return a
}

// Topics returns the topic names of this instance.
func (a *Adapter) Topics() Topics {
	return a.topics
}

// Connect dials the broker and waits for the connection.
func (a *Adapter) Connect(ctx context.Context) error {
	if err := wait(ctx, a.client.Connect()); err != nil {
		return fmt.Errorf("connect %s: %w", a.cfg.Broker, err)
	}
	a.logger.Info("connected to broker", "broker", a.cfg.Broker, "root", a.topics.Root())
	return nil
}

// Close marks the instance offline and disconnects.
func (a *Adapter) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()
	if err := a.publish(ctx, a.topics.Status(), EncodeBool(false)); err != nil {
		a.logger.Warn("publish offline status", "error", err)
	}
	a.client.Disconnect(250)
}

// LastActivity returns the time of the last message in either direction.
func (a *Adapter) LastActivity() time.Time {
	return time.Unix(0, a.activity.Load())
}

func (a *Adapter) touch() {
	a.activity.Store(time.Now().UnixNano())
}

func (a *Adapter) online() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()

	for _, topic := range []string{a.topics.Reset(), a.topics.Setup(), a.topics.Action()} {
		if err := wait(ctx, a.client.Subscribe(topic, qos, a.onMessage)); err != nil {
			a.logger.Error("subscribe failed", "topic", topic, "error", err)
		}
	}
	if err := a.publish(ctx, a.topics.Status(), EncodeBool(true)); err != nil {
		a.logger.Error("publish online status", "error", err)
	}
}

func (a *Adapter) onMessage(_ mqtt.Client, m mqtt.Message) {
	a.touch()

	var ev dispatcher.Event
	switch topic := m.Topic(); topic {
	case a.topics.Reset():
		ev = dispatcher.NewEvent(CommandReset, "", m.Payload())
	case a.topics.Action():
		ev = dispatcher.NewEvent(CommandAction, "", m.Payload())
	default:
		key, ok := a.topics.SetupKey(topic)
		if !ok {
			a.logger.Debug("ignoring message", "topic", topic)
			return
		}
		ev = dispatcher.NewEvent(CommandSetup, key, m.Payload())
	}

	if _, err := a.dispatcher.Dispatch(ev); err != nil {
		a.logger.Warn("order rejected", "command", ev.Command, "key", ev.Key, "error", err)
	}
}

// PublishStatus sets one status/<name> flag.
func (a *Adapter) PublishStatus(ctx context.Context, s episode.Status, v bool) error {
	return a.publish(ctx, a.topics.StatusLeaf(string(s)), EncodeBool(v))
}

// PublishStep sends the step leaves and then the step counter, which
// agents watch as the signal that the leaves are up to date.
func (a *Adapter) PublishStep(ctx context.Context, r episode.StepResult) error {
	tokens := []mqtt.Token{
		a.send(a.topics.StepLeaf("frame"), r.Frame),
		a.send(a.topics.StepLeaf("terminal"), EncodeBool(r.Terminal)),
		a.send(a.topics.StepLeaf("terminated_by_timeout"), EncodeBool(r.TimedOut)),
		a.send(a.topics.StepLeaf("is_race_finish"), EncodeBool(r.RaceFinished)),
	}
	if r.Mode == core.RunTraining && r.HasSnapshot {
		for _, name := range core.TelemetryFields {
			v, ok := r.Snapshot.Values[name]
			if !ok {
				continue
			}
			tokens = append(tokens, a.send(a.topics.StepLeaf(name), v.Encode()))
		}
	}
	tokens = append(tokens, a.send(a.topics.Step(), EncodeStep(r.Step)))

	var errs []error
	for _, t := range tokens {
		if err := wait(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Adapter) send(topic string, payload []byte) mqtt.Token {
	a.touch()
	return a.client.Publish(topic, qos, true, payload)
}

func (a *Adapter) publish(ctx context.Context, topic string, payload []byte) error {
	if err := wait(ctx, a.send(topic, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func wait(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Commands is the orchestrator surface driven by inbound orders.
type Commands interface {
	Reset()
	Configure(key core.SetupKey, value int32) error
	Act(a core.Action)
}

// RegisterHandlers routes the reset, setup and action commands to c.
// A rejected setup is returned as an error and never reaches the running
// episode.
func RegisterHandlers(d *dispatcher.Dispatcher, c Commands) {
	d.Register(CommandReset, func(dispatcher.Event) (any, error) {
		c.Reset()
		return nil, nil
	}, dispatcher.Logged())

	d.Register(CommandSetup, func(e dispatcher.Event) (any, error) {
		v, err := DecodeSetup(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("setup %s: %w", e.Key, err)
		}
		if err := c.Configure(core.SetupKey(e.Key), v); err != nil {
			return nil, err
		}
		return v, nil
	})

	d.Register(CommandAction, func(e dispatcher.Event) (any, error) {
		act, err := DecodeAction(e.Payload)
		if err != nil {
			return nil, err
		}
		c.Act(act)
		return nil, nil
	})
}

var _ episode.Publisher = (*Adapter)(nil)
