// Package emitter publishes rep events to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/squatcoach/internal/exercise"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt not connected")

const (
	queueSize      = 64
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Config configures the MQTT connection.
type Config struct {
	// Broker is host:port or a full URL such as tcp://localhost:1883.
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// MQTTEmitter publishes each event as JSON to <prefix>/<event type>.
// HandleEvent only queues; a single goroutine does the publishing.
type MQTTEmitter struct {
	cfg    Config
	client mqtt.Client
	log    *slog.Logger

	queue chan exercise.Event
	done  chan struct{}
	once  sync.Once

	mu        sync.RWMutex
	published map[string]uint64
	dropped   uint64
	errors    uint64
}

// New creates an emitter around client. Use Connect to build a client from
// Config.
func New(cfg Config, client mqtt.Client, log *slog.Logger) *MQTTEmitter {
	if log == nil {
		log = slog.Default()
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "squatcoach"
	}
	e := &MQTTEmitter{
		cfg:       cfg,
		client:    client,
		log:       log,
		queue:     make(chan exercise.Event, queueSize),
		done:      make(chan struct{}),
		published: make(map[string]uint64),
	}
	go e.loop()
	return e
}

// Connect dials the broker and returns a running emitter.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*MQTTEmitter, error) {
	if log == nil {
		log = slog.Default()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		log.Info("mqtt connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	log.Info("connecting to mqtt broker", "broker", cfg.Broker)

	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		return nil, fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return New(cfg, client, log), nil
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// Topic returns the topic an event type is published to.
func (e *MQTTEmitter) Topic(t exercise.EventType) string {
	return e.cfg.TopicPrefix + "/" + string(t)
}

// HandleEvent queues e for publishing. When the queue is full the event is
// dropped and counted.
func (e *MQTTEmitter) HandleEvent(ev exercise.Event) {
	select {
	case <-e.done:
		return
	default:
	}

	select {
	case e.queue <- ev:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		e.log.Warn("mqtt queue full, dropping event", "type", ev.Type)
	}
}

func (e *MQTTEmitter) loop() {
	for {
		select {
		case ev := <-e.queue:
			if err := e.Publish(ev); err != nil {
				e.log.Warn("mqtt publish", "type", ev.Type, "error", err)
			}
		case <-e.done:
			return
		}
	}
}

// Publish sends one event synchronously.
func (e *MQTTEmitter) Publish(ev exercise.Event) error {
	if !e.client.IsConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		e.countError()
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := e.Topic(ev.Type)
	token := e.client.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.log.Debug("event published", "topic", topic, "size", len(payload))
	return nil
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

// Close stops the publisher and disconnects from the broker. Queued events
// that were not yet sent are discarded.
func (e *MQTTEmitter) Close() {
	e.once.Do(func() {
		close(e.done)
		if e.client.IsConnected() {
			e.client.Disconnect(250)
			e.log.Info("mqtt disconnected")
		}
	})
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Dropped   uint64
	Errors    uint64
}

// Stats returns emitter statistics.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.client.IsConnected(),
		Published: published,
		Dropped:   e.dropped,
		Errors:    e.errors,
	}
}
