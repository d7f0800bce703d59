package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Config configures a RealPublisher.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	// BufferSize is the number of messages kept while the broker is unreachable.
	BufferSize int
	// ConnectWait bounds how long NewRealPublisher blocks for the first
	// connection. Connecting continues in the background afterwards.
	ConnectWait time.Duration
	// RetryInterval is the pause between connection attempts.
	RetryInterval time.Duration
}

// Defaults used for zero Config fields.
const (
	DefaultBufferSize    = 100
	DefaultConnectWait   = 2 * time.Second
	DefaultRetryInterval = 5 * time.Second
)

const publishTimeout = 5 * time.Second

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	logger *slog.Logger

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealPublisher creates a publisher for the given broker. The broker is
// marked with a retained OFFLINE will message on the system topic.
//
// An unreachable broker is not an error: the client keeps retrying in the
// background, messages are buffered meanwhile and replayed once connected.
func NewRealPublisher(cfg Config, logger *slog.Logger) (*RealPublisher, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "button-kbd"
	}
	if cfg.ConnectWait <= 0 {
		cfg.ConnectWait = DefaultConnectWait
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	p := newPublisher(cfg, logger)

	will, err := FormatSystemPayload(SystemEvent{Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will Payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(cfg.RetryInterval).
		SetBinaryWill(p.topics.System, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.logger.Warn("mqtt connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(cfg.ConnectWait) {
		p.logger.Warn("mqtt broker not reachable yet, buffering until connected", "broker", cfg.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		p.client.Disconnect(0)
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newPublisher(cfg Config, logger *slog.Logger) *RealPublisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.BufferSize
	if size == 0 {
		size = DefaultBufferSize
	}
	return &RealPublisher{
		topics: TopicsFor(cfg.TopicPrefix),
		logger: logger,
		buffer: newRingBuffer(size),
	}
}

// Publish sends a press event to the MQTT broker.
func (p *RealPublisher) Publish(event PressEvent) error {
	msg, err := PressMessage(p.topics, event)
	if err != nil {
		return err
	}
	return p.send(msg)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	msg, err := SystemMessage(p.topics, event)
	if err != nil {
		return err
	}
	return p.send(msg)
}

func (p *RealPublisher) send(msg Message) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		if p.buffer.push(msg) {
			p.logger.Warn("mqtt buffer full, dropping oldest", "capacity", p.buffer.capacity)
		}
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	return p.publish(msg)
}

func (p *RealPublisher) publish(msg Message) error {
	token := p.client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", msg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}

// onConnect replays messages buffered while the connection was down.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	pending := p.buffer.drainAll()
	p.mu.Unlock()

	if len(pending) > 0 {
		p.logger.Info("mqtt reconnected, replaying buffered messages", "count", len(pending))
	}
	for _, msg := range pending {
		if err := p.publish(msg); err != nil {
			p.logger.Warn("mqtt replay failed", "error", err)
		}
	}
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker, abandoning any connection attempt in
// progress. Buffered messages are discarded.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
