package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MQTTClient is the part of mqtt.Client the sink uses.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

type MQTTConfig struct {
	Broker      string // host:port, or a full tcp:// / ssl:// URL
	ClientID    string
	TopicPrefix string
	QoS         byte
	Username    string
	Password    string
}

// MQTTSink republishes notifications to a broker under
// <TopicPrefix>/<name>. Publish only enqueues; a background goroutine
// talks to the broker so a slow broker never stalls the monitor loop.
type MQTTSink struct {
	client MQTTClient
	prefix string
	qos    byte
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Notification
	done   chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

type MQTTStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

const (
	mqttQueueSize      = 256
	mqttPublishTimeout = 2 * time.Second
)

// DialMQTT connects to the broker and returns a running sink.
func DialMQTT(cfg MQTTConfig, logger zerolog.Logger) (*MQTTSink, error) {
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "portunus-attendance-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Str("broker", broker).Str("client_id", clientID).Msg("mqtt connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str("broker", broker).Msg("mqtt connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, errors.New("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return NewMQTTSink(client, cfg.TopicPrefix, cfg.QoS, logger), nil
}

// NewMQTTSink wraps an already connected client.
func NewMQTTSink(client MQTTClient, topicPrefix string, qos byte, logger zerolog.Logger) *MQTTSink {
	if topicPrefix == "" {
		topicPrefix = "portunus/attendance"
	}
	s := &MQTTSink{
		client: client,
		prefix: strings.TrimSuffix(topicPrefix, "/"),
		qos:    qos,
		logger: logger,
		queue:  make(chan Notification, mqttQueueSize),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *MQTTSink) Publish(n Notification) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- n:
	default:
		s.dropped.Add(1)
	}
}

// Topic returns the topic a notification is published on.
func (s *MQTTSink) Topic(name Name) string {
	return s.prefix + "/" + string(name)
}

func (s *MQTTSink) Stats() MQTTStats {
	return MQTTStats{
		Published: s.published.Load(),
		Dropped:   s.dropped.Load(),
		Failed:    s.failed.Load(),
	}
}

// Close flushes queued notifications and disconnects.
func (s *MQTTSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}

func (s *MQTTSink) loop() {
	defer close(s.done)
	for n := range s.queue {
		if err := s.send(n); err != nil {
			s.failed.Add(1)
			s.logger.Debug().Err(err).Str("event", string(n.Name)).Msg("mqtt publish failed")
			continue
		}
		s.published.Add(1)
	}
}

func (s *MQTTSink) send(n Notification) error {
	if !s.client.IsConnected() {
		return errors.New("mqtt not connected")
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// Device health is retained so a late subscriber sees the current state.
	retained := n.Name == ConnectionStatus

	token := s.client.Publish(s.Topic(n.Name), s.qos, retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errors.New("publish timeout")
	}
	return token.Error()
}
