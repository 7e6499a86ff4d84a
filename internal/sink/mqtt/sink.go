package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/camwatch/internal/config"
	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/sink"
)

const (
	// connectTimeout is the maximum time to wait for the initial connection.
	connectTimeout = 10 * time.Second

	// publishTimeout is the maximum time to wait for a publish acknowledgment.
	publishTimeout = 5 * time.Second

	// disconnectQuiesce is how long pending work may take on disconnect, in milliseconds.
	disconnectQuiesce = 1000

	// keepAlive is the keepalive interval of the connection.
	keepAlive = 60 * time.Second

	// maxReconnectInterval caps the reconnect backoff.
	maxReconnectInterval = 2 * time.Minute

	statusOnline  = "online"
	statusOffline = "offline"
)

var (
	// ErrNotConnected is returned when publishing while the broker is unreachable.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")
)

// client is the part of the paho client the sink uses.
type client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Sink publishes transitions to MQTT.
type Sink struct {
	client client
	prefix string
	qos    byte
}

// Connect dials the broker and announces the monitor as online.
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Sink, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetMaxReconnectInterval(maxReconnectInterval).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive).
		SetWill(statusTopic(cfg.TopicPrefix), statusOffline, byte(cfg.QoS), true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.WarnKV(ctx, "MQTT connection lost", "error", err)
	})

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		// Re-announce after every reconnect; the broker published the last will meanwhile.
		c.Publish(statusTopic(cfg.TopicPrefix), byte(cfg.QoS), true, statusOnline)
	})

	c := pahomqtt.NewClient(opts)

	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	logger.InfoKV(ctx, "Connected to MQTT broker", "broker", cfg.Broker)

	return newSink(c, cfg.TopicPrefix, byte(cfg.QoS)), nil
}

func newSink(c client, prefix string, qos byte) *Sink {
	return &Sink{
		client: c,
		prefix: prefix,
		qos:    qos,
	}
}

// Name identifies the sink in logs.
func (s *Sink) Name() string {
	return "mqtt"
}

// Publish sends the transition retained on the device status topic.
func (s *Sink) Publish(ctx context.Context, event liveness.TransitionEvent) error {
	payload, err := sink.NewTransition(event).Marshal()
	if err != nil {
		return fmt.Errorf("%w: encode payload: %w", ErrPublishFailed, err)
	}

	return s.publish(ctx, DeviceTopic(s.prefix, event.DeviceID), payload, true)
}

// Close announces the monitor as offline and disconnects.
func (s *Sink) Close() error {
	if s.client.IsConnected() {
		_ = s.publish(context.Background(), statusTopic(s.prefix), []byte(statusOffline), true)
	}

	s.client.Disconnect(disconnectQuiesce)

	return nil
}

func (s *Sink) publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if !s.client.IsConnected() {
		return ErrNotConnected
	}

	token := s.client.Publish(topic, s.qos, retained, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrPublishFailed, ctx.Err())
	case <-time.After(publishTimeout):
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// DeviceTopic returns the retained status topic of a device.
func DeviceTopic(prefix, deviceID string) string {
	return prefix + "/devices/" + sink.Segment(deviceID) + "/status"
}

func statusTopic(prefix string) string {
	return prefix + "/status"
}
