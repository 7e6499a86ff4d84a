package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/oshokin/camwatch/internal/config"
	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/sink"
)

const (
	// publishTimeout bounds one publish including the server acknowledgment.
	publishTimeout = 5 * time.Second

	// eventSource identifies camwatch as the CloudEvent producer.
	eventSource = "camwatch/monitor"

	// eventTypePrefix prefixes the CloudEvent type; the new status is appended.
	eventTypePrefix = "io.camwatch.device."
)

// ErrPublishFailed is returned when JetStream does not acknowledge an event.
var ErrPublishFailed = errors.New("nats: publish failed")

// CloudEvent is a CloudEvents 1.0 envelope in structured JSON mode.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	Subject         string          `json:"subject"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            sink.Transition `json:"data"`
}

// publisher is the part of jetstream.JetStream the sink uses.
type publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Sink publishes transitions to a JetStream stream.
type Sink struct {
	js      publisher
	conn    *nats.Conn
	subject string
	newID   func() string
}

// Connect dials NATS and makes sure the stream exists.
func Connect(ctx context.Context, cfg config.NATSConfig) (*Sink, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("camwatch"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WarnKV(ctx, "NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.InfoKV(ctx, "NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if _, err = js.Stream(ctx, cfg.Stream); err != nil {
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     cfg.Stream,
			Subjects: []string{cfg.Subject + ".>"},
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create or get stream %s: %w", cfg.Stream, err)
		}
	}

	logger.InfoKV(ctx, "Connected to NATS JetStream", "url", conn.ConnectedUrl(), "stream", cfg.Stream)

	s := newSink(js, cfg.Subject)
	s.conn = conn

	return s, nil
}

func newSink(js publisher, subject string) *Sink {
	return &Sink{
		js:      js,
		subject: strings.TrimSuffix(subject, "."),
		newID:   uuid.NewString,
	}
}

// Name identifies the sink in logs.
func (s *Sink) Name() string {
	return "nats"
}

// Publish wraps the transition in a CloudEvent and waits for the stream acknowledgment.
func (s *Sink) Publish(ctx context.Context, event liveness.TransitionEvent) error {
	cloudEvent := CloudEvent{
		SpecVersion:     "1.0",
		ID:              s.newID(),
		Source:          eventSource,
		Type:            eventTypePrefix + strings.ToLower(string(event.To)),
		Subject:         event.DeviceID,
		Time:            event.OccurredAt.UTC(),
		DataContentType: "application/json",
		Data:            sink.NewTransition(event),
	}

	data, err := json.Marshal(cloudEvent)
	if err != nil {
		return fmt.Errorf("%w: encode event: %w", ErrPublishFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ack, err := s.js.Publish(ctx, Subject(s.subject, event.DeviceID), data, jetstream.WithMsgID(cloudEvent.ID))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	logger.DebugKV(ctx, "Published transition", "event_id", cloudEvent.ID, "stream", ack.Stream, "seq", ack.Sequence)

	return nil
}

// Close drains the connection.
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}

	return s.conn.Drain()
}

// Subject returns the subject events of a device are published on.
func Subject(prefix, deviceID string) string {
	return prefix + "." + sink.Segment(deviceID)
}
