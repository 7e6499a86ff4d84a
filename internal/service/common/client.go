//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/camwatch/internal/api/grpc/monitor"
	"github.com/oshokin/camwatch/internal/config"
	"github.com/oshokin/camwatch/internal/domain/liveness"
)

// Client wraps the gRPC MonitorService client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the monitor.
	conn *grpc.ClientConn
	// api is the MonitorService client.
	api *monitor.MonitorServiceClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// actor is attached to mutating calls when set.
	actor string
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithActor reports the actor to the monitor on mutating calls.
func WithActor(actor Actor) Option {
	return func(c *Client) {
		c.actor = actor.String()
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial establishes a gRPC connection to the monitor.
// Note: this uses insecure transport credentials; the control API listens on
// loopback by default.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial monitor: %w", err)
	}

	client := newClient(conn, opts...)
	client.conn = conn

	return client, nil
}

func newClient(cc grpc.ClientConnInterface, opts ...Option) *Client {
	client := &Client{
		api:         monitor.NewMonitorServiceClient(cc),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// GetStatus retrieves every device with its liveness record and the time of
// the last completed cycle.
func (c *Client) GetStatus(ctx context.Context) ([]liveness.DeviceStatus, time.Time, error) {
	response, err := c.GetStatusRaw(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}

	devices, lastCycleAt, err := monitor.FromStatusStruct(response)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("decode status: %w", err)
	}

	return devices, lastCycleAt, nil
}

// GetStatusRaw retrieves the status document as returned by the server.
func (c *Client) GetStatusRaw(ctx context.Context) (*structpb.Struct, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.GetStatus(callCtx, new(emptypb.Empty))
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}

	return response, nil
}

// ListSubscribers retrieves subscribers and pending access requests.
func (c *Client) ListSubscribers(ctx context.Context) (*structpb.Struct, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.ListSubscribers(callCtx, new(emptypb.Empty))
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	return response, nil
}

// AddSubscriber subscribes a chat and returns the outcome.
func (c *Client) AddSubscriber(ctx context.Context, chatID int64) (string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.AddSubscriber(c.withActor(callCtx), wrapperspb.Int64(chatID))
	if err != nil {
		return "", fmt.Errorf("add subscriber: %w", err)
	}

	return response.GetValue(), nil
}

// RemoveSubscriber unsubscribes a chat and returns the outcome.
func (c *Client) RemoveSubscriber(ctx context.Context, chatID int64) (string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.RemoveSubscriber(c.withActor(callCtx), wrapperspb.Int64(chatID))
	if err != nil {
		return "", fmt.Errorf("remove subscriber: %w", err)
	}

	return response.GetValue(), nil
}

// ProbeDevice probes one device by ID or name and reports whether it answered.
func (c *Client) ProbeDevice(ctx context.Context, key string) (liveness.Device, bool, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	response, err := c.api.ProbeDevice(callCtx, wrapperspb.String(key))
	if err != nil {
		return liveness.Device{}, false, fmt.Errorf("probe device: %w", err)
	}

	fields := response.GetFields()
	device := liveness.Device{
		ID:      fields["id"].GetStringValue(),
		Name:    fields["name"].GetStringValue(),
		Address: fields["address"].GetStringValue(),
	}

	return device, fields["reachable"].GetBoolValue(), nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

func (c *Client) withActor(ctx context.Context) context.Context {
	if c.actor == "" {
		return ctx
	}

	return metadata.AppendToOutgoingContext(ctx, monitor.ActorMetadataKey, c.actor)
}
