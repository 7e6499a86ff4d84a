package monitor

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/oshokin/camwatch/internal/domain/liveness"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/repository/subscriber"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	Overview(ctx context.Context) ([]liveness.DeviceStatus, time.Time)
	Subscribers(ctx context.Context) ([]liveness.Subscriber, []liveness.PendingRequest, error)
	AddSubscriber(ctx context.Context, chatID int64) (subscriber.AddResult, error)
	RemoveSubscriber(ctx context.Context, chatID int64) (subscriber.RemoveResult, error)
	ProbeDevice(ctx context.Context, key string) (liveness.Device, bool, error)
}

// Server implements the MonitorService gRPC API.
type Server struct {
	// service provides the business logic behind every RPC.
	service Service
}

var _ MonitorServiceServer = (*Server)(nil)

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// GetStatus returns every device with its liveness record.
func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	devices, lastCycleAt := s.service.Overview(ctx)

	result, err := toStatusStruct(devices, lastCycleAt)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode status")
	}

	return result, nil
}

// ListSubscribers returns subscribers and pending access requests.
func (s *Server) ListSubscribers(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	subscribers, pending, err := s.service.Subscribers(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to read subscribers")
	}

	result, err := toSubscribersStruct(subscribers, pending)
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode subscribers")
	}

	return result, nil
}

// AddSubscriber subscribes a chat.
func (s *Server) AddSubscriber(ctx context.Context, req *wrapperspb.Int64Value) (*wrapperspb.StringValue, error) {
	if req.GetValue() == 0 {
		return nil, status.Error(codes.InvalidArgument, "chat id is required")
	}

	ctx = withActor(ctx)

	result, err := s.service.AddSubscriber(ctx, req.GetValue())
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to persist subscriber")
	}

	return wrapperspb.String(string(result)), nil
}

// RemoveSubscriber unsubscribes a chat.
func (s *Server) RemoveSubscriber(ctx context.Context, req *wrapperspb.Int64Value) (*wrapperspb.StringValue, error) {
	if req.GetValue() == 0 {
		return nil, status.Error(codes.InvalidArgument, "chat id is required")
	}

	ctx = withActor(ctx)

	result, err := s.service.RemoveSubscriber(ctx, req.GetValue())
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to persist subscriber")
	}

	return wrapperspb.String(string(result)), nil
}

// ProbeDevice probes one device now without touching the monitor state.
func (s *Server) ProbeDevice(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "device is required")
	}

	device, reachable, err := s.service.ProbeDevice(ctx, req.GetValue())
	if err != nil {
		if errors.Is(err, liveness.ErrUnknownDevice) {
			return nil, status.Errorf(codes.NotFound, "device %q is not configured", req.GetValue())
		}

		return nil, status.Error(codes.Internal, "unable to probe device")
	}

	result, err := structpb.NewStruct(map[string]any{
		"id":        device.ID,
		"name":      device.Name,
		"address":   device.Address,
		"reachable": reachable,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "unable to encode probe result")
	}

	return result, nil
}

// withActor adds the caller reported in the request metadata to the log context.
func withActor(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}

	if values := md.Get(ActorMetadataKey); len(values) > 0 {
		return logger.WithKV(ctx, "actor", values[0])
	}

	return ctx
}
