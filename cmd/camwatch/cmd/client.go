package cmd

import (
	"context"
	"fmt"

	"github.com/oshokin/camwatch/internal/config"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/service/common"
)

// resolveAddress picks the control API address: flag, then configuration, then default.
func resolveAddress(ctx context.Context) string {
	if serverAddress != "" {
		return serverAddress
	}

	settings, err := config.Load(configPath)
	if err != nil {
		logger.DebugKV(ctx, "Using default control address", "reason", err)
		return config.DefaultGRPCAddress
	}

	return settings.GRPC.ListenAddress
}

// dial connects to the running monitor.
func dial(ctx context.Context) (*common.Client, error) {
	opts := []common.Option{common.WithCallTimeout(callTimeout)}

	// The actor is only used for the audit log; commands work without it.
	if actor, err := common.DetectActor(); err == nil {
		opts = append(opts, common.WithActor(actor))
	}

	client, err := common.Dial(ctx, resolveAddress(ctx), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to monitor: %w", err)
	}

	return client, nil
}
