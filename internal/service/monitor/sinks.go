package monitor

import (
	"context"
	"io"

	"github.com/oshokin/camwatch/internal/config"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/notify"
	"github.com/oshokin/camwatch/internal/sink/mqtt"
	"github.com/oshokin/camwatch/internal/sink/nats"
)

// connectSinks connects the enabled event sinks. A sink that cannot connect is
// logged and skipped: monitoring works without it.
func connectSinks(ctx context.Context, cfg *config.Config) ([]notify.EventSink, []io.Closer) {
	var (
		sinks   []notify.EventSink
		closers []io.Closer
	)

	if cfg.MQTT.Enabled {
		sink, err := mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			logger.ErrorKV(ctx, "MQTT sink disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			logger.InfoKV(ctx, "MQTT sink connected", "broker", cfg.MQTT.Broker)

			sinks = append(sinks, sink)
			closers = append(closers, sink)
		}
	}

	if cfg.NATS.Enabled {
		sink, err := nats.Connect(ctx, cfg.NATS)
		if err != nil {
			logger.ErrorKV(ctx, "NATS sink disabled", "url", cfg.NATS.URL, "error", err)
		} else {
			logger.InfoKV(ctx, "NATS sink connected", "url", cfg.NATS.URL, "stream", cfg.NATS.Stream)

			sinks = append(sinks, sink)
			closers = append(closers, sink)
		}
	}

	return sinks, closers
}

// closeAll closes every closer and logs failures.
func closeAll(ctx context.Context, closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.WarnKV(ctx, "Failed to close sink", "error", err)
		}
	}
}
