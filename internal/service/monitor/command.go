package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	api "github.com/oshokin/camwatch/internal/api/grpc/monitor"
	"github.com/oshokin/camwatch/internal/config"
	"github.com/oshokin/camwatch/internal/engine"
	"github.com/oshokin/camwatch/internal/logger"
	"github.com/oshokin/camwatch/internal/notify"
	"github.com/oshokin/camwatch/internal/probe"
	"github.com/oshokin/camwatch/internal/repository/state"
	"github.com/oshokin/camwatch/internal/repository/subscriber"
	"github.com/oshokin/camwatch/internal/scheduler"
	"github.com/oshokin/camwatch/internal/service/instance"
	"github.com/oshokin/camwatch/internal/telegram"
)

// Options controls the monitor process.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress overrides the gRPC listen address from the configuration.
	ListenAddress string
	// LogLevel overrides the log level from the configuration.
	LogLevel string
}

// Run loads the configuration, starts monitoring and blocks until ctx is
// cancelled. The cycle in flight finishes before Run returns.
//
//nolint:funlen // Wiring reads best as one straight sequence.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "camwatch")

	// Load settings from configuration file.
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Apply command line overrides.
	if opts.LogLevel != "" {
		settings.Log.Level = opts.LogLevel
	}

	if opts.ListenAddress != "" {
		settings.GRPC.ListenAddress = opts.ListenAddress
	}

	if err = logger.Configure(settings.Log.Level, settings.Log.Format); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	defer logger.Sync()

	// Only one monitor may own the state files.
	guard, err := instance.Acquire(settings.Storage.LockFile)
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}

	defer func() {
		if releaseErr := guard.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Failed to release instance lock", "error", releaseErr)
		}
	}()

	// Open persistence and restore the last state.
	store, err := openStorage(ctx, settings.Storage)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := store.close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close storage", "error", closeErr)
		}
	}()

	// An unusable state is logged by LoadOrEmpty and never stops the monitor.
	initial, _ := state.LoadOrEmpty(ctx, store.state)

	// Build the probing pipeline.
	prober, err := probe.New(settings.Probe, settings.ProbeTimeout())
	if err != nil {
		return fmt.Errorf("create prober: %w", err)
	}

	eng, err := engine.New(engine.Options{
		Prober:      prober,
		Thresholds:  settings.Thresholds(),
		Timeout:     settings.ProbeTimeout(),
		Concurrency: settings.Probe.Concurrency,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	// Connect notification channels.
	location, err := config.LoadLocation(settings.Telegram.Timezone)
	if err != nil {
		return fmt.Errorf("load time zone: %w", err)
	}

	sinks, closers := connectSinks(ctx, settings)
	defer closeAll(ctx, closers)

	var (
		messenger notify.Messenger = notify.LogMessenger{}
		botAPI    *tgbotapi.BotAPI
	)

	if settings.Telegram.Enabled {
		botAPI, err = telegram.Connect(ctx, settings.Telegram.Token)
		if err != nil {
			return fmt.Errorf("connect telegram: %w", err)
		}

		messenger = telegram.NewMessenger(botAPI)
	}

	dispatcher := notify.NewDispatcher(notify.Options{
		Messenger:  messenger,
		Sinks:      sinks,
		SenderName: settings.Telegram.SenderName,
		Location:   location,
	})

	sched, err := scheduler.New(scheduler.Options{
		Engine:   eng,
		Store:    store.state,
		Registry: store.registry,
		Notifier: dispatcher,
		Devices:  settings.DeviceList(),
		Interval: settings.PollInterval(),
		Initial:  initial,
	})
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	svc := newService(sched, eng, store.registry)

	var heartbeat *scheduler.Heartbeat

	if settings.Heartbeat.Enabled {
		heartbeat, err = newHeartbeat(settings.Heartbeat, sched, store.registry, dispatcher)
		if err != nil {
			return err
		}
	}

	var bot *telegram.Bot

	if botAPI != nil {
		bot, err = telegram.NewBot(telegram.Options{
			API:      botAPI,
			Registry: store.registry,
			Monitor:  svc,
			Notifier: dispatcher,
			Admins:   settings.Telegram.AdminChatIDs,
		})
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
	}

	// Start every component; the first failure stops the others.
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return sched.Run(groupCtx)
	})

	if heartbeat != nil {
		group.Go(func() error {
			return heartbeat.Run(groupCtx)
		})
	}

	// Control surfaces may fail on their own; monitoring keeps running without them.
	if bot != nil {
		group.Go(controlSurface(groupCtx, "telegram", func() error {
			return bot.Run(groupCtx, telegram.Listen(groupCtx, botAPI))
		}))
	}

	if settings.GRPC.ListenAddress != "" {
		group.Go(controlSurface(groupCtx, "grpc", func() error {
			return serveGRPC(groupCtx, settings.GRPC.ListenAddress, svc)
		}))
	}

	logger.InfoKV(ctx, "Monitor started",
		"devices", len(settings.Devices),
		"probe", settings.Probe.Method,
		"storage", settings.Storage.Backend,
		"telegram", settings.Telegram.Enabled,
	)

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Monitor stopped")

	return nil
}

// controlSurface logs the failure of run instead of returning it to the group.
func controlSurface(ctx context.Context, name string, run func() error) func() error {
	return func() error {
		if err := run(); err != nil {
			logger.ErrorKV(ctx, "Control surface failed, monitoring continues", "surface", name, "error", err)
		}

		return nil
	}
}

// newHeartbeat builds the daily summary from its configuration.
func newHeartbeat(
	cfg config.HeartbeatConfig,
	source scheduler.StateSource,
	registry subscriber.Registry,
	notifier scheduler.Notifier,
) (*scheduler.Heartbeat, error) {
	hour, minute, err := config.ParseClock(cfg.Time)
	if err != nil {
		return nil, fmt.Errorf("parse heartbeat time: %w", err)
	}

	location, err := config.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load heartbeat time zone: %w", err)
	}

	return scheduler.NewHeartbeat(scheduler.HeartbeatOptions{
		Source:   source,
		Registry: registry,
		Notifier: notifier,
		Hour:     hour,
		Minute:   minute,
		Location: location,
	}), nil
}

// serveGRPC runs the control surface until ctx is cancelled.
func serveGRPC(ctx context.Context, listenAddress string, svc api.Service) error {
	// Setup TCP listener for gRPC server.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	// Create and configure gRPC server with the monitor and health services.
	grpcServer := grpc.NewServer()
	api.RegisterMonitorServiceServer(grpcServer, api.NewServer(svc))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	logger.InfoKV(ctx, "Control API listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "GRPC server stopped")

	return nil
}
