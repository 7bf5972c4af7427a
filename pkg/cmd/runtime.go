package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	redis "github.com/redis/go-redis/v9"
	"github.com/try-flowforge/backend/pkg/config"
	"github.com/try-flowforge/backend/pkg/eventbus"
	"github.com/try-flowforge/backend/pkg/otelhelper"
	"github.com/try-flowforge/backend/pkg/persistence"
	"github.com/try-flowforge/backend/pkg/queue"
	"go.opentelemetry.io/otel/trace"
)

// RuntimeOptions are the connection settings shared by every binary.
type RuntimeOptions struct {
	ServiceName  string
	ConfigPath   string
	DatabaseURL  string
	RedisURL     string
	EventBus     string
	KafkaBrokers string
	Tracing      bool
}

// Runtime holds the long-lived connections of a process.
type Runtime struct {
	Config config.Config
	Store  persistence.Persistence
	Redis  *redis.Client
	Jobs   *queue.Client
	Bus    *eventbus.WatermillEventBus
	Tracer trace.Tracer

	closers []func(ctx context.Context) error
	logger  *slog.Logger
}

// OpenRuntime connects to every backing service. On error the connections
// opened so far are closed.
func OpenRuntime(ctx context.Context, logger *slog.Logger, opts RuntimeOptions) (*Runtime, error) {
	rt := &Runtime{logger: logger, Tracer: otelhelper.NoopTracer()}

	err := rt.open(ctx, opts)
	if err != nil {
		closeErr := rt.Close(ctx)

		return nil, errors.Join(err, closeErr)
	}

	return rt, nil
}

func (rt *Runtime) open(ctx context.Context, opts RuntimeOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	rt.Config = cfg

	if opts.Tracing {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, opts.ServiceName)
		if err != nil {
			return fmt.Errorf("failed to start tracing: %w", err)
		}

		rt.Tracer = tracer
		rt.closers = append(rt.closers, shutdown)
	}

	store, err := NewPersistence(ctx, rt.logger, opts.DatabaseURL)
	if err != nil {
		return err
	}

	rt.Store = store
	rt.closers = append(rt.closers, store.Close)

	client, err := NewRedis(ctx, opts.RedisURL)
	if err != nil {
		return err
	}

	rt.Redis = client
	rt.Jobs = queue.NewClient(client, rt.logger)
	rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })

	bus, err := NewEventBus(opts.EventBus, opts.KafkaBrokers, rt.logger)
	if err != nil {
		return err
	}

	rt.Bus = bus
	rt.closers = append(rt.closers, func(context.Context) error { return bus.Close() })

	return nil
}

// Close releases connections in reverse opening order.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error

	for i := len(rt.closers) - 1; i >= 0; i-- {
		err := rt.closers[i](ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}

	rt.closers = nil

	return errors.Join(errs...)
}
