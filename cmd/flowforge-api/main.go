package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/try-flowforge/backend/pkg/cmd"
	"github.com/try-flowforge/backend/pkg/log"
	"github.com/try-flowforge/backend/pkg/web"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "flowforge-api",
		Usage:                 "Serve workflow definitions, executions and live execution events",
		EnableShellCompletion: true,
		Flags: append(append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:    "run-workers",
				Usage:   "Also consume the job queues in this process",
				Sources: cli.EnvVars("RUN_WORKERS"),
			},
		}, cmd.CommonFlags()...), cmd.ProviderFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("flowforge-api")
			logger.InfoContext(ctx, "Initializing FlowForge API")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.OpenRuntime(ctx, logger, cmd.RuntimeOptionsFrom(command, "flowforge-api"))
			if err != nil {
				return err
			}

			defer func() {
				err := rt.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			engine := rt.Engine(cmd.ProviderOptionsFrom(command))

			api := NewAPI(logger, web.Dependencies{
				Store:     rt.Store,
				Workflows: engine.Workflows,
				Registry:  engine.Registry,
				Jobs:      rt.Jobs,
				Tokens:    engine.Tokens,
				Events:    rt.Bus,
				Checks: map[string]web.HealthCheck{
					"redis": func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() },
				},
				Heartbeat: rt.Config.SSEHeartbeat,
			})

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return api.Start(ctx, command.Int("port"))
			})

			if command.Bool("run-workers") {
				g.Go(func() error {
					return rt.Workers(engine, nil).Run(ctx)
				})
			}

			return g.Wait()
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
