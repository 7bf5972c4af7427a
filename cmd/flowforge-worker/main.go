package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/try-flowforge/backend/pkg/cmd"
	"github.com/try-flowforge/backend/pkg/log"
	"github.com/try-flowforge/backend/pkg/scheduler"
	"github.com/try-flowforge/backend/pkg/worker"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func main() {
	command := &cli.Command{
		Name:                  "flowforge-worker",
		EnableShellCompletion: true,
		Usage:                 "Consume the job queues and execute workflows",
		Flags: append(append([]cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.BoolFlag{
				Name:    "with-scheduler",
				Usage:   "Also run the time block scheduler in this process",
				Sources: cli.EnvVars("WITH_SCHEDULER"),
			},
		}, cmd.CommonFlags()...), cmd.ProviderFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("flowforge-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing FlowForge Worker")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.OpenRuntime(ctx, logger, cmd.RuntimeOptionsFrom(command, "flowforge-worker"))
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

			g, ctx := errgroup.WithContext(ctx)

			var unscheduler worker.Unscheduler

			if command.Bool("with-scheduler") {
				sched := scheduler.New(rt.Store.TimeBlocks(), rt.Jobs, scheduler.Options{
					SyncInterval: rt.Config.SchedulerSyncInterval,
				}, logger)
				unscheduler = sched

				g.Go(func() error {
					return sched.Run(ctx)
				})
			}

			g.Go(func() error {
				return rt.Workers(engine, unscheduler).Run(ctx)
			})

			err = g.Wait()
			logger.InfoContext(ctx, "FlowForge Worker stopped")

			return err
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
