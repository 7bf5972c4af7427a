package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/try-flowforge/backend/pkg/cmd"
	"github.com/try-flowforge/backend/pkg/log"
	"github.com/try-flowforge/backend/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "flowforge-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Fire trigger jobs for active time blocks",
		Flags:                 cmd.CommonFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("flowforge-scheduler")
			logger.InfoContext(ctx, "Initializing FlowForge Scheduler")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := cmd.OpenRuntime(ctx, logger, cmd.RuntimeOptionsFrom(command, "flowforge-scheduler"))
			if err != nil {
				return err
			}

			defer func() {
				err := rt.Close(context.WithoutCancel(ctx))
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
				}
			}()

			sched := scheduler.New(rt.Store.TimeBlocks(), rt.Jobs, scheduler.Options{
				SyncInterval: rt.Config.SchedulerSyncInterval,
			}, logger)

			return sched.Run(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
