package cmd

import (
	"context"
	"log/slog"

	"github.com/try-flowforge/backend/pkg/config"
	"github.com/try-flowforge/backend/pkg/persistence"
	"github.com/try-flowforge/backend/pkg/queue"
	"github.com/try-flowforge/backend/pkg/ratelimit"
	"github.com/try-flowforge/backend/pkg/worker"
	"golang.org/x/sync/errgroup"
)

// WorkerSet wires the queue handlers to their queues.
type WorkerSet struct {
	Config       config.Config
	Jobs         *queue.Client
	Limiter      *ratelimit.Limiter
	Orchestrator worker.Orchestrator
	Registry     worker.ProcessorRegistry
	TimeBlocks   persistence.TimeBlockRepository
	// Completer is optional; without it the llm-calls queue is not consumed.
	Completer worker.Completer
	// Unscheduler is optional; the scheduler also drops retired blocks on its next sync.
	Unscheduler worker.Unscheduler
	Logger      *slog.Logger
}

func (s WorkerSet) workers() []*queue.Worker {
	handlers := map[string]queue.Handler{
		queue.WorkflowExecution: worker.NewWorkflowHandler(s.Orchestrator, s.Logger).Handle,
		queue.ScheduledTriggers: worker.NewTriggerHandler(s.TimeBlocks, s.Jobs, s.Unscheduler, s.Logger).Handle,
	}

	nodeHandler := worker.NewNodeHandler(s.Registry, s.Logger).Handle
	for _, name := range worker.NodeQueues {
		handlers[name] = nodeHandler
	}

	if s.Completer != nil {
		handlers[queue.LLMCalls] = worker.NewLLMHandler(s.Completer, s.Logger).Handle
	} else {
		s.Logger.Info("LLM worker disabled: no LLM provider configured")
	}

	workers := make([]*queue.Worker, 0, len(handlers))
	for name, handler := range handlers {
		workers = append(workers, queue.NewWorker(s.Jobs, s.Limiter, name, handler, s.Config.Queue(name), s.Logger))
	}

	return workers
}

// Run consumes every queue until ctx is done.
func (s WorkerSet) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, w := range s.workers() {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	return g.Wait()
}
