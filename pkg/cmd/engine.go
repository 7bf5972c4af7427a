package cmd

import (
	"time"

	"github.com/try-flowforge/backend/pkg/lock"
	"github.com/try-flowforge/backend/pkg/nodes/llm"
	"github.com/try-flowforge/backend/pkg/ratelimit"
	"github.com/try-flowforge/backend/pkg/registry"
	"github.com/try-flowforge/backend/pkg/subscription"
	"github.com/try-flowforge/backend/pkg/worker"
	"github.com/try-flowforge/backend/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

const providerTimeout = 30 * time.Second

// ProviderOptions are read from ProviderFlags.
type ProviderOptions struct {
	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	RelayerURL    string
	RelayerAPIKey string
}

func ProviderOptionsFrom(command *cli.Command) ProviderOptions {
	return ProviderOptions{
		LLMBaseURL:    command.String("llm-base-url"),
		LLMAPIKey:     command.String("llm-api-key"),
		LLMModel:      command.String("llm-model"),
		RelayerURL:    command.String("relayer-url"),
		RelayerAPIKey: command.String("relayer-api-key"),
	}
}

// Engine is the execution core built on top of a Runtime.
type Engine struct {
	Registry     *registry.Registry
	Orchestrator *workflow.Orchestrator
	Workflows    *workflow.Repository
	Tokens       *subscription.Service
	Limiter      *ratelimit.Limiter
	Completer    worker.Completer
}

func (rt *Runtime) Engine(opts ProviderOptions) *Engine {
	reg := NewRegistry(rt.logger, rt.Config, RegistryOptions{
		Jobs:           rt.Jobs,
		Locker:         lock.NewLocker(rt.Redis, rt.logger),
		RelayerURL:     opts.RelayerURL,
		RelayerAPIKey:  opts.RelayerAPIKey,
		RelayerTimeout: providerTimeout,
	})

	tokens := subscription.NewService(rt.Redis, rt.Config.SubscriptionTokenTTL, rt.logger)

	engine := &Engine{
		Registry: reg,
		Orchestrator: workflow.NewOrchestrator(rt.Store, reg, rt.Bus, tokens, workflow.Options{
			MaxSteps: rt.Config.MaxSteps,
			Tracer:   rt.Tracer,
		}, rt.logger),
		Workflows: workflow.NewRepository(rt.Store.Workflows(), reg, rt.logger),
		Tokens:    tokens,
		Limiter:   ratelimit.NewLimiter(rt.Redis, rt.logger),
	}

	if opts.LLMBaseURL != "" {
		engine.Completer = llm.NewClient(opts.LLMBaseURL, opts.LLMAPIKey, opts.LLMModel, rt.Config.LLMTimeout)
	}

	return engine
}

// Workers returns the queue consumers of this engine. unscheduler may be nil.
func (rt *Runtime) Workers(engine *Engine, unscheduler worker.Unscheduler) WorkerSet {
	return WorkerSet{
		Config:       rt.Config,
		Jobs:         rt.Jobs,
		Limiter:      engine.Limiter,
		Orchestrator: engine.Orchestrator,
		Registry:     engine.Registry,
		TimeBlocks:   rt.Store.TimeBlocks(),
		Completer:    engine.Completer,
		Unscheduler:  unscheduler,
		Logger:       rt.logger,
	}
}
