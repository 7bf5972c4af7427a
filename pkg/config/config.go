// Package config holds the tunables shared by the API, worker and scheduler binaries.
package config

import (
	"fmt"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/go-playground/validator/v10"
	"github.com/try-flowforge/backend/pkg/queue"
	"gopkg.in/yaml.v3"
)

// Config is loaded from an optional YAML file and completed with defaults.
type Config struct {
	MaxSteps              int                      `yaml:"max_steps"               validate:"min=1"`
	SubscriptionTokenTTL  time.Duration            `yaml:"subscription_token_ttl"  validate:"gt=0"`
	LLMTimeout            time.Duration            `yaml:"llm_timeout"             validate:"gt=0"`
	WalletLockTTL         time.Duration            `yaml:"wallet_lock_ttl"         validate:"gt=0"`
	SchedulerSyncInterval time.Duration            `yaml:"scheduler_sync_interval" validate:"gt=0"`
	SSEHeartbeat          time.Duration            `yaml:"sse_heartbeat"           validate:"gt=0"`
	Queues                map[string]queue.Options `yaml:"queues"                  validate:"dive"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxSteps:              100,
		SubscriptionTokenTTL:  time.Hour,
		LLMTimeout:            2 * time.Minute,
		WalletLockTTL:         time.Minute,
		SchedulerSyncInterval: 30 * time.Second,
		SSEHeartbeat:          15 * time.Second,
		Queues: map[string]queue.Options{
			queue.WorkflowExecution: {
				Concurrency: 5, RateLimitMax: 100, RateLimitWindow: time.Second,
				Attempts: 3, BackoffDelay: 5 * time.Second, JobTimeout: 10 * time.Minute,
			},
			queue.NodeExecution: {
				Concurrency: 10, Attempts: 3, BackoffDelay: 2 * time.Second, JobTimeout: 2 * time.Minute,
			},
			// On-chain operations are not retried automatically.
			queue.SwapExecution: {
				Concurrency: 3, RateLimitMax: 10, RateLimitWindow: time.Second,
				Attempts: 1, JobTimeout: 5 * time.Minute,
			},
			queue.LendingExecution: {
				Concurrency: 3, RateLimitMax: 10, RateLimitWindow: time.Second,
				Attempts: 1, JobTimeout: 5 * time.Minute,
			},
			queue.PerpsExecution: {
				Concurrency: 3, RateLimitMax: 10, RateLimitWindow: time.Second,
				Attempts: 1, JobTimeout: 5 * time.Minute,
			},
			queue.LLMCalls: {
				Concurrency: 5, RateLimitMax: 60, RateLimitWindow: time.Minute,
				Attempts: 3, BackoffDelay: 2 * time.Second, JobTimeout: 2 * time.Minute,
			},
			queue.ScheduledTriggers: {
				Concurrency: 5, Attempts: 3, BackoffDelay: time.Second, JobTimeout: 30 * time.Second,
			},
		},
	}
}

// Load reads path (if not empty), fills unset values from Default and validates.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = yaml.Unmarshal(data, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	err := cfg.ApplyDefaults()
	if err != nil {
		return Config{}, err
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyDefaults fills every zero field, including per-queue fields, from Default.
func (c *Config) ApplyDefaults() error {
	defaults := Default()

	queues := c.Queues
	c.Queues = nil

	err := mergo.Merge(c, defaults)
	if err != nil {
		return fmt.Errorf("failed to apply config defaults: %w", err)
	}

	for name, options := range queues {
		base := defaults.Queues[name]

		err = mergo.Merge(&options, base)
		if err != nil {
			return fmt.Errorf("failed to apply defaults for queue %s: %w", name, err)
		}

		c.Queues[name] = options
	}

	return nil
}

// Validate checks the configuration with struct tags.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// Queue returns the options for a queue, falling back to the node-execution defaults.
func (c *Config) Queue(name string) queue.Options {
	if options, ok := c.Queues[name]; ok {
		return options
	}

	return Default().Queues[queue.NodeExecution]
}
