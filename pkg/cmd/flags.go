package cmd

import (
	cli "github.com/urfave/cli/v3"
)

// CommonFlags are accepted by every binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL (postgres://... or memory://)",
			Value:   "memory://",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis connection URL for queues, locks and subscription tokens",
			Value:   "redis://localhost:6379/0",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to a YAML file overriding the default tunables",
			Sources: cli.EnvVars("CONFIG_FILE"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
	}
}

// ProviderFlags configure the external LLM and wallet relayer providers.
func ProviderFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "llm-base-url",
			Usage:   "Base URL of an OpenAI-compatible API; the LLM worker is disabled when empty",
			Sources: cli.EnvVars("LLM_BASE_URL"),
		},
		&cli.StringFlag{
			Name:    "llm-api-key",
			Usage:   "API key of the LLM provider",
			Sources: cli.EnvVars("LLM_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "llm-model",
			Usage:   "Default model when a node does not name one",
			Value:   "gpt-4o-mini",
			Sources: cli.EnvVars("LLM_MODEL"),
		},
		&cli.StringFlag{
			Name:    "relayer-url",
			Usage:   "Base URL of the wallet relayer; the wallet node is disabled when empty",
			Sources: cli.EnvVars("RELAYER_URL"),
		},
		&cli.StringFlag{
			Name:    "relayer-api-key",
			Usage:   "API key of the wallet relayer",
			Sources: cli.EnvVars("RELAYER_API_KEY"),
		},
	}
}

// RuntimeOptionsFrom reads the common flags.
func RuntimeOptionsFrom(command *cli.Command, serviceName string) RuntimeOptions {
	return RuntimeOptions{
		ServiceName:  serviceName,
		ConfigPath:   command.String("config"),
		DatabaseURL:  command.String("database-url"),
		RedisURL:     command.String("redis-url"),
		EventBus:     command.String("event-bus"),
		KafkaBrokers: command.String("kafka-brokers"),
		Tracing:      command.Bool("tracing"),
	}
}
