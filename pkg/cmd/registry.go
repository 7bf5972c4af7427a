// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/try-flowforge/backend/pkg/config"
	"github.com/try-flowforge/backend/pkg/lock"
	"github.com/try-flowforge/backend/pkg/nodes/wallet"
	"github.com/try-flowforge/backend/pkg/queue"
	"github.com/try-flowforge/backend/pkg/registry"
)

// RegistryOptions selects the optional processors.
type RegistryOptions struct {
	Jobs           *queue.Client
	Locker         *lock.Locker
	RelayerURL     string
	RelayerAPIKey  string
	RelayerTimeout time.Duration
}

// NewRegistry builds a registry with every built-in processor whose
// dependencies are available.
func NewRegistry(logger *slog.Logger, cfg config.Config, opts RegistryOptions) *registry.Registry {
	reg := registry.NewRegistry(logger)

	deps := registry.Dependencies{
		Logger:        logger,
		LLMTimeout:    cfg.LLMTimeout,
		WalletLockTTL: cfg.WalletLockTTL,
		HTTPTransport: http.DefaultTransport,
	}

	if opts.Jobs != nil {
		deps.Jobs = opts.Jobs
	}

	if opts.Locker != nil && opts.RelayerURL != "" {
		deps.Locker = opts.Locker
		deps.Wallets = wallet.NewRelayerClient(opts.RelayerURL, opts.RelayerAPIKey, opts.RelayerTimeout)
	}

	reg.RegisterDefaultNodes(deps)

	return reg
}
