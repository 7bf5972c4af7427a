// Package wallet provides the WALLET processor, which provisions one wallet per
// user and chain under a distributed lock.
package wallet

import (
	"context"
	"log/slog"
	"time"

	"github.com/try-flowforge/backend/pkg/lock"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
)

// Locker runs fn while holding key.
type Locker interface {
	WithLock(ctx context.Context, key string, opts lock.Options, fn func(ctx context.Context) error) error
}

// Provisioner creates or returns a wallet for a user on a chain.
type Provisioner interface {
	CreateWallet(ctx context.Context, userID, chain string) (*Wallet, error)
}

var chains = []string{"ethereum", "arbitrum", "arbitrum-sepolia", "base", "optimism", "polygon"}

type Processor struct {
	locker      Locker
	provisioner Provisioner
	lockTTL     time.Duration
	logger      *slog.Logger
}

// NewProcessor creates a WALLET processor; lockTTL bounds how long a creation may hold the lock.
func NewProcessor(locker Locker, provisioner Provisioner, lockTTL time.Duration, logger *slog.Logger) *Processor {
	return &Processor{
		locker:      locker,
		provisioner: provisioner,
		lockTTL:     lockTTL,
		logger:      logger.With("module", "wallet_node"),
	}
}

var (
	_ protocol.NodeProcessor = (*Processor)(nil)
	_ protocol.Describer     = (*Processor)(nil)
)

func (p *Processor) NodeType() models.NodeType {
	return models.NodeTypeWallet
}

func (p *Processor) Name() string {
	return "Wallet"
}

func (p *Processor) Description() string {
	return "Creates the user's smart wallet on a chain, or returns the existing one"
}

func (p *Processor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"chain": map[string]any{
				"type": "string",
				"enum": chains,
			},
		},
		"required": []string{"chain"},
	}
}
