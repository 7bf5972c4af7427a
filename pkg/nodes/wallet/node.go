package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/try-flowforge/backend/pkg/lock"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
)

const (
	ErrorCodeInProgress     = "WALLET_CREATION_IN_PROGRESS"
	ErrorCodeCreationFailed = "WALLET_CREATION_FAILED"
	ErrorCodeMissingUser    = "WALLET_MISSING_USER"
)

// Config is the WALLET node configuration.
type Config struct {
	Chain string `json:"chain"`
}

// LockKey is the lock guarding wallet creation for one user and chain.
func LockKey(userID, chain string) string {
	return "wallet:" + userID + ":" + chain
}

func (p *Processor) Execute(ctx context.Context, input *protocol.NodeExecutionInput) (*protocol.NodeExecutionOutput, error) {
	startedAt := time.Now().UTC()

	var config Config

	err := protocol.DecodeConfig(input.NodeConfig, &config)
	if err != nil {
		return protocol.Failed(input.NodeID, models.ErrorCodeInvalidConfig, err.Error(), startedAt), nil
	}

	userID := input.UserID()
	if userID == "" {
		return protocol.Failed(input.NodeID, ErrorCodeMissingUser, "wallet creation requires a user", startedAt), nil
	}

	var wallet *Wallet

	key := LockKey(userID, config.Chain)

	err = p.locker.WithLock(ctx, key, lock.Options{TTL: p.lockTTL}, func(ctx context.Context) error {
		created, err := p.provisioner.CreateWallet(ctx, userID, config.Chain)
		if err != nil {
			return err
		}

		wallet = created

		return nil
	})

	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		p.logger.InfoContext(ctx, "Wallet creation already in progress", "user_id", userID, "chain", config.Chain)

		return protocol.Failed(input.NodeID, ErrorCodeInProgress, "wallet creation already in progress for "+config.Chain, startedAt), nil
	case err != nil:
		p.logger.ErrorContext(ctx, "Wallet creation failed", "user_id", userID, "chain", config.Chain, "error", err)

		return protocol.Failed(input.NodeID, ErrorCodeCreationFailed, err.Error(), startedAt), nil
	}

	return protocol.Succeeded(input.NodeID, map[string]any{
		"address": wallet.Address,
		"chain":   wallet.Chain,
		"created": wallet.Created,
	}, startedAt), nil
}

func (p *Processor) Validate(config map[string]any) protocol.ValidationResult {
	return protocol.ValidateAgainstSchema(p.Schema(), config)
}
