package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/try-flowforge/backend/pkg/persistence"
	"github.com/try-flowforge/backend/pkg/persistence/memory"
	"github.com/try-flowforge/backend/pkg/persistence/postgresql"
)

// NewPersistence opens the store named by the scheme of databaseURL.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}

		return store, nil
	case "memory":
		logger.WarnContext(ctx, "Using in-memory persistence; data is lost on restart")

		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database url scheme: %q", databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	return provider
}
