// Package postgresql provides the PostgreSQL implementation of the graph store.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/try-flowforge/backend/pkg/persistence"
	"github.com/try-flowforge/backend/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db                *sql.DB
	logger            *slog.Logger
	workflowRepo      *WorkflowRepository
	executionRepo     *ExecutionRepository
	nodeExecutionRepo *NodeExecutionRepository
	timeBlockRepo     *TimeBlockRepository
}

// NewPersistence opens the database, runs migrations and wires the repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "postgresql")

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:                database,
		logger:            logger,
		workflowRepo:      NewWorkflowRepository(database, logger),
		executionRepo:     NewExecutionRepository(database, logger),
		nodeExecutionRepo: NewNodeExecutionRepository(database, logger),
		timeBlockRepo:     NewTimeBlockRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) NodeExecutions() persistence.NodeExecutionRepository {
	return p.nodeExecutionRepo
}

func (p *Persistence) TimeBlocks() persistence.TimeBlockRepository {
	return p.timeBlockRepo
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

type scanner interface {
	Scan(dest ...any) error
}
