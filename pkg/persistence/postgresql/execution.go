package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
)

// ExecutionRepository handles workflow execution rows.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// CreateExecution inserts the row if absent. Concurrent callers with the same
// id race on the primary key and exactly one of them observes true.
func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) (bool, error) {
	initialInputJSON, err := json.Marshal(execution.InitialInput)
	if err != nil {
		return false, fmt.Errorf("failed to marshal initial input: %w", err)
	}

	metadataJSON, err := json.Marshal(execution.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO workflow_executions (
			id, workflow_id, workflow_version, user_id, triggered_by, status,
			initial_input, metadata, error_code, error_message, failed_node_id,
			started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.WorkflowVersion,
		execution.UserID,
		execution.TriggeredBy,
		execution.Status,
		initialInputJSON,
		metadataJSON,
		execution.ErrorCode,
		execution.ErrorMessage,
		execution.FailedNodeID,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert execution %s: %w", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

// GetExecution retrieves an execution by id.
func (r *ExecutionRepository) GetExecution(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	query := `
		SELECT id, workflow_id, workflow_version, user_id, triggered_by, status,
			   initial_input, metadata, error_code, error_message, failed_node_id,
			   started_at, completed_at
		FROM workflow_executions
		WHERE id = $1
	`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetExecution", executionID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// UpdateExecution writes the mutable fields of an execution.
func (r *ExecutionRepository) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	metadataJSON, err := json.Marshal(execution.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE workflow_executions SET
			status = $2,
			metadata = $3,
			error_code = $4,
			error_message = $5,
			failed_node_id = $6,
			completed_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.Status,
		metadataJSON,
		execution.ErrorCode,
		execution.ErrorMessage,
		execution.FailedNodeID,
		execution.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution %s: %w", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("UpdateExecution", execution.ID, persistence.ErrExecutionNotFound)
	}

	return nil
}

func (r *ExecutionRepository) scanExecution(row scanner) (*models.WorkflowExecution, error) {
	var (
		execution                      models.WorkflowExecution
		initialInputJSON, metadataJSON []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.WorkflowVersion,
		&execution.UserID,
		&execution.TriggeredBy,
		&execution.Status,
		&initialInputJSON,
		&metadataJSON,
		&execution.ErrorCode,
		&execution.ErrorMessage,
		&execution.FailedNodeID,
		&execution.StartedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(initialInputJSON) > 0 {
		err = json.Unmarshal(initialInputJSON, &execution.InitialInput)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal initial input: %w", err)
		}
	}

	if len(metadataJSON) > 0 {
		err = json.Unmarshal(metadataJSON, &execution.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &execution, nil
}
