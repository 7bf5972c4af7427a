package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
)

// NodeExecutionRepository handles per-node execution records.
type NodeExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNodeExecutionRepository creates a new node execution repository.
func NewNodeExecutionRepository(db *sql.DB, logger *slog.Logger) *NodeExecutionRepository {
	return &NodeExecutionRepository{db: db, logger: logger}
}

// CreateNodeExecution inserts a record, assigning an id when empty.
func (r *NodeExecutionRepository) CreateNodeExecution(ctx context.Context, record *models.NodeExecutionRecord) error {
	if record.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate node execution ID: %w", err)
		}

		record.ID = id.String()
	}

	inputJSON, err := json.Marshal(record.InputData)
	if err != nil {
		return fmt.Errorf("failed to marshal input data: %w", err)
	}

	outputJSON, err := marshalOutput(record.OutputData)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO node_executions (
			id, execution_id, node_id, node_type, input_data, output_data,
			status, error, started_at, completed_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.ExecutionID,
		record.NodeID,
		record.NodeType,
		inputJSON,
		outputJSON,
		record.Status,
		record.Error,
		record.StartedAt,
		record.CompletedAt,
		record.DurationMs,
	)
	if err != nil {
		return persistence.NewNodeExecutionError("CreateNodeExecution", record.ExecutionID, record.NodeID, err)
	}

	return nil
}

// UpdateNodeExecution writes the outcome of a record.
func (r *NodeExecutionRepository) UpdateNodeExecution(ctx context.Context, record *models.NodeExecutionRecord) error {
	outputJSON, err := marshalOutput(record.OutputData)
	if err != nil {
		return err
	}

	query := `
		UPDATE node_executions SET
			output_data = $2,
			status = $3,
			error = $4,
			completed_at = $5,
			duration_ms = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		record.ID,
		outputJSON,
		record.Status,
		record.Error,
		record.CompletedAt,
		record.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to update node execution %s: %w", record.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewNodeExecutionError("UpdateNodeExecution", record.ExecutionID, record.NodeID, persistence.ErrNodeExecutionNotFound)
	}

	return nil
}

// ListNodeExecutions returns the records of an execution in start order.
func (r *NodeExecutionRepository) ListNodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecutionRecord, error) {
	query := `
		SELECT id, execution_id, node_id, node_type, input_data, output_data,
			   status, error, started_at, completed_at, duration_ms
		FROM node_executions
		WHERE execution_id = $1
		ORDER BY started_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.NodeExecutionRecord, 0)

	for rows.Next() {
		record, err := r.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating node executions: %w", err)
	}

	return records, nil
}

func (r *NodeExecutionRepository) scanRecord(row scanner) (*models.NodeExecutionRecord, error) {
	var (
		record                models.NodeExecutionRecord
		inputJSON, outputJSON []byte
	)

	err := row.Scan(
		&record.ID,
		&record.ExecutionID,
		&record.NodeID,
		&record.NodeType,
		&inputJSON,
		&outputJSON,
		&record.Status,
		&record.Error,
		&record.StartedAt,
		&record.CompletedAt,
		&record.DurationMs,
	)
	if err != nil {
		return nil, err
	}

	if len(inputJSON) > 0 {
		err = json.Unmarshal(inputJSON, &record.InputData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
		}
	}

	if len(outputJSON) > 0 {
		err = json.Unmarshal(outputJSON, &record.OutputData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal output data: %w", err)
		}
	}

	return &record, nil
}

func marshalOutput(output any) (any, error) {
	if output == nil {
		return nil, nil
	}

	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output data: %w", err)
	}

	return data, nil
}
