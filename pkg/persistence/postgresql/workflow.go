package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
)

// WorkflowRepository handles workflow definition rows with their nodes and edges.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetDefinition loads a workflow with its nodes and edges in definition order.
func (r *WorkflowRepository) GetDefinition(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT
			id
		  , user_id
		  , name
		  , version
		  , trigger_node_id
		FROM workflows
		WHERE id = $1
	`

	var (
		definition    models.WorkflowDefinition
		triggerNodeID sql.NullString
	)

	err := r.db.QueryRowContext(ctx, query, workflowID).Scan(
		&definition.ID,
		&definition.UserID,
		&definition.Name,
		&definition.Version,
		&triggerNodeID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetDefinition", workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	definition.TriggerNodeID = triggerNodeID.String

	definition.Nodes, err = r.loadNodes(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	definition.Edges, err = r.loadEdges(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return &definition, nil
}

func (r *WorkflowRepository) loadNodes(ctx context.Context, workflowID string) ([]*models.WorkflowNode, error) {
	query := `
		SELECT id, node_type, name, config, position_x, position_y
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY sort_order
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow nodes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	nodes := make([]*models.WorkflowNode, 0)

	for rows.Next() {
		var (
			node       models.WorkflowNode
			configJSON []byte
		)

		err := rows.Scan(&node.ID, &node.Type, &node.Name, &configJSON, &node.Position.X, &node.Position.Y)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow node: %w", err)
		}

		node.Config = make(map[string]any)

		if len(configJSON) > 0 {
			err = json.Unmarshal(configJSON, &node.Config)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal config of node %s: %w", node.ID, err)
			}
		}

		nodes = append(nodes, &node)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow nodes: %w", err)
	}

	return nodes, nil
}

func (r *WorkflowRepository) loadEdges(ctx context.Context, workflowID string) ([]*models.WorkflowEdge, error) {
	query := `
		SELECT id, source_node_id, target_node_id, source_handle, target_handle, condition, data_mapping
		FROM workflow_edges
		WHERE workflow_id = $1
		ORDER BY sort_order
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow edges: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	edges := make([]*models.WorkflowEdge, 0)

	for rows.Next() {
		var (
			edge                       models.WorkflowEdge
			conditionJSON, mappingJSON []byte
		)

		err := rows.Scan(
			&edge.ID,
			&edge.SourceNodeID,
			&edge.TargetNodeID,
			&edge.SourceHandle,
			&edge.TargetHandle,
			&conditionJSON,
			&mappingJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow edge: %w", err)
		}

		if len(conditionJSON) > 0 {
			err = json.Unmarshal(conditionJSON, &edge.Condition)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal condition of edge %s: %w", edge.ID, err)
			}
		}

		if len(mappingJSON) > 0 {
			err = json.Unmarshal(mappingJSON, &edge.DataMapping)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal data mapping of edge %s: %w", edge.ID, err)
			}
		}

		edges = append(edges, &edge)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow edges: %w", err)
	}

	return edges, nil
}

// SaveDefinition upserts the workflow row and replaces its nodes and edges.
func (r *WorkflowRepository) SaveDefinition(ctx context.Context, definition *models.WorkflowDefinition) error {
	if definition.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		definition.ID = id.String()
	}

	if definition.Version == 0 {
		definition.Version = 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			r.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
		}
	}()

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, user_id, name, version, trigger_node_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			trigger_node_id = EXCLUDED.trigger_node_id,
			updated_at = EXCLUDED.updated_at
	`, definition.ID, definition.UserID, definition.Name, definition.Version, definition.TriggerNodeID, now)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	err = r.replaceNodes(ctx, tx, definition)
	if err != nil {
		return err
	}

	err = r.replaceEdges(ctx, tx, definition)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit workflow %s: %w", definition.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) replaceNodes(ctx context.Context, tx *sql.Tx, definition *models.WorkflowDefinition) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", definition.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	for i, node := range definition.Nodes {
		config := node.Config
		if config == nil {
			config = map[string]any{}
		}

		configJSON, err := json.Marshal(config)
		if err != nil {
			return fmt.Errorf("failed to marshal config of node %s: %w", node.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_nodes (workflow_id, id, node_type, name, config, position_x, position_y, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, definition.ID, node.ID, node.Type, node.Name, configJSON, node.Position.X, node.Position.Y, i)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) replaceEdges(ctx context.Context, tx *sql.Tx, definition *models.WorkflowDefinition) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM workflow_edges WHERE workflow_id = $1", definition.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing edges: %w", err)
	}

	for i, edge := range definition.Edges {
		if edge.ID == "" {
			edge.ID = fmt.Sprintf("%s-%s-%d", edge.SourceNodeID, edge.TargetNodeID, i)
		}

		conditionJSON, err := nullableJSON(edge.Condition)
		if err != nil {
			return fmt.Errorf("failed to marshal condition of edge %s: %w", edge.ID, err)
		}

		mappingJSON, err := nullableJSON(edge.DataMapping)
		if err != nil {
			return fmt.Errorf("failed to marshal data mapping of edge %s: %w", edge.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_edges (
				workflow_id, id, source_node_id, target_node_id, source_handle,
				target_handle, condition, data_mapping, sort_order
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, definition.ID, edge.ID, edge.SourceNodeID, edge.TargetNodeID, edge.SourceHandle,
			edge.TargetHandle, conditionJSON, mappingJSON, i)
		if err != nil {
			return fmt.Errorf("failed to insert edge %s: %w", edge.ID, err)
		}
	}

	return nil
}

// UpdateLastExecuted stamps the workflow's last execution time.
func (r *WorkflowRepository) UpdateLastExecuted(ctx context.Context, workflowID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, "UPDATE workflows SET last_executed_at = $2 WHERE id = $1", workflowID, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to update last executed time: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError("UpdateLastExecuted", workflowID, persistence.ErrWorkflowNotFound)
	}

	return nil
}

// nullableJSON marshals v, mapping empty maps to SQL NULL.
func nullableJSON[T any](v map[string]T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return data, nil
}
