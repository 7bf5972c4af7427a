package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
)

// Repository validates workflow definitions before handing them to the store.
type Repository struct {
	store    persistence.WorkflowRepository
	registry ProcessorRegistry
	validate *validator.Validate
	logger   *slog.Logger
}

func NewRepository(store persistence.WorkflowRepository, registry ProcessorRegistry, logger *slog.Logger) *Repository {
	return &Repository{
		store:    store,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("module", "workflow_repository"),
	}
}

func (r *Repository) Get(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return r.store.GetDefinition(ctx, id)
}

// Save checks the graph and stores it. Every node type must have a processor
// unless it is a passthrough node.
func (r *Repository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	err := r.Check(definition)
	if err != nil {
		return err
	}

	err = r.store.SaveDefinition(ctx, definition)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", definition.ID, err)
	}

	r.logger.InfoContext(ctx, "Saved workflow", "workflow_id", definition.ID, "version", definition.Version, "nodes", len(definition.Nodes))

	return nil
}

// Check reports every structural problem of definition wrapped in ErrInvalidWorkflow.
func (r *Repository) Check(definition *models.WorkflowDefinition) error {
	if definition.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidWorkflow)
	}

	for _, node := range definition.Nodes {
		err := r.validate.Struct(node)
		if err != nil {
			return fmt.Errorf("%w: node %q: %w", ErrInvalidWorkflow, node.ID, err)
		}

		if node.Type.IsPassthrough() || r.registry == nil {
			continue
		}

		_, err = r.registry.GetProcessor(node.Type)
		if err != nil {
			return fmt.Errorf("%w: node %q: %w", ErrInvalidWorkflow, node.ID, err)
		}
	}

	for _, edge := range definition.Edges {
		err := r.validate.Struct(edge)
		if err != nil {
			return fmt.Errorf("%w: edge %q: %w", ErrInvalidWorkflow, edge.ID, err)
		}
	}

	_, err := definition.EntryNode()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}

	err = definition.Validate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}

	return nil
}
