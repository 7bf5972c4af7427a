// Package registry maps node types to the processors that execute them.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
)

var ErrProcessorNotRegistered = errors.New("processor not registered")

// ProcessorNotRegisteredError names the node type that has no processor.
type ProcessorNotRegisteredError struct {
	NodeType models.NodeType
}

func (e *ProcessorNotRegisteredError) Error() string {
	return fmt.Sprintf("no processor registered for node type %s", e.NodeType)
}

func (e *ProcessorNotRegisteredError) Unwrap() error {
	return ErrProcessorNotRegistered
}

// Descriptor is the public description of a registered node type.
type Descriptor struct {
	Type        models.NodeType `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      map[string]any  `json:"schema,omitempty"`
}

type Registry struct {
	logger     *slog.Logger
	mu         sync.RWMutex
	processors map[models.NodeType]protocol.NodeProcessor
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:     logger.With("module", "registry"),
		processors: make(map[models.NodeType]protocol.NodeProcessor),
	}
}

// Register adds p under its node type, replacing any previous processor.
func (r *Registry) Register(p protocol.NodeProcessor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.processors[p.NodeType()]; exists {
		r.logger.Warn("Replacing node processor", "node_type", p.NodeType())
	}

	r.processors[p.NodeType()] = p
}

// GetProcessor returns the processor for nodeType or a *ProcessorNotRegisteredError.
func (r *Registry) GetProcessor(nodeType models.NodeType) (protocol.NodeProcessor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.processors[nodeType]
	if !ok {
		return nil, &ProcessorNotRegisteredError{NodeType: nodeType}
	}

	return p, nil
}

// Types lists registered node types in sorted order.
func (r *Registry) Types() []models.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.NodeType, 0, len(r.processors))
	for nodeType := range r.processors {
		types = append(types, nodeType)
	}

	slices.Sort(types)

	return types
}

// Describe returns a descriptor per registered type. Processors that do not
// implement protocol.Describer are listed by type only.
func (r *Registry) Describe() []Descriptor {
	types := r.Types()

	r.mu.RLock()
	defer r.mu.RUnlock()

	descriptors := make([]Descriptor, 0, len(types))

	for _, nodeType := range types {
		descriptor := Descriptor{Type: nodeType, Name: string(nodeType)}

		if d, ok := r.processors[nodeType].(protocol.Describer); ok {
			descriptor.Name = d.Name()
			descriptor.Description = d.Description()
			descriptor.Schema = d.Schema()
		}

		descriptors = append(descriptors, descriptor)
	}

	return descriptors
}
