package models

import (
	"errors"
	"fmt"
)

var (
	ErrNoTriggerNode = errors.New("workflow has no trigger node")
	ErrSelfLoop      = errors.New("edge source and target must differ")
	ErrDanglingEdge  = errors.New("edge references an unknown node")
)

// WorkflowEdge connects two nodes. SourceHandle names the branch an IF/SWITCH
// node must select for the edge to be followed.
type WorkflowEdge struct {
	ID           string            `json:"id"`
	SourceNodeID string            `json:"sourceNodeId"           validate:"required"`
	TargetNodeID string            `json:"targetNodeId"           validate:"required"`
	SourceHandle *string           `json:"sourceHandle,omitempty"`
	TargetHandle *string           `json:"targetHandle,omitempty"`
	Condition    map[string]any    `json:"condition,omitempty"`
	DataMapping  map[string]string `json:"dataMapping,omitempty"`
}

// Handle returns the source handle or an empty string.
func (e *WorkflowEdge) Handle() string {
	if e.SourceHandle == nil {
		return ""
	}

	return *e.SourceHandle
}

// WorkflowDefinition is the immutable snapshot of a graph loaded for one run.
type WorkflowDefinition struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Name          string          `json:"name,omitempty"`
	Version       int             `json:"version"`
	Nodes         []*WorkflowNode `json:"nodes"`
	Edges         []*WorkflowEdge `json:"edges"`
	TriggerNodeID string          `json:"triggerNodeId,omitempty"`
}

// NodeByID returns the node with the given id.
func (w *WorkflowDefinition) NodeByID(id string) (*WorkflowNode, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// OutgoingEdges returns the edges leaving nodeID in definition order.
func (w *WorkflowDefinition) OutgoingEdges(nodeID string) []*WorkflowEdge {
	var edges []*WorkflowEdge

	for _, edge := range w.Edges {
		if edge.SourceNodeID == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// IncomingEdges returns the edges entering nodeID in definition order.
func (w *WorkflowDefinition) IncomingEdges(nodeID string) []*WorkflowEdge {
	var edges []*WorkflowEdge

	for _, edge := range w.Edges {
		if edge.TargetNodeID == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// EntryNode resolves where traversal starts: the declared trigger node, or the
// first passthrough node of the graph.
func (w *WorkflowDefinition) EntryNode() (*WorkflowNode, error) {
	if w.TriggerNodeID != "" {
		if node, ok := w.NodeByID(w.TriggerNodeID); ok {
			return node, nil
		}
	}

	for _, node := range w.Nodes {
		if node.Type.IsPassthrough() {
			return node, nil
		}
	}

	return nil, ErrNoTriggerNode
}

// Ancestors returns every node that can reach nodeID through incoming edges,
// in breadth-first order, excluding nodeID itself.
func (w *WorkflowDefinition) Ancestors(nodeID string) []string {
	seen := map[string]bool{nodeID: true}
	queue := []string{nodeID}

	var ancestors []string

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, edge := range w.IncomingEdges(current) {
			if seen[edge.SourceNodeID] {
				continue
			}

			seen[edge.SourceNodeID] = true
			ancestors = append(ancestors, edge.SourceNodeID)
			queue = append(queue, edge.SourceNodeID)
		}
	}

	return ancestors
}

// Validate checks the structural rules of the graph.
func (w *WorkflowDefinition) Validate() error {
	ids := make(map[string]bool, len(w.Nodes))
	for _, node := range w.Nodes {
		ids[node.ID] = true
	}

	var errs []error

	for _, edge := range w.Edges {
		if edge.SourceNodeID == edge.TargetNodeID {
			errs = append(errs, fmt.Errorf("edge %s: %w", edge.ID, ErrSelfLoop))
		}

		if !ids[edge.SourceNodeID] || !ids[edge.TargetNodeID] {
			errs = append(errs, fmt.Errorf("edge %s: %w", edge.ID, ErrDanglingEdge))
		}
	}

	return errors.Join(errs...)
}
