// Package testutil provides workflow builders for tests.
package testutil

import "github.com/try-flowforge/backend/pkg/models"

// Node creates a workflow node.
func Node(id string, nodeType models.NodeType, config map[string]any, overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{ID: id, Type: nodeType, Name: id, Config: config}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// Edge connects source to target.
func Edge(source, target string, overrides ...func(*models.WorkflowEdge)) *models.WorkflowEdge {
	edge := &models.WorkflowEdge{ID: source + "->" + target, SourceNodeID: source, TargetNodeID: target}

	for _, override := range overrides {
		override(edge)
	}

	return edge
}

// BranchEdge connects source to target on the named branch of an IF or SWITCH node.
func BranchEdge(source, target, branch string) *models.WorkflowEdge {
	return Edge(source, target, WithSourceHandle(branch))
}

func WithSourceHandle(handle string) func(*models.WorkflowEdge) {
	return func(e *models.WorkflowEdge) {
		e.SourceHandle = &handle
	}
}

// WithDataMapping maps input keys of the target to paths in the source output.
func WithDataMapping(mapping map[string]string) func(*models.WorkflowEdge) {
	return func(e *models.WorkflowEdge) {
		e.DataMapping = mapping
	}
}

// Definition creates a workflow owned by userID whose entry is the first node.
func Definition(id, userID string, nodes []*models.WorkflowNode, edges ...*models.WorkflowEdge) *models.WorkflowDefinition {
	definition := &models.WorkflowDefinition{ID: id, UserID: userID, Nodes: nodes, Edges: edges}

	if len(nodes) > 0 {
		definition.TriggerNodeID = nodes[0].ID
	}

	return definition
}

// LogWorkflow is a trigger followed by a log node.
func LogWorkflow(id, userID string) *models.WorkflowDefinition {
	return Definition(id, userID,
		[]*models.WorkflowNode{
			Node("trigger", models.NodeTypeTrigger, nil),
			Node("log", models.NodeTypeLog, map[string]any{"message": "hello"}),
		},
		Edge("trigger", "log"),
	)
}
