package workflow

import (
	"context"
	"log/slog"
	"maps"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
	"github.com/try-flowforge/backend/pkg/template"
)

const branchKey = "branchToFollow"

// CollectInput builds the inputData of node from the outputs already produced
// in execCtx. Edges with a dataMapping copy the mapped paths of their source
// output; other edges shallow-merge the whole source output. The outputs of
// every upstream ancestor are exposed under "blocks".
func CollectInput(definition *models.WorkflowDefinition, node *models.WorkflowNode, execCtx *models.WorkflowExecutionContext) map[string]any {
	input := map[string]any{}

	for _, edge := range definition.IncomingEdges(node.ID) {
		source, ok := execCtx.NodeOutputs[edge.SourceNodeID]
		if !ok {
			continue
		}

		if len(edge.DataMapping) > 0 {
			for target, path := range edge.DataMapping {
				if value, found := template.Resolve(source, path); found {
					input[target] = value
				}
			}

			continue
		}

		if output, ok := source.(map[string]any); ok {
			maps.Copy(input, output)
		}
	}

	blocks := map[string]any{}

	for _, ancestor := range definition.Ancestors(node.ID) {
		if output, ok := execCtx.NodeOutputs[ancestor]; ok {
			blocks[ancestor] = output
		}
	}

	input[protocol.BlocksKey] = blocks

	return input
}

// nextNode picks the node traversal continues with, or nil when it ends.
func nextNode(ctx context.Context, logger *slog.Logger, definition *models.WorkflowDefinition, node *models.WorkflowNode, output any) *models.WorkflowNode {
	edges := definition.OutgoingEdges(node.ID)
	if len(edges) == 0 {
		return nil
	}

	var selected *models.WorkflowEdge

	if node.Type.IsBranch() {
		branch := branchOf(output)

		for _, edge := range edges {
			if branch != "" && edge.Handle() == branch {
				selected = edge

				break
			}
		}

		if selected == nil {
			logger.InfoContext(ctx, "Ending traversal on unmatched branch", "node_id", node.ID, "branch", branch)

			return nil
		}
	} else {
		if len(edges) > 1 {
			logger.WarnContext(ctx, "Ignoring additional outgoing edges", "node_id", node.ID, "edges", len(edges))
		}

		selected = edges[0]
	}

	target, ok := definition.NodeByID(selected.TargetNodeID)
	if !ok {
		logger.ErrorContext(ctx, "Edge targets a missing node", "edge_id", selected.ID, "target_node_id", selected.TargetNodeID)

		return nil
	}

	return target
}

func branchOf(output any) string {
	m, ok := output.(map[string]any)
	if !ok {
		return ""
	}

	branch, _ := m[branchKey].(string)

	return branch
}
