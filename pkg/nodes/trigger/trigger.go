// Package trigger provides the passthrough processor for TRIGGER and START nodes.
package trigger

import (
	"context"
	"maps"
	"time"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
)

// Processor emits the run's initial input enriched with run metadata.
type Processor struct {
	nodeType models.NodeType
}

// NewProcessor creates a passthrough processor registered under nodeType.
func NewProcessor(nodeType models.NodeType) *Processor {
	return &Processor{nodeType: nodeType}
}

var (
	_ protocol.NodeProcessor = (*Processor)(nil)
	_ protocol.Describer     = (*Processor)(nil)
)

func (p *Processor) NodeType() models.NodeType {
	return p.nodeType
}

func (p *Processor) Name() string {
	if p.nodeType == models.NodeTypeStart {
		return "Start"
	}

	return "Trigger"
}

func (p *Processor) Description() string {
	return "Entry point of a workflow. Emits the run input together with run metadata"
}

func (p *Processor) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

// Output builds the entry node output for a run.
func Output(execCtx *models.WorkflowExecutionContext, triggeredAt time.Time) map[string]any {
	output := make(map[string]any, len(execCtx.InitialInput)+5)
	maps.Copy(output, execCtx.InitialInput)

	output["executionId"] = execCtx.ExecutionID
	output["workflowId"] = execCtx.WorkflowID
	output["userId"] = execCtx.UserID
	output["triggeredBy"] = execCtx.TriggeredBy
	output["triggeredAt"] = triggeredAt.UTC().Format(time.RFC3339Nano)

	return output
}

func (p *Processor) Execute(_ context.Context, input *protocol.NodeExecutionInput) (*protocol.NodeExecutionOutput, error) {
	startedAt := time.Now().UTC()

	if input.ExecutionContext == nil {
		return protocol.Succeeded(input.NodeID, protocol.Passthrough(input.InputData), startedAt), nil
	}

	output := Output(input.ExecutionContext, startedAt)
	for key, value := range protocol.Passthrough(input.InputData) {
		if _, exists := output[key]; !exists {
			output[key] = value
		}
	}

	return protocol.Succeeded(input.NodeID, output, startedAt), nil
}

func (p *Processor) Validate(map[string]any) protocol.ValidationResult {
	return protocol.Valid()
}
