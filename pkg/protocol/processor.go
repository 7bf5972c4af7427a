// Package protocol defines the contract between the orchestrator and node processors.
package protocol

import (
	"context"
	"time"

	"github.com/try-flowforge/backend/pkg/models"
)

// NodeProcessor executes one node type.
type NodeProcessor interface {
	// NodeType returns the node type this processor handles
	NodeType() models.NodeType

	// Execute runs the node. Business failures are reported through the
	// returned output with Success=false; a non-nil error means the processor
	// could not produce an output at all.
	Execute(ctx context.Context, input *NodeExecutionInput) (*NodeExecutionOutput, error)

	// Validate checks a node configuration before execution
	Validate(config map[string]any) ValidationResult
}

// Describer is implemented by processors that publish metadata and a config schema.
type Describer interface {
	Name() string
	Description() string
	Schema() map[string]any
}

// NodeExecutionInput is everything a processor sees for one node run.
type NodeExecutionInput struct {
	NodeID           string
	NodeType         models.NodeType
	NodeConfig       map[string]any
	InputData        map[string]any
	ExecutionContext *models.WorkflowExecutionContext
	Secrets          map[string]string
}

// UserID returns the owner of the run, or an empty string outside of a run.
func (in *NodeExecutionInput) UserID() string {
	if in.ExecutionContext == nil {
		return ""
	}

	return in.ExecutionContext.UserID
}

// NodeError describes a failed node run.
type NodeError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *NodeError) Error() string {
	if e.Code == "" {
		return e.Message
	}

	return e.Code + ": " + e.Message
}

// ExecutionMetadata carries timing of a node run.
type ExecutionMetadata struct {
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Duration    time.Duration `json:"duration"`
}

// NodeExecutionOutput is the result of a processor run.
type NodeExecutionOutput struct {
	NodeID   string            `json:"nodeId"`
	Success  bool              `json:"success"`
	Output   any               `json:"output,omitempty"`
	Error    *NodeError        `json:"error,omitempty"`
	Metadata ExecutionMetadata `json:"metadata"`
}

// ValidationResult lists configuration problems; Valid is true when Errors is empty.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Valid returns a successful validation result.
func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid returns a failed validation result with the given messages.
func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// Succeeded builds a successful output stamped with timing from startedAt.
func Succeeded(nodeID string, output any, startedAt time.Time) *NodeExecutionOutput {
	return &NodeExecutionOutput{
		NodeID:   nodeID,
		Success:  true,
		Output:   output,
		Metadata: metadataSince(startedAt),
	}
}

// Failed builds a failed output stamped with timing from startedAt.
func Failed(nodeID, code, message string, startedAt time.Time) *NodeExecutionOutput {
	return &NodeExecutionOutput{
		NodeID:   nodeID,
		Success:  false,
		Error:    &NodeError{Code: code, Message: message},
		Metadata: metadataSince(startedAt),
	}
}

func metadataSince(startedAt time.Time) ExecutionMetadata {
	completedAt := time.Now().UTC()

	return ExecutionMetadata{
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}
}
