package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
	"github.com/try-flowforge/backend/pkg/queue"
)

const (
	ErrorCodeTimeout    = "LLM_TIMEOUT"
	ErrorCodeCallFailed = "LLM_CALL_FAILED"
)

// RequestFromConfig decodes a node configuration into a completion request.
func RequestFromConfig(config map[string]any) (Request, error) {
	var req Request

	err := protocol.DecodeConfig(config, &req)
	if err != nil {
		return Request{}, err
	}

	if req.Prompt == "" {
		return Request{}, errors.New("prompt is required")
	}

	return req, nil
}

func (p *Processor) Execute(ctx context.Context, input *protocol.NodeExecutionInput) (*protocol.NodeExecutionOutput, error) {
	startedAt := time.Now().UTC()

	config := input.NodeConfig

	req, err := RequestFromConfig(config)
	if err != nil {
		return protocol.Failed(input.NodeID, models.ErrorCodeInvalidConfig, err.Error(), startedAt), nil
	}

	job := queue.NodeExecutionJob{
		NodeID:     input.NodeID,
		NodeType:   models.NodeTypeLLMTransform,
		NodeConfig: config,
		UserID:     input.UserID(),
	}

	if input.ExecutionContext != nil {
		job.ExecutionID = input.ExecutionContext.ExecutionID
	}

	jobID, _, err := p.jobs.Add(ctx, queue.LLMCalls, job, queue.AddOptions{JobID: uuid.NewString()})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue llm call for node %s: %w", input.NodeID, err)
	}

	p.logger.DebugContext(ctx, "Waiting for llm call", "node_id", input.NodeID, "job_id", jobID)

	raw, err := p.jobs.WaitForResult(ctx, queue.LLMCalls, jobID, p.timeout)
	if err != nil {
		return p.waitFailure(input.NodeID, jobID, err, startedAt)
	}

	var completion Completion

	err = json.Unmarshal(raw, &completion)
	if err != nil {
		return protocol.Failed(input.NodeID, ErrorCodeCallFailed, "malformed llm result: "+err.Error(), startedAt), nil
	}

	output := map[string]any{
		"text":         completion.Text,
		"model":        completion.Model,
		"finishReason": completion.FinishReason,
		"usage": map[string]any{
			"promptTokens":     completion.Usage.PromptTokens,
			"completionTokens": completion.Usage.CompletionTokens,
			"totalTokens":      completion.Usage.TotalTokens,
		},
	}

	if req.JSONOutput {
		var parsed any

		err = json.Unmarshal([]byte(completion.Text), &parsed)
		if err != nil {
			return protocol.Failed(input.NodeID, ErrorCodeCallFailed, "model did not return valid JSON: "+err.Error(), startedAt), nil
		}

		output["json"] = parsed
	}

	return protocol.Succeeded(input.NodeID, output, startedAt), nil
}

func (p *Processor) waitFailure(nodeID, jobID string, err error, startedAt time.Time) (*protocol.NodeExecutionOutput, error) {
	if errors.Is(err, queue.ErrWaitTimeout) {
		return protocol.Failed(nodeID, ErrorCodeTimeout, fmt.Sprintf("llm call %s did not finish within %s", jobID, p.timeout), startedAt), nil
	}

	var failed *queue.JobFailedError
	if errors.As(err, &failed) {
		return protocol.Failed(nodeID, ErrorCodeCallFailed, failed.Message, startedAt), nil
	}

	return nil, fmt.Errorf("failed waiting for llm call %s: %w", jobID, err)
}

func (p *Processor) Validate(config map[string]any) protocol.ValidationResult {
	return protocol.ValidateAgainstSchema(p.Schema(), config)
}
