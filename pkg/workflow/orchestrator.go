// Package workflow runs workflow graphs node by node.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/try-flowforge/backend/pkg/eventbus"
	"github.com/try-flowforge/backend/pkg/events"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/nodes/trigger"
	"github.com/try-flowforge/backend/pkg/otelhelper"
	"github.com/try-flowforge/backend/pkg/persistence"
	"github.com/try-flowforge/backend/pkg/protocol"
	"github.com/try-flowforge/backend/pkg/template"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultMaxSteps = 100

type ProcessorRegistry interface {
	GetProcessor(nodeType models.NodeType) (protocol.NodeProcessor, error)
}

// TokenInvalidator revokes the subscription tokens of a finished execution.
type TokenInvalidator interface {
	Invalidate(ctx context.Context, executionID string) error
}

type ExecuteRequest struct {
	WorkflowID   string
	UserID       string
	TriggeredBy  string
	InitialInput map[string]any
	// ExecutionID makes the call idempotent. A fresh id is generated when empty.
	ExecutionID string
}

type Options struct {
	MaxSteps int
	Tracer   trace.Tracer
}

type Orchestrator struct {
	store     persistence.Persistence
	registry  ProcessorRegistry
	publisher eventbus.Publisher
	tokens    TokenInvalidator
	maxSteps  int
	tracer    trace.Tracer
	logger    *slog.Logger
}

func NewOrchestrator(
	store persistence.Persistence,
	registry ProcessorRegistry,
	publisher eventbus.Publisher,
	tokens TokenInvalidator,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}

	if opts.Tracer == nil {
		opts.Tracer = otelhelper.NoopTracer()
	}

	return &Orchestrator{
		store:     store,
		registry:  registry,
		publisher: publisher,
		tokens:    tokens,
		maxSteps:  opts.MaxSteps,
		tracer:    opts.Tracer,
		logger:    logger.With("module", "orchestrator"),
	}
}

// ExecuteWorkflow runs a workflow to completion and returns the final context.
//
// A run that ends FAILED returns its context together with an *ExecutionError.
// Errors raised before the execution row exists are returned with a nil
// context. When req.ExecutionID names an existing execution, its stored state
// is returned untouched.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, req ExecuteRequest) (execCtx *models.WorkflowExecutionContext, err error) {
	if req.ExecutionID == "" {
		req.ExecutionID = uuid.NewString()
	}

	logger := o.logger.With("execution_id", req.ExecutionID, "workflow_id", req.WorkflowID)

	existing, err := o.loadExisting(ctx, req.ExecutionID)
	if err != nil || existing != nil {
		if existing != nil {
			logger.InfoContext(ctx, "Execution already exists, returning stored state", "status", existing.Status)
		}

		return existing, err
	}

	definition, err := o.store.Workflows().GetDefinition(ctx, req.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %s: %w", req.WorkflowID, err)
	}

	if definition.UserID != "" && req.UserID != "" && definition.UserID != req.UserID {
		return nil, fmt.Errorf("%w: %s", ErrAccessDenied, req.WorkflowID)
	}

	err = definition.Validate()
	if err != nil {
		logger.WarnContext(ctx, "Workflow graph has structural errors", "error", err)
	}

	row := &models.WorkflowExecution{
		ID:              req.ExecutionID,
		WorkflowID:      definition.ID,
		WorkflowVersion: definition.Version,
		UserID:          req.UserID,
		TriggeredBy:     req.TriggeredBy,
		Status:          models.ExecutionStatusPending,
		InitialInput:    req.InitialInput,
		StartedAt:       time.Now().UTC(),
	}

	created, err := o.store.Executions().CreateExecution(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution %s: %w", req.ExecutionID, err)
	}

	if !created {
		logger.InfoContext(ctx, "Execution was created concurrently, returning stored state")

		return o.loadExisting(ctx, req.ExecutionID)
	}

	execCtx = models.NewExecutionContext(row.ID, row.WorkflowID, row.UserID, row.TriggeredBy, row.InitialInput)
	execCtx.StartedAt = row.StartedAt

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "workflow.execute",
		attribute.String(otelhelper.ExecutionIDKey, row.ID),
		attribute.String(otelhelper.WorkflowIDKey, row.WorkflowID),
		attribute.String(otelhelper.UserIDKey, row.UserID),
		attribute.String(otelhelper.TriggeredByKey, row.TriggeredBy),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "Execution panicked", "panic", r, "stack", string(debug.Stack()))

			err = &ExecutionError{Code: models.ErrorCodeWorkflowExecution, Message: fmt.Sprintf("panic: %v", r)}
		}

		if err != nil {
			err = asExecutionError(err)
			otelhelper.SetError(span, err)
		}

		finalizeErr := o.finalize(ctx, logger, execCtx, row, err)
		if finalizeErr != nil && err == nil {
			err = asExecutionError(finalizeErr)
		}
	}()

	row.Status = models.ExecutionStatusRunning
	execCtx.Status = models.ExecutionStatusRunning

	err = o.store.Executions().UpdateExecution(ctx, row)
	if err != nil {
		return execCtx, fmt.Errorf("failed to mark execution running: %w", err)
	}

	o.publish(ctx, logger, events.NewExecutionStarted(execCtx))
	logger.InfoContext(ctx, "Execution started", "triggered_by", row.TriggeredBy)

	return execCtx, o.run(ctx, logger, definition, execCtx)
}

func (o *Orchestrator) loadExisting(ctx context.Context, executionID string) (*models.WorkflowExecutionContext, error) {
	row, err := o.store.Executions().GetExecution(ctx, executionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}

	records, err := o.store.NodeExecutions().ListNodeExecutions(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load node executions of %s: %w", executionID, err)
	}

	return models.ContextFromExecution(row, records), nil
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, definition *models.WorkflowDefinition, execCtx *models.WorkflowExecutionContext) error {
	current, err := definition.EntryNode()
	if err != nil {
		return &ExecutionError{Code: models.ErrorCodeWorkflowExecution, Message: err.Error(), Err: err}
	}

	visited := map[string]bool{}
	steps := 0

	for current != nil {
		if visited[current.ID] {
			logger.InfoContext(ctx, "Node already visited, stopping traversal", "node_id", current.ID)

			return nil
		}

		steps++
		if steps > o.maxSteps {
			return maxStepsError(o.maxSteps)
		}

		err := ctx.Err()
		if err != nil {
			return &ExecutionError{Code: models.ErrorCodeWorkflowExecution, Message: "execution cancelled", NodeID: current.ID, Err: err}
		}

		visited[current.ID] = true
		execCtx.CurrentNodeID = current.ID

		var output any

		if current.Type.IsPassthrough() {
			output = trigger.Output(execCtx, time.Now())
			execCtx.NodeOutputs[current.ID] = output
		} else {
			output, err = o.executeNode(ctx, logger, definition, current, execCtx)
			if err != nil {
				return err
			}
		}

		current = nextNode(ctx, logger, definition, current, output)
	}

	return nil
}

// executeNode runs one non-passthrough node and records it. The returned
// error is either a bookkeeping failure or the node's escalated failure.
func (o *Orchestrator) executeNode(
	ctx context.Context,
	logger *slog.Logger,
	definition *models.WorkflowDefinition,
	node *models.WorkflowNode,
	execCtx *models.WorkflowExecutionContext,
) (any, error) {
	logger = logger.With("node_id", node.ID, "node_type", node.Type)

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "workflow.node",
		attribute.String(otelhelper.ExecutionIDKey, execCtx.ExecutionID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	input := CollectInput(definition, node, execCtx)
	startedAt := time.Now().UTC()

	record := &models.NodeExecutionRecord{
		ExecutionID: execCtx.ExecutionID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		InputData:   input,
		Status:      models.ExecutionStatusPending,
		StartedAt:   startedAt,
	}

	err := o.store.NodeExecutions().CreateNodeExecution(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to create node execution for %s: %w", node.ID, err)
	}

	result := o.prepareAndRun(ctx, logger, node, input, execCtx, record, startedAt)

	completedAt := time.Now().UTC()
	duration := completedAt.Sub(startedAt)

	record.CompletedAt = &completedAt
	record.DurationMs = duration.Milliseconds()

	if result.Success {
		record.Status = models.ExecutionStatusSuccess
		record.OutputData = result.Output
	} else {
		message := result.Error.Message
		record.Status = models.ExecutionStatusFailed
		record.Error = &message
		record.OutputData = map[string]any{"error": result.Error}
	}

	err = o.store.NodeExecutions().UpdateNodeExecution(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to update node execution for %s: %w", node.ID, err)
	}

	if result.Success {
		execCtx.NodeOutputs[node.ID] = result.Output
		o.publish(ctx, logger, events.NewNodeCompleted(execCtx, node, result.Output, duration))
		logger.DebugContext(ctx, "Node completed", "duration_ms", record.DurationMs)

		return result.Output, nil
	}

	code := result.Error.Code
	if code == "" {
		code = models.ErrorCodeNodeExecution
	}

	o.publish(ctx, logger, events.NewNodeFailed(execCtx, node, code, result.Error.Message, duration))

	nodeErr := &ExecutionError{Code: code, Message: result.Error.Message, NodeID: node.ID, Err: result.Error}
	otelhelper.SetError(span, nodeErr, attribute.String(otelhelper.NodeIDKey, node.ID))

	if node.ContinueOnError() {
		logger.WarnContext(ctx, "Node failed, continuing", "code", code, "error", result.Error.Message)

		output := map[string]any{"success": false, "error": result.Error}
		execCtx.NodeOutputs[node.ID] = output

		return output, nil
	}

	logger.ErrorContext(ctx, "Node failed", "code", code, "error", result.Error.Message)

	return nil, nodeErr
}

// prepareAndRun resolves the processor, validates config and executes the
// node. It always returns an output; failures are reported through it.
//
// The stored config is validated, not the rendered one: a placeholder is a
// string until it resolves, and a lone placeholder takes the type of its value.
func (o *Orchestrator) prepareAndRun(
	ctx context.Context,
	logger *slog.Logger,
	node *models.WorkflowNode,
	input map[string]any,
	execCtx *models.WorkflowExecutionContext,
	record *models.NodeExecutionRecord,
	startedAt time.Time,
) *protocol.NodeExecutionOutput {
	processor, err := o.registry.GetProcessor(node.Type)
	if err != nil {
		return protocol.Failed(node.ID, models.ErrorCodeNodeExecution, err.Error(), startedAt)
	}

	validation := processor.Validate(node.Config)
	if !validation.Valid {
		return protocol.Failed(node.ID, models.ErrorCodeInvalidConfig, validationMessage(validation), startedAt)
	}

	config := template.RenderConfig(node.Config, input)

	record.Status = models.ExecutionStatusRunning

	err = o.store.NodeExecutions().UpdateNodeExecution(ctx, record)
	if err != nil {
		logger.WarnContext(ctx, "Failed to mark node execution running", "error", err)
	}

	o.publish(ctx, logger, events.NewNodeStarted(execCtx, node))

	output, err := safeExecute(ctx, processor, &protocol.NodeExecutionInput{
		NodeID:           node.ID,
		NodeType:         node.Type,
		NodeConfig:       config,
		InputData:        input,
		ExecutionContext: execCtx,
	})
	if err != nil {
		return protocol.Failed(node.ID, models.ErrorCodeNodeExecution, err.Error(), startedAt)
	}

	if output == nil {
		return protocol.Failed(node.ID, models.ErrorCodeNodeExecution, "processor returned no output", startedAt)
	}

	if !output.Success && output.Error == nil {
		output.Error = &protocol.NodeError{Code: models.ErrorCodeNodeExecution, Message: "node failed"}
	}

	return output
}

func safeExecute(ctx context.Context, processor protocol.NodeProcessor, input *protocol.NodeExecutionInput) (output *protocol.NodeExecutionOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panicked: %v", r)
		}
	}()

	return processor.Execute(ctx, input)
}

func validationMessage(validation protocol.ValidationResult) string {
	if len(validation.Errors) == 0 {
		return "invalid configuration"
	}

	return strings.Join(validation.Errors, "; ")
}

// finalize writes the terminal state of a run. It runs detached from ctx
// cancellation so a timed-out job still leaves a terminal row.
func (o *Orchestrator) finalize(
	ctx context.Context,
	logger *slog.Logger,
	execCtx *models.WorkflowExecutionContext,
	row *models.WorkflowExecution,
	runErr error,
) error {
	ctx = context.WithoutCancel(ctx)
	completedAt := time.Now().UTC()

	if runErr != nil {
		execErr := asExecutionError(runErr)
		execCtx.Status = models.ExecutionStatusFailed
		execCtx.Error = execErr.runError()

		row.ErrorCode = &execCtx.Error.Code
		row.ErrorMessage = &execErr.Message

		if execErr.NodeID != "" {
			row.FailedNodeID = &execErr.NodeID
		}
	} else if !execCtx.Status.IsTerminal() {
		execCtx.Status = models.ExecutionStatusSuccess
	}

	execCtx.CompletedAt = &completedAt
	row.Status = execCtx.Status
	row.CompletedAt = &completedAt

	var errs []error

	err := o.store.Executions().UpdateExecution(ctx, row)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist execution result", "status", row.Status, "error", err)
		errs = append(errs, fmt.Errorf("failed to persist execution result: %w", err))
	}

	err = o.store.Workflows().UpdateLastExecuted(ctx, row.WorkflowID, completedAt)
	if err != nil {
		logger.WarnContext(ctx, "Failed to update last executed time", "error", err)
	}

	o.publish(ctx, logger, events.NewExecutionFinished(execCtx))

	if o.tokens != nil {
		err = o.tokens.Invalidate(ctx, row.ID)
		if err != nil {
			logger.WarnContext(ctx, "Failed to invalidate subscription tokens", "error", err)
		}
	}

	logger.InfoContext(ctx, "Execution finished",
		"status", row.Status,
		"duration_ms", completedAt.Sub(row.StartedAt).Milliseconds(),
	)

	return errors.Join(errs...)
}

func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, event *events.ExecutionEvent) {
	if o.publisher == nil {
		return
	}

	err := o.publisher.Publish(ctx, event)
	if err != nil {
		logger.WarnContext(ctx, "Failed to publish execution event", "event_type", event.Type, "error", err)
	}
}
