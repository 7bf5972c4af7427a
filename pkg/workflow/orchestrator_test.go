package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/try-flowforge/backend/pkg/channels/gochannel"
	"github.com/try-flowforge/backend/pkg/eventbus"
	"github.com/try-flowforge/backend/pkg/events"
	"github.com/try-flowforge/backend/pkg/log"
	"github.com/try-flowforge/backend/pkg/mocks"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence/memory"
	"github.com/try-flowforge/backend/pkg/protocol"
	"github.com/try-flowforge/backend/pkg/registry"
	"github.com/try-flowforge/backend/pkg/testutil"
	"github.com/try-flowforge/backend/pkg/workflow"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, executionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, executionID)

	return nil
}

func (r *recordingInvalidator) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

type panickingProcessor struct{}

func (panickingProcessor) NodeType() models.NodeType { return models.NodeTypeSlack }

func (panickingProcessor) Execute(context.Context, *protocol.NodeExecutionInput) (*protocol.NodeExecutionOutput, error) {
	panic("boom")
}

func (panickingProcessor) Validate(map[string]any) protocol.ValidationResult { return protocol.Valid() }

type harness struct {
	store        *memory.Persistence
	bus          *eventbus.WatermillEventBus
	tokens       *recordingInvalidator
	orchestrator *workflow.Orchestrator
}

func newHarness(t *testing.T, maxSteps int) *harness {
	t.Helper()

	logger := log.Discard()

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(registry.Dependencies{Logger: logger})
	reg.Register(panickingProcessor{})

	pubSub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pubSub, pubSub, logger)

	t.Cleanup(func() {
		_ = bus.Close()
	})

	store := memory.NewPersistence()
	tokens := &recordingInvalidator{}

	return &harness{
		store:        store,
		bus:          bus,
		tokens:       tokens,
		orchestrator: workflow.NewOrchestrator(store, reg, bus, tokens, workflow.Options{MaxSteps: maxSteps}, logger),
	}
}

func (h *harness) save(t *testing.T, definition *models.WorkflowDefinition) {
	t.Helper()

	require.NoError(t, h.store.Workflows().SaveDefinition(context.Background(), definition))
}

func (h *harness) records(t *testing.T, executionID string) map[string]*models.NodeExecutionRecord {
	t.Helper()

	records, err := h.store.NodeExecutions().ListNodeExecutions(context.Background(), executionID)
	require.NoError(t, err)

	byNode := make(map[string]*models.NodeExecutionRecord, len(records))
	for _, record := range records {
		byNode[record.NodeID] = record
	}

	return byNode
}

var (
	node       = testutil.Node
	edge       = testutil.Edge
	branchEdge = testutil.BranchEdge
)

func TestExecuteWorkflow_LinearPropagatesBlocks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.save(t, &models.WorkflowDefinition{
		ID:            "wf-1",
		UserID:        "user-1",
		TriggerNodeID: "trigger",
		Nodes: []*models.WorkflowNode{
			node("trigger", models.NodeTypeTrigger, nil),
			node("log", models.NodeTypeLog, map[string]any{"message": "amount is {{blocks.trigger.amount}}"}),
			node("transform", models.NodeTypeTransform, map[string]any{
				"mapping": map[string]any{
					"amount":  "{{blocks.trigger.amount}}",
					"message": "{{blocks.log.message}}",
				},
			}),
		},
		Edges: []*models.WorkflowEdge{edge("trigger", "log"), edge("log", "transform")},
	})

	execCtx, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{
		WorkflowID:   "wf-1",
		UserID:       "user-1",
		TriggeredBy:  "manual",
		InitialInput: map[string]any{"amount": float64(42)},
		ExecutionID:  "exec-1",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execCtx.Status)
	assert.NotNil(t, execCtx.CompletedAt)
	assert.Equal(t, map[string]any{"amount": float64(42), "message": "amount is 42"}, execCtx.NodeOutputs["transform"])

	trigger, ok := execCtx.NodeOutputs["trigger"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "exec-1", trigger["executionId"])
	assert.Equal(t, "manual", trigger["triggeredBy"])

	records := h.records(t, "exec-1")
	assert.Len(t, records, 2, "passthrough nodes are not recorded")
	assert.Equal(t, models.ExecutionStatusSuccess, records["log"].Status)

	blocks, ok := records["transform"].InputData[protocol.BlocksKey].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, blocks, "trigger")
	assert.Contains(t, blocks, "log")

	row, err := h.store.Executions().GetExecution(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, row.Status)

	_, executed := h.store.LastExecuted("wf-1")
	assert.True(t, executed)
	assert.Equal(t, []string{"exec-1"}, h.tokens.Calls())
}

func TestExecuteWorkflow_DataMapping(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)

	mapped := edge("trigger", "transform")
	mapped.DataMapping = map[string]string{"value": "payload.price"}

	h.save(t, &models.WorkflowDefinition{
		ID: "wf-map",
		Nodes: []*models.WorkflowNode{
			node("trigger", models.NodeTypeStart, nil),
			node("transform", models.NodeTypeTransform, map[string]any{"expression": "{{value}}"}),
		},
		Edges: []*models.WorkflowEdge{mapped},
	})

	execCtx, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{
		WorkflowID:   "wf-map",
		InitialInput: map[string]any{"payload": map[string]any{"price": float64(7)}},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"result": float64(7)}, execCtx.NodeOutputs["transform"])

	records := h.records(t, execCtx.ExecutionID)
	assert.Equal(t, float64(7), records["transform"].InputData["value"])
	assert.NotContains(t, records["transform"].InputData, "payload")
}

func TestExecuteWorkflow_NumericNodeIDs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.save(t, &models.WorkflowDefinition{
		ID: "wf-numeric",
		Nodes: []*models.WorkflowNode{
			node("1", models.NodeTypeTrigger, nil),
			node("2", models.NodeTypeLog, map[string]any{"message": "amount {{blocks.1.amount}}"}),
			node("3", models.NodeTypeTransform, map[string]any{"expression": "{{blocks.1.amount}}"}),
		},
		Edges: []*models.WorkflowEdge{edge("1", "2"), edge("2", "3")},
	})

	execCtx, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{
		WorkflowID:   "wf-numeric",
		InitialInput: map[string]any{"amount": float64(5)},
	})
	require.NoError(t, err)

	logOutput, ok := execCtx.NodeOutputs["2"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "amount 5", logOutput["message"])
	assert.Equal(t, map[string]any{"result": float64(5)}, execCtx.NodeOutputs["3"])
}

func ifWorkflow(id string, withFalseEdge bool) *models.WorkflowDefinition {
	edges := []*models.WorkflowEdge{
		edge("trigger", "check"),
		branchEdge("check", "high", "true"),
	}

	if withFalseEdge {
		edges = append(edges, branchEdge("check", "low", "false"))
	}

	return &models.WorkflowDefinition{
		ID: id,
		Nodes: []*models.WorkflowNode{
			node("trigger", models.NodeTypeTrigger, nil),
			node("check", models.NodeTypeIf, map[string]any{"leftPath": "price", "operator": "gt", "rightValue": 100}),
			node("high", models.NodeTypeLog, map[string]any{"message": "high"}),
			node("low", models.NodeTypeLog, map[string]any{"message": "low"}),
		},
		Edges: edges,
	}
}

func TestExecuteWorkflow_IfBranches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		price    float64
		executed string
		skipped  string
	}{
		{name: "true branch", price: 150, executed: "high", skipped: "low"},
		{name: "false branch", price: 50, executed: "low", skipped: "high"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, 0)
			h.save(t, ifWorkflow("wf-if", true))

			execCtx, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{
				WorkflowID:   "wf-if",
				InitialInput: map[string]any{"price": tt.price},
			})
			require.NoError(t, err)

			assert.Equal(t, models.ExecutionStatusSuccess, execCtx.Status)
			assert.Contains(t, execCtx.NodeOutputs, tt.executed)
			assert.NotContains(t, execCtx.NodeOutputs, tt.skipped)
		})
	}
}

func TestExecuteWorkflow_UnmatchedBranchSucceeds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.save(t, ifWorkflow("wf-if", false))

	execCtx, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{
		WorkflowID:   "wf-if",
		InitialInput: map[string]any{"price": float64(10)},
	})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execCtx.Status)
	assert.Contains(t, execCtx.NodeOutputs, "check")
	assert.NotContains(t, execCtx.NodeOutputs, "high")
}

func TestExecuteWorkflow_SwitchDefault(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.save(t, &models.WorkflowDefinition{
		ID: "wf-switch",
		Nodes: []*models.WorkflowNode{
			node("trigger", models.NodeTypeTrigger, nil),
			node("route", models.NodeTypeSwitch, map[string]any{
				"valuePath": "asset",
				"cases": []any{
					map[string]any{"id": "eth", "operator": "eq", "value": "ETH"},
					map[string]any{"id": "fallback", "isDefault": true},
				},
			}),
			node("eth", models.NodeTypeLog, map[string]any{"message": "eth"}),
			node("other", models.NodeTypeLog, map[string]any{"message": "other"}),
		},
		Edges: []*models.WorkflowEdge{
			edge("trigger", "route"),
			branchEdge("route", "eth", "eth"),
			branchEdge("route", "other", "fallback"),
		},
	})

	execCtx, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{
		WorkflowID:   "wf-switch",
		InitialInput: map[string]any{"asset": "BTC"},
	})
	require.NoError(t, err)

	assert.Contains(t, execCtx.NodeOutputs, "other")
	assert.NotContains(t, execCtx.NodeOutputs, "eth")
}

func TestExecuteWorkflow_StepBound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	h.save(t, &models.WorkflowDefinition{
		ID: "wf-long",
		Nodes: []*models.WorkflowNode{
			node("trigger", models.NodeTypeTrigger, nil),
			node("a", models.NodeTypeLog, map[string]any{"message": "a"}),
			node("b", models.NodeTypeLog, map[string]any{"message": "b"}),
		},
		Edges: []*models.WorkflowEdge{edge("trigger", "a"), edge("a", "b")},
	})

	execCtx, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{WorkflowID: "wf-long", ExecutionID: "exec-long"})
	require.Error(t, err)
	assert.True(t, workflow.IsMaxStepsExceeded(err))

	require.NotNil(t, execCtx)
	assert.Equal(t, models.ExecutionStatusFailed, execCtx.Status)
	assert.Equal(t, models.ErrorCodeWorkflowExecution, execCtx.Error.Code)
	assert.Equal(t, "exceeded maximum steps (2)", execCtx.Error.Message)

	var execErr *workflow.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.ErrorCodeMaxSteps, execErr.Code)

	row, err := h.store.Executions().GetExecution(context.Background(), "exec-long")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, row.Status)
	require.NotNil(t, row.ErrorCode)
	assert.Equal(t, models.ErrorCodeWorkflowExecution, *row.ErrorCode)
}

func TestExecuteWorkflow_CycleStops(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.save(t, &models.WorkflowDefinition{
		ID: "wf-cycle",
		Nodes: []*models.WorkflowNode{
			node("trigger", models.NodeTypeTrigger, nil),
			node("a", models.NodeTypeLog, map[string]any{"message": "a"}),
			node("b", models.NodeTypeLog, map[string]any{"message": "b"}),
		},
		Edges: []*models.WorkflowEdge{edge("trigger", "a"), edge("a", "b"), edge("b", "a")},
	})

	execCtx, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{WorkflowID: "wf-cycle"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execCtx.Status)
	assert.Len(t, h.records(t, execCtx.ExecutionID), 2)
}

func TestExecuteWorkflow_NodeFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		node     *models.WorkflowNode
		wantCode string
	}{
		{
			name:     "unregistered processor",
			node:     node("step", models.NodeTypeSwap, map[string]any{}),
			wantCode: models.ErrorCodeNodeExecution,
		},
		{
			name:     "invalid config",
			node:     node("step", models.NodeTypeDelay, map[string]any{"durationMs": -5}),
			wantCode: models.ErrorCodeInvalidConfig,
		},
		{
			name:     "processor panic",
			node:     node("step", models.NodeTypeSlack, map[string]any{}),
			wantCode: models.ErrorCodeNodeExecution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, 0)
			h.save(t, &models.WorkflowDefinition{
				ID: "wf-fail",
				Nodes: []*models.WorkflowNode{
					node("trigger", models.NodeTypeTrigger, nil),
					tt.node,
					node("after", models.NodeTypeLog, map[string]any{"message": "after"}),
				},
				Edges: []*models.WorkflowEdge{edge("trigger", "step"), edge("step", "after")},
			})

			execCtx, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{WorkflowID: "wf-fail"})
			require.Error(t, err)

			var execErr *workflow.ExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, tt.wantCode, execErr.Code)
			assert.Equal(t, "step", execErr.NodeID)

			assert.Equal(t, models.ExecutionStatusFailed, execCtx.Status)
			assert.NotContains(t, execCtx.NodeOutputs, "after")

			assert.Equal(t, models.ErrorCodeWorkflowExecution, execCtx.Error.Code)
			assert.Equal(t, "step", execCtx.Error.NodeID)

			records := h.records(t, execCtx.ExecutionID)
			assert.Equal(t, models.ExecutionStatusFailed, records["step"].Status)
			assert.NotNil(t, records["step"].Error)

			nodeOutput, ok := records["step"].OutputData.(map[string]any)
			require.True(t, ok)

			nodeErr, ok := nodeOutput["error"].(*protocol.NodeError)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, nodeErr.Code)

			row, err := h.store.Executions().GetExecution(context.Background(), execCtx.ExecutionID)
			require.NoError(t, err)
			require.NotNil(t, row.ErrorCode)
			assert.Equal(t, models.ErrorCodeWorkflowExecution, *row.ErrorCode)
			require.NotNil(t, row.FailedNodeID)
			assert.Equal(t, "step", *row.FailedNodeID)
			assert.Equal(t, []string{execCtx.ExecutionID}, h.tokens.Calls())
		})
	}
}

func TestExecuteWorkflow_ContinueOnError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.save(t, &models.WorkflowDefinition{
		ID: "wf-continue",
		Nodes: []*models.WorkflowNode{
			node("trigger", models.NodeTypeTrigger, nil),
			node("step", models.NodeTypeSwap, map[string]any{"continueOnError": true}),
			node("after", models.NodeTypeLog, map[string]any{"message": "after"}),
		},
		Edges: []*models.WorkflowEdge{edge("trigger", "step"), edge("step", "after")},
	})

	execCtx, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{WorkflowID: "wf-continue"})
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusSuccess, execCtx.Status)
	assert.Contains(t, execCtx.NodeOutputs, "after")

	records := h.records(t, execCtx.ExecutionID)
	assert.Equal(t, models.ExecutionStatusFailed, records["step"].Status)
	assert.Equal(t, models.ExecutionStatusSuccess, records["after"].Status)
}

func TestExecuteWorkflow_IdempotentResume(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.save(t, ifWorkflow("wf-if", true))

	req := workflow.ExecuteRequest{
		WorkflowID:   "wf-if",
		InitialInput: map[string]any{"price": float64(150)},
		ExecutionID:  "exec-same",
	}

	first, err := h.orchestrator.ExecuteWorkflow(context.Background(), req)
	require.NoError(t, err)

	second, err := h.orchestrator.ExecuteWorkflow(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.NodeOutputs["high"], second.NodeOutputs["high"])
	assert.Len(t, h.records(t, "exec-same"), 2)
	assert.Len(t, h.tokens.Calls(), 1, "a resumed execution is not finalized again")
}

func TestExecuteWorkflow_ConcurrentDuplicates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.save(t, ifWorkflow("wf-if", true))

	req := workflow.ExecuteRequest{
		WorkflowID:   "wf-if",
		InitialInput: map[string]any{"price": float64(150)},
		ExecutionID:  "exec-race",
	}

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			execCtx, err := h.orchestrator.ExecuteWorkflow(context.Background(), req)
			assert.NoError(t, err)
			assert.NotNil(t, execCtx)
		}()
	}

	wg.Wait()

	assert.Len(t, h.records(t, "exec-race"), 2)
	assert.Len(t, h.tokens.Calls(), 1)

	row, err := h.store.Executions().GetExecution(context.Background(), "exec-race")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, row.Status)
}

func TestExecuteWorkflow_Events(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.save(t, &models.WorkflowDefinition{
		ID: "wf-events",
		Nodes: []*models.WorkflowNode{
			node("trigger", models.NodeTypeTrigger, nil),
			node("log", models.NodeTypeLog, map[string]any{"message": "hello"}),
		},
		Edges: []*models.WorkflowEdge{edge("trigger", "log")},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := h.bus.SubscribeExecution(ctx, "exec-events")
	require.NoError(t, err)

	_, err = h.orchestrator.ExecuteWorkflow(ctx, workflow.ExecuteRequest{WorkflowID: "wf-events", ExecutionID: "exec-events"})
	require.NoError(t, err)

	var received []events.EventType

	for event := range ch {
		received = append(received, event.Type)

		if event.Type.IsTerminal() {
			break
		}
	}

	assert.Equal(t, []events.EventType{
		events.ExecutionStarted,
		events.NodeStarted,
		events.NodeCompleted,
		events.ExecutionCompleted,
	}, received)
}

func TestExecuteWorkflow_Errors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.save(t, &models.WorkflowDefinition{
		ID:     "wf-owned",
		UserID: "owner",
		Nodes:  []*models.WorkflowNode{node("trigger", models.NodeTypeTrigger, nil)},
	})
	h.save(t, &models.WorkflowDefinition{
		ID:    "wf-no-entry",
		Nodes: []*models.WorkflowNode{node("log", models.NodeTypeLog, map[string]any{"message": "x"})},
	})

	_, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{WorkflowID: "missing"})
	require.Error(t, err)

	_, err = h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{WorkflowID: "wf-owned", UserID: "intruder"})
	assert.True(t, errors.Is(err, workflow.ErrAccessDenied))

	execCtx, err := h.orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{WorkflowID: "wf-no-entry"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoTriggerNode)
	assert.Equal(t, models.ExecutionStatusFailed, execCtx.Status)
	assert.Equal(t, models.ErrorCodeWorkflowExecution, execCtx.Error.Code)
}

func TestExecuteWorkflow_PublishFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	logger := log.Discard()

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(registry.Dependencies{Logger: logger})

	publisher := &mocks.MockPublisher{}
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	store := memory.NewPersistence()
	require.NoError(t, store.Workflows().SaveDefinition(context.Background(), testutil.LogWorkflow("wf-1", "user-1")))

	orchestrator := workflow.NewOrchestrator(store, reg, publisher, nil, workflow.Options{}, logger)

	execCtx, err := orchestrator.ExecuteWorkflow(context.Background(), workflow.ExecuteRequest{
		WorkflowID:  "wf-1",
		UserID:      "user-1",
		TriggeredBy: "manual",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, execCtx.Status)

	// started and finished for the run, started and completed for the log node
	publisher.AssertNumberOfCalls(t, "Publish", 4)
}
