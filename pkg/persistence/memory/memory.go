// Package memory provides an in-process graph store used by tests and local runs.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
)

// Persistence keeps every repository in maps guarded by one mutex.
type Persistence struct {
	mu             sync.Mutex
	workflows      map[string]*models.WorkflowDefinition
	lastExecuted   map[string]time.Time
	executions     map[string]*models.WorkflowExecution
	nodeExecutions map[string][]*models.NodeExecutionRecord
	timeBlocks     map[string]*models.TimeBlock
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:      make(map[string]*models.WorkflowDefinition),
		lastExecuted:   make(map[string]time.Time),
		executions:     make(map[string]*models.WorkflowExecution),
		nodeExecutions: make(map[string][]*models.NodeExecutionRecord),
		timeBlocks:     make(map[string]*models.TimeBlock),
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository { return (*workflowRepo)(p) }
func (p *Persistence) Executions() persistence.ExecutionRepository { return (*executionRepo)(p) }
func (p *Persistence) NodeExecutions() persistence.NodeExecutionRepository { return (*nodeExecutionRepo)(p) }
func (p *Persistence) TimeBlocks() persistence.TimeBlockRepository { return (*timeBlockRepo)(p) }

func (p *Persistence) HealthCheck(context.Context) error { return nil }
func (p *Persistence) Close(context.Context) error { return nil }

// LastExecuted returns when a workflow was last run.
func (p *Persistence) LastExecuted(workflowID string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	at, ok := p.lastExecuted[workflowID]

	return at, ok
}

type workflowRepo Persistence

func (r *workflowRepo) GetDefinition(_ context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	definition, ok := r.workflows[workflowID]
	if !ok {
		return nil, persistence.NewWorkflowError("GetDefinition", workflowID, persistence.ErrWorkflowNotFound)
	}

	clone := *definition
	clone.Nodes = slices.Clone(definition.Nodes)
	clone.Edges = slices.Clone(definition.Edges)

	return &clone, nil
}

func (r *workflowRepo) SaveDefinition(_ context.Context, definition *models.WorkflowDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if definition.ID == "" {
		definition.ID = uuid.NewString()
	}

	if definition.Version == 0 {
		definition.Version = 1
	}

	clone := *definition
	r.workflows[definition.ID] = &clone

	return nil
}

func (r *workflowRepo) UpdateLastExecuted(_ context.Context, workflowID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[workflowID]; !ok {
		return persistence.NewWorkflowError("UpdateLastExecuted", workflowID, persistence.ErrWorkflowNotFound)
	}

	r.lastExecuted[workflowID] = at

	return nil
}

type executionRepo Persistence

func (r *executionRepo) CreateExecution(_ context.Context, execution *models.WorkflowExecution) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executions[execution.ID]; exists {
		return false, nil
	}

	r.executions[execution.ID] = cloneExecution(execution)

	return true, nil
}

func (r *executionRepo) GetExecution(_ context.Context, executionID string) (*models.WorkflowExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.executions[executionID]
	if !ok {
		return nil, persistence.NewExecutionError("GetExecution", executionID, persistence.ErrExecutionNotFound)
	}

	return cloneExecution(execution), nil
}

func (r *executionRepo) UpdateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executions[execution.ID]; !ok {
		return persistence.NewExecutionError("UpdateExecution", execution.ID, persistence.ErrExecutionNotFound)
	}

	r.executions[execution.ID] = cloneExecution(execution)

	return nil
}

func cloneExecution(execution *models.WorkflowExecution) *models.WorkflowExecution {
	clone := *execution
	clone.InitialInput = maps.Clone(execution.InitialInput)
	clone.Metadata = maps.Clone(execution.Metadata)

	return &clone
}

type nodeExecutionRepo Persistence

func (r *nodeExecutionRepo) CreateNodeExecution(_ context.Context, record *models.NodeExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	clone := *record
	r.nodeExecutions[record.ExecutionID] = append(r.nodeExecutions[record.ExecutionID], &clone)

	return nil
}

func (r *nodeExecutionRepo) UpdateNodeExecution(_ context.Context, record *models.NodeExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := r.nodeExecutions[record.ExecutionID]
	for i, existing := range records {
		if existing.ID == record.ID {
			clone := *record
			records[i] = &clone

			return nil
		}
	}

	return persistence.NewNodeExecutionError("UpdateNodeExecution", record.ExecutionID, record.NodeID, persistence.ErrNodeExecutionNotFound)
}

func (r *nodeExecutionRepo) ListNodeExecutions(_ context.Context, executionID string) ([]*models.NodeExecutionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records := make([]*models.NodeExecutionRecord, 0, len(r.nodeExecutions[executionID]))
	for _, record := range r.nodeExecutions[executionID] {
		clone := *record
		records = append(records, &clone)
	}

	return records, nil
}

type timeBlockRepo Persistence

func (r *timeBlockRepo) GetTimeBlock(_ context.Context, id string) (*models.TimeBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	block, ok := r.timeBlocks[id]
	if !ok {
		return nil, persistence.NewTimeBlockError("GetTimeBlock", id, persistence.ErrTimeBlockNotFound)
	}

	clone := *block

	return &clone, nil
}

func (r *timeBlockRepo) SaveTimeBlock(_ context.Context, block *models.TimeBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if block.CreatedAt.IsZero() {
		block.CreatedAt = now
	}

	block.UpdatedAt = now

	if block.Status == "" {
		block.Status = models.TimeBlockStatusActive
	}

	clone := *block

	if existing, ok := r.timeBlocks[block.ID]; ok {
		clone.RunCount = existing.RunCount
		clone.LastTriggerJobID = existing.LastTriggerJobID
	}

	r.timeBlocks[block.ID] = &clone

	return nil
}

func (r *timeBlockRepo) ListActiveTimeBlocks(context.Context) ([]*models.TimeBlock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	blocks := make([]*models.TimeBlock, 0)

	for _, block := range r.timeBlocks {
		if block.Status == models.TimeBlockStatusActive {
			clone := *block
			blocks = append(blocks, &clone)
		}
	}

	slices.SortFunc(blocks, func(a, b *models.TimeBlock) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return blocks, nil
}

func (r *timeBlockRepo) RecordTrigger(_ context.Context, id string, triggerJobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	block, ok := r.timeBlocks[id]
	if !ok {
		return false, persistence.NewTimeBlockError("RecordTrigger", id, persistence.ErrTimeBlockNotFound)
	}

	if block.LastTriggerJobID != nil && *block.LastTriggerJobID == triggerJobID {
		return false, nil
	}

	block.RunCount++
	block.LastTriggerJobID = &triggerJobID
	block.UpdatedAt = time.Now().UTC()

	return true, nil
}

func (r *timeBlockRepo) UpdateTimeBlockStatus(_ context.Context, id string, status models.TimeBlockStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	block, ok := r.timeBlocks[id]
	if !ok {
		return persistence.NewTimeBlockError("UpdateTimeBlockStatus", id, persistence.ErrTimeBlockNotFound)
	}

	block.Status = status
	block.UpdatedAt = time.Now().UTC()

	return nil
}
