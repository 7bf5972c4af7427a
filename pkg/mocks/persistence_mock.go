package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
)

// MockWorkflowRepository is a mock implementation of persistence.WorkflowRepository interface.
type MockWorkflowRepository struct {
	mock.Mock
}

func (m *MockWorkflowRepository) GetDefinition(ctx context.Context, workflowID string) (*models.WorkflowDefinition, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowDefinition), args.Error(1)
}

func (m *MockWorkflowRepository) SaveDefinition(ctx context.Context, definition *models.WorkflowDefinition) error {
	args := m.Called(ctx, definition)

	return args.Error(0)
}

func (m *MockWorkflowRepository) UpdateLastExecuted(ctx context.Context, workflowID string, at time.Time) error {
	args := m.Called(ctx, workflowID, at)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) (bool, error) {
	args := m.Called(ctx, execution)

	return args.Bool(0), args.Error(1)
}

func (m *MockExecutionRepository) GetExecution(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockExecutionRepository) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

// MockNodeExecutionRepository is a mock implementation of persistence.NodeExecutionRepository interface.
type MockNodeExecutionRepository struct {
	mock.Mock
}

func (m *MockNodeExecutionRepository) CreateNodeExecution(ctx context.Context, record *models.NodeExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockNodeExecutionRepository) UpdateNodeExecution(ctx context.Context, record *models.NodeExecutionRecord) error {
	args := m.Called(ctx, record)

	return args.Error(0)
}

func (m *MockNodeExecutionRepository) ListNodeExecutions(ctx context.Context, executionID string) ([]*models.NodeExecutionRecord, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.NodeExecutionRecord), args.Error(1)
}

// MockTimeBlockRepository is a mock implementation of persistence.TimeBlockRepository interface.
type MockTimeBlockRepository struct {
	mock.Mock
}

func (m *MockTimeBlockRepository) GetTimeBlock(ctx context.Context, id string) (*models.TimeBlock, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.TimeBlock), args.Error(1)
}

func (m *MockTimeBlockRepository) SaveTimeBlock(ctx context.Context, block *models.TimeBlock) error {
	args := m.Called(ctx, block)

	return args.Error(0)
}

func (m *MockTimeBlockRepository) ListActiveTimeBlocks(ctx context.Context) ([]*models.TimeBlock, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.TimeBlock), args.Error(1)
}

func (m *MockTimeBlockRepository) RecordTrigger(ctx context.Context, id string, triggerJobID string) (bool, error) {
	args := m.Called(ctx, id, triggerJobID)

	return args.Bool(0), args.Error(1)
}

func (m *MockTimeBlockRepository) UpdateTimeBlockStatus(ctx context.Context, id string, status models.TimeBlockStatus) error {
	args := m.Called(ctx, id, status)

	return args.Error(0)
}

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	WorkflowRepo      *MockWorkflowRepository
	ExecutionRepo     *MockExecutionRepository
	NodeExecutionRepo *MockNodeExecutionRepository
	TimeBlockRepo     *MockTimeBlockRepository
}

func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		WorkflowRepo:      &MockWorkflowRepository{},
		ExecutionRepo:     &MockExecutionRepository{},
		NodeExecutionRepo: &MockNodeExecutionRepository{},
		TimeBlockRepo:     &MockTimeBlockRepository{},
	}
}

func (m *MockPersistence) Workflows() persistence.WorkflowRepository { return m.WorkflowRepo }

func (m *MockPersistence) Executions() persistence.ExecutionRepository { return m.ExecutionRepo }

func (m *MockPersistence) NodeExecutions() persistence.NodeExecutionRepository {
	return m.NodeExecutionRepo
}

func (m *MockPersistence) TimeBlocks() persistence.TimeBlockRepository { return m.TimeBlockRepo }

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
