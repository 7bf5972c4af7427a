package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/try-flowforge/backend/pkg/log"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
	"github.com/try-flowforge/backend/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func TestMain(m *testing.M) {
	code := m.Run()

	if postgresContainer != nil {
		err := testcontainers.TerminateContainer(postgresContainer)
		if err != nil {
			slog.Error("Failed to terminate postgres container", "error", err)
		}
	}

	os.Exit(code)
}

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last
	for _, table := range []string{"node_executions", "workflow_executions", "time_blocks", "workflow_edges", "workflow_nodes", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("flowforge_test"),
			postgres.WithUsername("flowforge"),
			postgres.WithPassword("flowforge"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	p, err := postgresql.NewPersistence(ctx, log.Discard(), databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func handle(v string) *string {
	return &v
}

func branchingDefinition() *models.WorkflowDefinition {
	return &models.WorkflowDefinition{
		ID:            uuid.NewString(),
		UserID:        "user-1",
		Name:          "price alert",
		TriggerNodeID: "trigger",
		Nodes: []*models.WorkflowNode{
			{ID: "trigger", Type: models.NodeTypeTrigger, Config: map[string]any{}},
			{ID: "check", Type: models.NodeTypeIf, Config: map[string]any{
				"leftPath": "price", "operator": "gt", "rightValue": "100",
			}, Position: models.Position{X: 120.5, Y: 40}},
			{ID: "high", Type: models.NodeTypeLog, Config: map[string]any{"message": "high"}},
			{ID: "low", Type: models.NodeTypeLog, Config: map[string]any{"message": "low"}},
		},
		Edges: []*models.WorkflowEdge{
			{ID: "e1", SourceNodeID: "trigger", TargetNodeID: "check"},
			{ID: "e2", SourceNodeID: "check", TargetNodeID: "high", SourceHandle: handle("true"), DataMapping: map[string]string{"value": "leftValue"}},
			{ID: "e3", SourceNodeID: "check", TargetNodeID: "low", SourceHandle: handle("false")},
		},
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "workflow_nodes", "workflow_edges", "workflow_executions", "node_executions", "time_blocks"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestWorkflowRepository_SaveAndGetDefinition(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	definition := branchingDefinition()
	require.NoError(t, p.Workflows().SaveDefinition(ctx, definition))

	loaded, err := p.Workflows().GetDefinition(ctx, definition.ID)
	require.NoError(t, err)

	assert.Equal(t, definition.UserID, loaded.UserID)
	assert.Equal(t, 1, loaded.Version)
	assert.Equal(t, "trigger", loaded.TriggerNodeID)
	require.Len(t, loaded.Nodes, 4)
	assert.Equal(t, []string{"trigger", "check", "high", "low"}, []string{loaded.Nodes[0].ID, loaded.Nodes[1].ID, loaded.Nodes[2].ID, loaded.Nodes[3].ID})
	assert.Equal(t, "gt", loaded.Nodes[1].Config["operator"])
	assert.InDelta(t, 120.5, loaded.Nodes[1].Position.X, 0.001)

	require.Len(t, loaded.Edges, 3)
	assert.Nil(t, loaded.Edges[0].SourceHandle)
	assert.Equal(t, "true", loaded.Edges[1].Handle())
	assert.Equal(t, map[string]string{"value": "leftValue"}, loaded.Edges[1].DataMapping)

	definition.Nodes = definition.Nodes[:2]
	definition.Edges = definition.Edges[:1]
	definition.Version = 2
	require.NoError(t, p.Workflows().SaveDefinition(ctx, definition))

	loaded, err = p.Workflows().GetDefinition(ctx, definition.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Version)
	assert.Len(t, loaded.Nodes, 2)
	assert.Len(t, loaded.Edges, 1)
}

func TestWorkflowRepository_NotFound(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	_, err := p.Workflows().GetDefinition(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))

	err = p.Workflows().UpdateLastExecuted(ctx, "missing", time.Now())
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func newExecution(workflowID string) *models.WorkflowExecution {
	return &models.WorkflowExecution{
		ID:              uuid.NewString(),
		WorkflowID:      workflowID,
		WorkflowVersion: 1,
		UserID:          "user-1",
		TriggeredBy:     "manual",
		Status:          models.ExecutionStatusRunning,
		InitialInput:    map[string]any{"price": 150.0},
		StartedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestExecutionRepository_CreateIsIdempotent(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	definition := branchingDefinition()
	require.NoError(t, p.Workflows().SaveDefinition(ctx, definition))

	execution := newExecution(definition.ID)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			created, err := p.Executions().CreateExecution(ctx, execution)
			assert.NoError(t, err)

			if created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, winners)

	loaded, err := p.Executions().GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, loaded.Status)
	assert.InDelta(t, 150.0, loaded.InitialInput["price"], 0.001)
	assert.Nil(t, loaded.CompletedAt)
}

func TestExecutionRepository_Update(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	definition := branchingDefinition()
	require.NoError(t, p.Workflows().SaveDefinition(ctx, definition))

	execution := newExecution(definition.ID)
	_, err := p.Executions().CreateExecution(ctx, execution)
	require.NoError(t, err)

	completedAt := time.Now().UTC()
	code := models.ErrorCodeWorkflowExecution
	message := "node check failed"
	nodeID := "check"

	execution.Status = models.ExecutionStatusFailed
	execution.CompletedAt = &completedAt
	execution.ErrorCode = &code
	execution.ErrorMessage = &message
	execution.FailedNodeID = &nodeID
	require.NoError(t, p.Executions().UpdateExecution(ctx, execution))

	loaded, err := p.Executions().GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, loaded.Status)
	require.NotNil(t, loaded.ErrorCode)
	assert.Equal(t, code, *loaded.ErrorCode)
	assert.Equal(t, nodeID, *loaded.FailedNodeID)
	assert.NotNil(t, loaded.CompletedAt)

	_, err = p.Executions().GetExecution(ctx, "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))
}

func TestNodeExecutionRepository_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	definition := branchingDefinition()
	require.NoError(t, p.Workflows().SaveDefinition(ctx, definition))

	execution := newExecution(definition.ID)
	_, err := p.Executions().CreateExecution(ctx, execution)
	require.NoError(t, err)

	record := &models.NodeExecutionRecord{
		ExecutionID: execution.ID,
		NodeID:      "check",
		NodeType:    models.NodeTypeIf,
		InputData:   map[string]any{"price": 150.0},
		Status:      models.ExecutionStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	require.NoError(t, p.NodeExecutions().CreateNodeExecution(ctx, record))
	assert.NotEmpty(t, record.ID)

	completedAt := record.StartedAt.Add(15 * time.Millisecond)
	record.Status = models.ExecutionStatusSuccess
	record.OutputData = map[string]any{"result": true, "branchToFollow": "true"}
	record.CompletedAt = &completedAt
	record.DurationMs = 15
	require.NoError(t, p.NodeExecutions().UpdateNodeExecution(ctx, record))

	records, err := p.NodeExecutions().ListNodeExecutions(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ExecutionStatusSuccess, records[0].Status)
	assert.Equal(t, int64(15), records[0].DurationMs)
	assert.Equal(t, map[string]any{"result": true, "branchToFollow": "true"}, records[0].OutputData)

	record.ID = "missing"
	err = p.NodeExecutions().UpdateNodeExecution(ctx, record)
	assert.True(t, persistence.IsNodeExecutionNotFound(err))
}

func TestTimeBlockRepository_RecordTriggerOncePerJob(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	definition := branchingDefinition()
	require.NoError(t, p.Workflows().SaveDefinition(ctx, definition))

	maxRuns := 2
	block := &models.TimeBlock{
		ID:              uuid.NewString(),
		UserID:          "user-1",
		WorkflowID:      definition.ID,
		ScheduleType:    models.ScheduleTypeInterval,
		IntervalSeconds: 60,
		MaxRuns:         &maxRuns,
	}
	require.NoError(t, p.TimeBlocks().SaveTimeBlock(ctx, block))

	active, err := p.TimeBlocks().ListActiveTimeBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 60, active[0].IntervalSeconds)
	assert.Empty(t, active[0].CronExpression)
	require.NotNil(t, active[0].MaxRuns)
	assert.Equal(t, 2, *active[0].MaxRuns)

	moved, err := p.TimeBlocks().RecordTrigger(ctx, block.ID, "job-1")
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = p.TimeBlocks().RecordTrigger(ctx, block.ID, "job-1")
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = p.TimeBlocks().RecordTrigger(ctx, block.ID, "job-2")
	require.NoError(t, err)
	assert.True(t, moved)

	loaded, err := p.TimeBlocks().GetTimeBlock(ctx, block.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.RunCount)
	assert.True(t, loaded.IsExhausted())

	require.NoError(t, p.TimeBlocks().UpdateTimeBlockStatus(ctx, block.ID, models.TimeBlockStatusCompleted))

	active, err = p.TimeBlocks().ListActiveTimeBlocks(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = p.TimeBlocks().RecordTrigger(ctx, "missing", "job-3")
	assert.True(t, persistence.IsTimeBlockNotFound(err))
}
