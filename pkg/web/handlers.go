package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/try-flowforge/backend/pkg/eventbus"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
	"github.com/try-flowforge/backend/pkg/queue"
	"github.com/try-flowforge/backend/pkg/registry"
	"github.com/try-flowforge/backend/pkg/subscription"
	"github.com/try-flowforge/backend/pkg/workflow"
)

const (
	TriggeredByManual = "manual"

	defaultHeartbeat = 15 * time.Second
)

// Jobs enqueues workflow runs.
type Jobs interface {
	Add(ctx context.Context, queueName string, payload any, opts queue.AddOptions) (string, bool, error)
}

// Tokens issues and checks subscription tokens.
type Tokens interface {
	Generate(ctx context.Context, executionID, userID string) (*subscription.Token, error)
	Verify(ctx context.Context, executionID, token string) (subscription.Verification, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Store     persistence.Persistence
	Workflows *workflow.Repository
	Registry  *registry.Registry
	Jobs      Jobs
	Tokens    Tokens
	Events    eventbus.Subscriber
	Checks    map[string]HealthCheck
	Heartbeat time.Duration
	Logger    *slog.Logger
}

type APIHandlers struct {
	store     persistence.Persistence
	workflows *workflow.Repository
	registry  *registry.Registry
	jobs      Jobs
	tokens    Tokens
	events    eventbus.Subscriber
	checks    map[string]HealthCheck
	heartbeat time.Duration
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(deps Dependencies) *APIHandlers {
	heartbeat := deps.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}

	return &APIHandlers{
		store:     deps.Store,
		workflows: deps.Workflows,
		registry:  deps.Registry,
		jobs:      deps.Jobs,
		tokens:    deps.Tokens,
		events:    deps.Events,
		checks:    deps.Checks,
		heartbeat: heartbeat,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    deps.Logger.With("module", "web"),
	}
}

// userID reads the caller from the gateway header. An empty result means the
// request was already answered.
func (h *APIHandlers) userID(c fiber.Ctx) (string, error) {
	userID := c.Get(UserIDHeader)

	err := h.validator.Var(userID, "required,max=128")
	if err != nil {
		return "", unauthorized(c, "missing or invalid "+UserIDHeader+" header")
	}

	return userID, nil
}

func (h *APIHandlers) PutWorkflow(c fiber.Ctx) error {
	userID, err := h.userID(c)
	if userID == "" {
		return err
	}

	var definition models.WorkflowDefinition
	if err := c.Bind().JSON(&definition); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	definition.ID = c.Params("id")
	definition.UserID = userID

	existing, err := h.workflows.Get(c.Context(), definition.ID)
	switch {
	case err == nil:
		if existing.UserID != "" && existing.UserID != userID {
			return forbidden(c, "workflow does not belong to user")
		}
	case !persistence.IsWorkflowNotFound(err):
		return internalError(c, err)
	}

	err = h.workflows.Save(c.Context(), &definition)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	userID, err := h.userID(c)
	if userID == "" {
		return err
	}

	definition, err := h.workflows.Get(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	if definition.UserID != "" && definition.UserID != userID {
		return forbidden(c, "workflow does not belong to user")
	}

	return c.JSON(definition)
}

// ExecuteWorkflow queues a run and hands back a token for its event stream.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	userID, err := h.userID(c)
	if userID == "" {
		return err
	}

	var req ExecuteWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflowID := c.Params("id")

	definition, err := h.workflows.Get(c.Context(), workflowID)
	if err != nil {
		return handleError(c, err)
	}

	if definition.UserID != "" && definition.UserID != userID {
		return forbidden(c, "workflow does not belong to user")
	}

	triggeredBy := req.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = TriggeredByManual
	}

	executionID := uuid.NewString()

	token, err := h.tokens.Generate(c.Context(), executionID, userID)
	if err != nil {
		return internalError(c, err)
	}

	_, _, err = h.jobs.Add(c.Context(), queue.WorkflowExecution, queue.WorkflowExecutionJob{
		WorkflowID:   workflowID,
		UserID:       userID,
		TriggeredBy:  triggeredBy,
		ExecutionID:  executionID,
		InitialInput: req.Input,
	}, queue.AddOptions{JobID: executionID})
	if err != nil {
		return internalError(c, err)
	}

	h.logger.InfoContext(c.Context(), "Workflow execution queued", "workflow_id", workflowID, "execution_id", executionID, "user_id", userID)

	return c.Status(fiber.StatusAccepted).JSON(ExecuteWorkflowResponse{
		ExecutionID:       executionID,
		SubscriptionToken: token.Token,
		ExpiresAt:         token.ExpiresAt,
	})
}

// ownedExecution loads an execution and checks the caller owns it. A nil
// execution means the request was already answered.
func (h *APIHandlers) ownedExecution(c fiber.Ctx, userID string) (*models.WorkflowExecution, error) {
	execution, err := h.store.Executions().GetExecution(c.Context(), c.Params("id"))
	if err != nil {
		return nil, handleError(c, err)
	}

	if execution.UserID != userID {
		return nil, notFound(c, "execution not found")
	}

	return execution, nil
}

func (h *APIHandlers) CreateSubscriptionToken(c fiber.Ctx) error {
	userID, err := h.userID(c)
	if userID == "" {
		return err
	}

	execution, err := h.ownedExecution(c, userID)
	if execution == nil {
		return err
	}

	// Tokens are revoked when a run finishes; one issued afterwards would
	// outlive it.
	if execution.Status.IsTerminal() {
		return conflict(c, "execution_finished", "execution already "+string(execution.Status))
	}

	token, err := h.tokens.Generate(c.Context(), execution.ID, userID)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(SubscriptionTokenResponse{Token: token.Token, ExpiresAt: token.ExpiresAt})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	userID, err := h.userID(c)
	if userID == "" {
		return err
	}

	execution, err := h.ownedExecution(c, userID)
	if execution == nil {
		return err
	}

	records, err := h.store.NodeExecutions().ListNodeExecutions(c.Context(), execution.ID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(ExecutionResponse{Execution: execution, NodeExecutions: records})
}

func (h *APIHandlers) ListNodeTypes(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"nodeTypes": h.registry.Describe()})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checkers := fiber.Map{}
	healthy := true

	report := func(name string, err error) {
		if err != nil {
			healthy = false
			checkers[name] = fiber.Map{"status": "unhealthy", "error": err.Error()}

			return
		}

		checkers[name] = fiber.Map{"status": "healthy"}
	}

	report("store", h.store.HealthCheck(ctx))

	for name, check := range h.checks {
		report(name, check(ctx))
	}

	status := "healthy"
	httpStatus := http.StatusOK

	if !healthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"checkers":  checkers,
		"timestamp": time.Now().UTC(),
	})
}
