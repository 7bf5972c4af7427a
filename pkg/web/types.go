// Package web provides HTTP request and response types for the execution API.
package web

import (
	"time"

	"github.com/try-flowforge/backend/pkg/models"
)

// UserIDHeader carries the caller's user id, set by the upstream gateway.
const UserIDHeader = "X-User-ID"

// ExecuteWorkflowRequest is the body of POST /workflows/:id/executions.
type ExecuteWorkflowRequest struct {
	Input       map[string]any `json:"input"`
	TriggeredBy string         `json:"triggeredBy,omitempty" validate:"omitempty,max=64"`
}

// ExecuteWorkflowResponse is returned once the run is queued.
type ExecuteWorkflowResponse struct {
	ExecutionID       string    `json:"executionId"`
	SubscriptionToken string    `json:"subscriptionToken"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// SubscriptionTokenResponse is the body of POST /executions/:id/subscription-token.
type SubscriptionTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ExecutionResponse is an execution row with its node records.
type ExecutionResponse struct {
	Execution      *models.WorkflowExecution     `json:"execution"`
	NodeExecutions []*models.NodeExecutionRecord `json:"nodeExecutions"`
}
