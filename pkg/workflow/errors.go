package workflow

import (
	"errors"
	"fmt"

	"github.com/try-flowforge/backend/pkg/models"
)

var (
	ErrMaxStepsExceeded = errors.New("exceeded maximum steps")
	ErrAccessDenied     = errors.New("workflow does not belong to user")
	ErrInvalidWorkflow  = errors.New("invalid workflow definition")
)

// ExecutionError is the failure a run ended with. Err, when set, is the
// underlying cause.
type ExecutionError struct {
	Code    string
	Message string
	NodeID  string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Code, e.NodeID, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// runError is the failure recorded on the execution. The run level code is
// always WORKFLOW_EXECUTION_ERROR; the node's own code stays on its node
// record and node:failed event.
func (e *ExecutionError) runError() *models.ExecutionError {
	return &models.ExecutionError{Code: models.ErrorCodeWorkflowExecution, Message: e.Message, NodeID: e.NodeID}
}

// asExecutionError converts any run error to an ExecutionError, defaulting
// the code to WORKFLOW_EXECUTION_ERROR.
func asExecutionError(err error) *ExecutionError {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}

	return &ExecutionError{Code: models.ErrorCodeWorkflowExecution, Message: err.Error(), Err: err}
}

func maxStepsError(limit int) *ExecutionError {
	return &ExecutionError{
		Code:    models.ErrorCodeMaxSteps,
		Message: fmt.Sprintf("exceeded maximum steps (%d)", limit),
		Err:     ErrMaxStepsExceeded,
	}
}

// IsMaxStepsExceeded reports whether err was caused by the step bound.
func IsMaxStepsExceeded(err error) bool {
	return errors.Is(err, ErrMaxStepsExceeded)
}
