package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/try-flowforge/backend/pkg/persistence"
	"github.com/try-flowforge/backend/pkg/workflow"
)

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func unauthorized(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusUnauthorized, "unauthorized", detail)
}

func forbidden(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusForbidden, "forbidden", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func conflict(c fiber.Ctx, problemType, detail string) error {
	return problem(c, fiber.StatusConflict, problemType, detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleError maps domain errors to problem responses.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsWorkflowNotFound(err):
		return problem(c, fiber.StatusNotFound, "workflow_not_found", "workflow not found")
	case persistence.IsExecutionNotFound(err):
		return problem(c, fiber.StatusNotFound, "execution_not_found", "execution not found")
	case errors.Is(err, workflow.ErrInvalidWorkflow):
		return badRequest(c, err.Error())
	case errors.Is(err, workflow.ErrAccessDenied):
		return forbidden(c, "workflow does not belong to user")
	default:
		return internalError(c, err)
	}
}
