package web

import "github.com/gofiber/fiber/v3"

// Register mounts the API routes on router.
func (h *APIHandlers) Register(router fiber.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/node-types", h.ListNodeTypes)

	w := router.Group("/workflows")
	w.Get("/:id", h.GetWorkflow)
	w.Put("/:id", h.PutWorkflow)
	w.Post("/:id/executions", h.ExecuteWorkflow)

	e := router.Group("/executions")
	e.Get("/:id", h.GetExecution)
	e.Get("/:id/stream", h.StreamExecution)
	e.Post("/:id/subscription-token", h.CreateSubscriptionToken)
}
