package web

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/try-flowforge/backend/pkg/events"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/persistence"
)

// StreamExecution relays the events of one execution as server-sent events
// until the execution ends or the client goes away.
func (h *APIHandlers) StreamExecution(c fiber.Ctx) error {
	executionID := c.Params("id")
	token := c.Query("token")

	if token == "" {
		return unauthorized(c, "missing subscription token")
	}

	verification, err := h.tokens.Verify(c.Context(), executionID, token)
	if err != nil {
		return internalError(c, err)
	}

	if !verification.Valid {
		return unauthorized(c, "invalid or expired subscription token")
	}

	// The stream outlives the handler, so it gets its own context.
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := h.events.SubscribeExecution(ctx, executionID)
	if err != nil {
		cancel()

		return internalError(c, err)
	}

	// Loaded after subscribing: a run finishing in between is either in the
	// row or on the stream.
	finished, err := h.finishedEvent(ctx, executionID)
	if err != nil {
		cancel()

		return internalError(c, err)
	}

	logger := h.logger.With("execution_id", executionID, "user_id", verification.UserID)
	logger.InfoContext(ctx, "Execution stream opened")

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		reason := h.relay(ctx, w, stream, finished)
		logger.InfoContext(ctx, "Execution stream closed", "reason", reason)
	})
}

// finishedEvent returns the terminal event of an execution that already ended,
// or nil while it is queued or running.
func (h *APIHandlers) finishedEvent(ctx context.Context, executionID string) (*events.ExecutionEvent, error) {
	execution, err := h.store.Executions().GetExecution(ctx, executionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	if !execution.Status.IsTerminal() {
		return nil, nil
	}

	return events.NewExecutionFinished(models.ContextFromExecution(execution, nil)), nil
}

func (h *APIHandlers) relay(ctx context.Context, w *bufio.Writer, stream <-chan *events.ExecutionEvent, finished *events.ExecutionEvent) string {
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	_, _ = fmt.Fprint(w, ": connected\n\n")
	if err := w.Flush(); err != nil {
		return "client disconnected"
	}

	if finished != nil {
		err := writeEvent(w, finished)
		if err == nil {
			err = w.Flush()
		}

		if err != nil {
			return "client disconnected"
		}

		return "already " + string(finished.Type)
	}

	for {
		select {
		case <-ctx.Done():
			return "shutdown"
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": heartbeat\n\n")

			if err := w.Flush(); err != nil {
				return "client disconnected"
			}
		case event, ok := <-stream:
			if !ok {
				return "subscription closed"
			}

			err := writeEvent(w, event)
			if err != nil {
				h.logger.WarnContext(ctx, "Failed to encode execution event", "event_id", event.ID, "error", err)

				continue
			}

			if err := w.Flush(); err != nil {
				return "client disconnected"
			}

			if event.Type.IsTerminal() {
				return string(event.Type)
			}
		}
	}
}

func writeEvent(w *bufio.Writer, event *events.ExecutionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Type, data)

	return err
}
