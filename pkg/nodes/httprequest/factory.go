// Package httprequest provides the HTTP_REQUEST processor.
package httprequest

import (
	"log/slog"
	"net/http"

	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
)

var methods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// Processor performs an HTTP call with retry on server and network errors.
type Processor struct {
	transport http.RoundTripper
	logger    *slog.Logger
}

// NewProcessor creates an HTTP_REQUEST processor. A nil transport uses http.DefaultTransport.
func NewProcessor(transport http.RoundTripper, logger *slog.Logger) *Processor {
	if transport == nil {
		transport = http.DefaultTransport
	}

	return &Processor{
		transport: transport,
		logger:    logger.With("module", "http_request_node"),
	}
}

var (
	_ protocol.NodeProcessor = (*Processor)(nil)
	_ protocol.Describer     = (*Processor)(nil)
)

func (p *Processor) NodeType() models.NodeType {
	return models.NodeTypeHTTPRequest
}

func (p *Processor) Name() string {
	return "HTTP Request"
}

func (p *Processor) Description() string {
	return "Performs HTTP requests with retry on server errors"
}

// Schema returns the JSON schema for HTTP request node configuration.
func (p *Processor) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "HTTP URL to request. Supports {{blocks.<nodeId>.<field>}} placeholders",
				"examples": []string{
					"https://api.example.com/users",
					"https://api.coingecko.com/api/v3/simple/price?ids={{blocks.trigger.asset}}&vs_currencies=usd",
				},
			},
			"method": map[string]any{
				"type":    "string",
				"default": "GET",
				"enum":    methods,
			},
			"headers": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"description": "Request body. Objects and arrays are sent as JSON",
			},
			"timeout": map[string]any{
				"type":        "number",
				"description": "Request timeout in seconds",
				"default":     30,
				"minimum":     1,
				"maximum":     300,
			},
			"retries": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{
						"type":        "integer",
						"description": "Number of attempts including the first request",
						"default":     1,
						"minimum":     1,
						"maximum":     10,
					},
					"delay": map[string]any{
						"type":        "integer",
						"description": "Delay between attempts in milliseconds",
						"default":     1000,
						"minimum":     0,
						"maximum":     30000,
					},
				},
			},
		},
		"required": []string{"url"},
	}
}
