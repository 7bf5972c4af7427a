package httprequest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	"github.com/try-flowforge/backend/pkg/models"
	"github.com/try-flowforge/backend/pkg/protocol"
)

const ErrorCodeRequestFailed = "HTTP_REQUEST_FAILED"

// Config is the HTTP_REQUEST node configuration.
type Config struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body,omitempty"`
	Timeout float64           `json:"timeout"`
	Retries RetryConfig       `json:"retries"`
}

// RetryConfig defines retry behavior for HTTP requests.
type RetryConfig struct {
	Attempts int `json:"attempts"`
	Delay    int `json:"delay"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func parseConfig(raw map[string]any) (Config, error) {
	config := Config{
		Method:  http.MethodGet,
		Timeout: 30,
		Retries: RetryConfig{Attempts: 1},
	}

	err := protocol.DecodeConfig(raw, &config)
	if err != nil {
		return Config{}, err
	}

	if config.URL == "" {
		return Config{}, errors.New("missing required field 'url'")
	}

	config.Method = strings.ToUpper(config.Method)
	config.Retries.Attempts = max(config.Retries.Attempts, 1)

	return config, nil
}

func (p *Processor) Execute(ctx context.Context, input *protocol.NodeExecutionInput) (*protocol.NodeExecutionOutput, error) {
	startedAt := time.Now().UTC()

	config, err := parseConfig(input.NodeConfig)
	if err != nil {
		return protocol.Failed(input.NodeID, models.ErrorCodeInvalidConfig, err.Error(), startedAt), nil
	}

	body, err := encodeBody(config.Body)
	if err != nil {
		return protocol.Failed(input.NodeID, models.ErrorCodeInvalidConfig, err.Error(), startedAt), nil
	}

	client := &http.Client{
		Transport: p.transport,
		Timeout:   time.Duration(config.Timeout * float64(time.Second)),
	}

	var result map[string]any

	attempt := 0
	operation := func() error {
		attempt++

		response, err := perform(ctx, client, config, body)
		if err != nil {
			// Client errors will not improve on retry.
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode < http.StatusInternalServerError {
				return backoff.Permanent(err)
			}

			return err
		}

		result = response

		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(time.Duration(config.Retries.Delay)*time.Millisecond),
			uint64(config.Retries.Attempts-1),
		),
		ctx,
	)

	err = backoff.RetryNotify(operation, policy, func(err error, next time.Duration) {
		p.logger.WarnContext(ctx, "HTTP request failed, retrying", "node_id", input.NodeID, "attempt", attempt, "retry_in", next, "error", err)
	})
	if err != nil {
		output := protocol.Failed(input.NodeID, ErrorCodeRequestFailed, fmt.Sprintf("HTTP request failed after %d attempts: %v", attempt, err), startedAt)

		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			output.Error.Details = map[string]any{"statusCode": httpErr.StatusCode, "body": httpErr.Message}
		}

		return output, nil
	}

	result["attempts"] = attempt

	return protocol.Succeeded(input.NodeID, result, startedAt), nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}

		return encoded, nil
	}
}

// perform executes a single HTTP request.
func perform(ctx context.Context, client *http.Client, config Config, body []byte) (map[string]any, error) {
	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, config.Method, config.URL, reqBody)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	for key, value := range config.Headers {
		req.Header.Set(key, value)
	}

	if len(body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	result := map[string]any{
		"statusCode": resp.StatusCode,
		"headers":    headers,
		"body":       string(respBody),
	}

	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["json"] = jsonBody
	}

	return result, nil
}

func (p *Processor) Validate(config map[string]any) protocol.ValidationResult {
	return protocol.ValidateAgainstSchema(p.Schema(), config)
}
