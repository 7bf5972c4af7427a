package llm_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/try-flowforge/backend/pkg/nodes/llm"
)

func TestClient_Complete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "small-model", body["model"])

		messages, _ := body["messages"].([]any)
		assert.Len(t, messages, 2)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "small-model",
			"choices": [{"message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 1, "total_tokens": 4}
		}`))
	}))
	defer server.Close()

	client := llm.NewClient(server.URL+"/v1/", "secret", "small-model", time.Second)

	completion, err := client.Complete(context.Background(), llm.Request{SystemPrompt: "be brief", Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", completion.Text)
	assert.Equal(t, "stop", completion.FinishReason)
	assert.Equal(t, 4, completion.Usage.TotalTokens)
}

func TestClient_APIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	_, err := llm.NewClient(server.URL, "", "m", time.Second).Complete(context.Background(), llm.Request{Prompt: "hi"})

	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, apiErr.Retryable())
}

func TestRequestFromConfig(t *testing.T) {
	t.Parallel()

	req, err := llm.RequestFromConfig(map[string]any{"prompt": "hi", "maxTokens": 10, "temperature": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 10, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.5, *req.Temperature, 0.0001)

	_, err = llm.RequestFromConfig(map[string]any{})
	assert.Error(t, err)
}
