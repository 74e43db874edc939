package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskintel-assistant/internal/common/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.LLMConfig{
		BaseURL:        server.URL,
		APIKey:         "test-key",
		ChatModel:      "gpt-4o",
		EmbeddingModel: "text-embedding-3-small",
		Timeout:        5000,
		MaxTokens:      500,
	})
}

func TestComplete_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body["model"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "DATA_ANALYSIS"},
				"finish_reason": "stop"
			}]
		}`))
	})

	out, err := client.Complete(context.Background(), CompletionRequest{
		System:      "You are a router.",
		Prompt:      "How many claims last month?",
		Temperature: 0.4,
	})

	require.NoError(t, err)
	assert.Equal(t, "DATA_ANALYSIS", out)
}

func TestComplete_NoChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "chatcmpl-2", "object": "chat.completion", "choices": []}`))
	})

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hello"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestComplete_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	})

	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "hello"})
	require.Error(t, err)
}

func TestEmbed_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/embeddings"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"object": "list",
			"model": "text-embedding-3-small",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.1, 0.2, 0.3]}]
		}`))
	})

	vec, err := client.Embed(context.Background(), "incident count by state")

	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestEmbed_EmptyData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object": "list", "data": []}`))
	})

	_, err := client.Embed(context.Background(), "anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data")
}
