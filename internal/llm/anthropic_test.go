package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClientComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "{\"is_anomaly\": true}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 9, "output_tokens": 4}
		}`))
	}))
	defer srv.Close()

	client, err := NewAnthropicClient("test-key", option.WithBaseURL(srv.URL))
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), Request{
		Model:       "claude-3-5-haiku-latest",
		System:      []string{"moderate"},
		Messages:    []Message{{Role: RoleUser, Content: "你好"}},
		Temperature: -1,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"is_anomaly": true}`, resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, int32(13), resp.Usage.TotalTokens)

	assert.Equal(t, float64(defaultAnthropicMaxTokens), got["max_tokens"])
	_, hasTemp := got["temperature"]
	assert.False(t, hasTemp, "negative temperature leaves the provider default")
}

func TestAnthropicClientRequiresKey(t *testing.T) {
	_, err := NewAnthropicClient(" ")
	assert.Error(t, err)
}
