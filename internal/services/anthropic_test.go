package services_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MegaGrindStone/codex-prime-ui/internal/chat"
	"github.com/MegaGrindStone/codex-prime-ui/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type anthropicRequest struct {
	Model     string `json:"model"`
	System    string `json:"system"`
	MaxTokens int    `json:"max_tokens"`
	TopK      *int   `json:"top_k"`
	Messages  []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func writeAnthropicEvent(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func TestAnthropicSession(t *testing.T) {
	var requests []anthropicRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "good-key", r.Header.Get("x-api-key"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		w.Header().Set("Content-Type", "text/event-stream")
		writeAnthropicEvent(w, "message_start", `{"type":"message_start"}`)
		for _, text := range []string{"All ", "systems ", "nominal."} {
			writeAnthropicEvent(w, "content_block_delta",
				fmt.Sprintf(`{"type":"content_block_delta","delta":{"type":"text_delta","text":%q}}`, text))
		}
		writeAnthropicEvent(w, "message_stop", `{"type":"message_stop"}`)
	}))
	defer ts.Close()

	provider := services.NewAnthropic(services.StaticCredential("good-key"), "claude", 1024, ts.URL,
		services.DefaultLLMParameters(), testLogger())

	sess, err := provider.NewSession(context.Background(), "persona", nil)
	require.NoError(t, err)

	fragments, err := send(t, sess, "status")
	require.NoError(t, err)
	assert.Equal(t, []string{"All ", "systems ", "nominal."}, fragments)

	_, err = send(t, sess, "again")
	require.NoError(t, err)

	require.Len(t, requests, 2)
	assert.Equal(t, "persona", requests[0].System)
	assert.Equal(t, 1024, requests[0].MaxTokens)
	require.NotNil(t, requests[0].TopK)
	assert.Equal(t, 64, *requests[0].TopK)
	require.Len(t, requests[1].Messages, 3)
	assert.Equal(t, "assistant", requests[1].Messages[1].Role)
	assert.Equal(t, "All systems nominal.", requests[1].Messages[1].Content)
}

func TestAnthropicSessionErrors(t *testing.T) {
	tests := []struct {
		name         string
		handler      http.HandlerFunc
		wantRejected bool
		wantContains string
	}{
		{
			name: "authentication error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
			},
			wantRejected: true,
			wantContains: "invalid x-api-key",
		},
		{
			name: "overloaded mid stream",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				writeAnthropicEvent(w, "content_block_delta", `{"type":"content_block_delta","delta":{"text":"All "}}`)
				writeAnthropicEvent(w, "error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
			},
			wantContains: "Overloaded",
		},
		{
			name: "stream cut short",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				writeAnthropicEvent(w, "content_block_delta", `{"type":"content_block_delta","delta":{"text":"All "}}`)
			},
			wantContains: "message_stop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(tt.handler)
			defer ts.Close()

			provider := services.NewAnthropic(services.StaticCredential("key"), "claude", 1024, ts.URL,
				services.LLMParameters{}, testLogger())
			sess, err := provider.NewSession(context.Background(), "", nil)
			require.NoError(t, err)

			_, err = send(t, sess, "status")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantContains)
			if tt.wantRejected {
				assert.ErrorIs(t, err, chat.ErrCredentialRejected)
			} else {
				assert.NotErrorIs(t, err, chat.ErrCredentialRejected)
			}
		})
	}
}
