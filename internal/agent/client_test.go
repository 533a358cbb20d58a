package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompletions answers chat completion requests with reply(system, user).
func fakeCompletions(t *testing.T, reply func(system, user string) (string, int)) (*Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		content, status := reply(req.Messages[0].Content, req.Messages[1].Content)
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"upstream failure","type":"server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			ID:     "cmpl-test",
			Object: "chat.completion",
			Model:  req.Model,
			Choices: []openai.ChatCompletionChoice{{
				Index:        0,
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
				FinishReason: openai.FinishReasonStop,
			}},
		})
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/v1/", Model: "test-model", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c, &calls
}

func TestNewClient_RequiresModel(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://localhost"})
	assert.Error(t, err)
}

func TestAskQuestion(t *testing.T) {
	c, _ := fakeCompletions(t, func(system, user string) (string, int) {
		assert.Equal(t, askSystemPrompt, system)
		return "  What is your full name?  ", http.StatusOK
	})

	q, err := c.AskQuestion(context.Background(), "Ask for the user's full name.")
	require.NoError(t, err)
	assert.Equal(t, "What is your full name?", q)
}

func TestAskQuestion_FallsBack(t *testing.T) {
	tests := []struct {
		name    string
		content string
		status  int
	}{
		{name: "server error", status: http.StatusInternalServerError},
		{name: "empty completion", content: "   ", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := fakeCompletions(t, func(string, string) (string, int) { return tt.content, tt.status })
			q, err := c.AskQuestion(context.Background(), "anything")
			assert.Error(t, err)
			assert.Equal(t, FallbackQuestion, q)
		})
	}
}

func TestIsIntentSatisfied(t *testing.T) {
	tests := []struct {
		verdict string
		want    bool
	}{
		{"true", true},
		{"True.", true},
		{" 'true' ", true},
		{"false", false},
		{"It depends", false},
	}
	for _, tt := range tests {
		t.Run(tt.verdict, func(t *testing.T) {
			c, _ := fakeCompletions(t, func(system, user string) (string, int) {
				assert.Equal(t, validateSystemPrompt, system)
				assert.Contains(t, user, "Prompt: What is your name?")
				assert.Contains(t, user, "Response: I'm Amaka")
				return tt.verdict, http.StatusOK
			})
			assert.Equal(t, tt.want, c.IsIntentSatisfied(context.Background(), "What is your name?", "I'm Amaka"))
		})
	}
}

func TestIsIntentSatisfied_FailsClosed(t *testing.T) {
	c, _ := fakeCompletions(t, func(string, string) (string, int) { return "", http.StatusBadGateway })
	assert.False(t, c.IsIntentSatisfied(context.Background(), "q", "a"))
}

func TestExtract(t *testing.T) {
	c, _ := fakeCompletions(t, func(system, user string) (string, int) {
		assert.Equal(t, extractSystemPrompt, system)
		assert.True(t, strings.Contains(user, "return it as a string"))
		return `"amaka@example.com"`, http.StatusOK
	})

	v, ok := c.Extract(context.Background(), "What is your email?", "sure, it's amaka@example.com", KindString)
	require.True(t, ok)
	assert.Equal(t, "amaka@example.com", v)
}

func TestExtract_ConversionFailure(t *testing.T) {
	c, _ := fakeCompletions(t, func(string, string) (string, int) { return "twenty", http.StatusOK })
	_, ok := c.Extract(context.Background(), "How old are you?", "twenty", KindNumber)
	assert.False(t, ok)
}

func TestExtract_CancelledContext(t *testing.T) {
	c, calls := fakeCompletions(t, func(string, string) (string, int) { return "x", http.StatusOK })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := c.Extract(ctx, "q", "a", KindString)
	assert.False(t, ok)
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    Kind
		want    any
		wantErr bool
	}{
		{name: "string trims quotes", raw: "'Amaka'", kind: KindString, want: "Amaka"},
		{name: "empty string", raw: `""`, kind: KindString, wantErr: true},
		{name: "number", raw: " 42 ", kind: KindNumber, want: 42.0},
		{name: "bad number", raw: "forty", kind: KindNumber, wantErr: true},
		{name: "boolean", raw: "TRUE", kind: KindBoolean, want: true},
		{name: "json", raw: `{"a":1}`, kind: KindJSON, want: map[string]any{"a": 1.0}},
		{name: "fenced json", raw: "```json\n[1,2]\n```", kind: KindJSON, want: []any{1.0, 2.0}},
		{name: "bad json", raw: "{", kind: KindJSON, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.raw, tt.kind)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
