package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/matzehuels/stackfix/pkg/reasoning"
)

func TestGenerateWithHistory(t *testing.T) {
	var got messagesRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "k" || r.Header.Get("anthropic-version") != APIVersion {
			t.Error("auth headers missing")
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": `{"suggestions":`},
				{"type": "text", "text": `[]}`},
			},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	c := NewClient("k", server.URL).WithModel("test-model")
	c.WithHTTPClient(server.Client())

	tr := reasoning.NewTranscript("be strict").User("analyse").Assistant("{}").User("again")
	out, err := c.GenerateWithHistory(context.Background(), tr, reasoning.Options{MaxTokens: 100})
	if err != nil {
		t.Fatalf("GenerateWithHistory() error: %v", err)
	}
	if out != `{"suggestions":[]}` {
		t.Errorf("output = %q", out)
	}
	if got.Model != "test-model" || got.MaxTokens != 100 || got.System != "be strict" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 3 || got.Messages[1].Role != "assistant" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "ok"}},
		})
	}))
	defer server.Close()

	c := NewClient("k", server.URL)
	c.WithHTTPClient(server.Client())

	out, err := c.Generate(context.Background(), "hi", reasoning.Options{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if out != "ok" || calls.Load() != 2 {
		t.Errorf("out = %q after %d calls", out, calls.Load())
	}
}

func TestGenerateEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"content": []any{}, "stop_reason": "max_tokens"})
	}))
	defer server.Close()

	c := NewClient("k", server.URL)
	c.WithHTTPClient(server.Client())

	if _, err := c.Generate(context.Background(), "hi", reasoning.Options{}); err == nil {
		t.Error("empty content should be an error")
	}
}
