package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Authorization fehlt")
		}
		var req ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-4o-mini" || req.MaxTokens != 150 || len(req.Messages) != 1 {
			t.Errorf("req=%+v", req)
		}
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":"  Think about magnets. "}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "", nil)
	resp, err := p.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, &GenerateOptions{MaxTokens: 150})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Think about magnets." {
		t.Fatalf("content=%q", resp.Content)
	}
}

func TestOpenAIProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "", nil)
	if _, err := p.Chat(context.Background(), nil, nil); err == nil {
		t.Fatalf("erwartet Fehler bei 429")
	}

	status, body, err := p.Forward(context.Background(), ChatRequest{})
	if err != nil || status != http.StatusTooManyRequests || len(body) == 0 {
		t.Fatalf("Forward status=%d err=%v", status, err)
	}
}

func TestOpenAIProvider_NoKey(t *testing.T) {
	p := NewOpenAIProvider("http://127.0.0.1:1", "", "", nil)
	if p.IsAvailable(context.Background()) {
		t.Fatalf("ohne Schlüssel nicht verfügbar")
	}
	if _, _, err := p.Forward(context.Background(), ChatRequest{}); err == nil {
		t.Fatalf("ohne Schlüssel muss Forward scheitern")
	}
}

func TestOllamaProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:3b"}]}`))
		case "/api/chat":
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["model"] != "llama3.2:3b" {
				t.Errorf("model=%v", body["model"])
			}
			_, _ = w.Write([]byte(`{"model":"llama3.2:3b","message":{"content":"Gravity pulls."},"done":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "missing:7b", nil)
	p.ResolveModel(context.Background())
	if p.GetCurrentModel() != "llama3.2:3b" {
		t.Fatalf("Modell nicht aufgelöst: %s", p.GetCurrentModel())
	}
	if !p.IsAvailable(context.Background()) {
		t.Fatalf("Ollama sollte erreichbar sein")
	}
	resp, err := p.Chat(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "Gravity pulls." {
		t.Fatalf("content=%q", resp.Content)
	}
}
