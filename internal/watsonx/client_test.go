package watsonx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	retry := DefaultRetryPolicy()
	retry.sleep = func(time.Duration) {}

	client, err := NewClient(Config{
		BaseURL:           serverURL,
		ProjectID:         "proj-1",
		RequestsPerSecond: 1000,
		Burst:             1000,
	}, StaticTokenProvider("test-token"), retry, zap.NewNop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestNewClient_Configuration(t *testing.T) {
	retry := DefaultRetryPolicy()

	_, err := NewClient(Config{ProjectID: "p"}, StaticTokenProvider("t"), retry, nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured without base URL, got %v", err)
	}

	_, err = NewClient(Config{BaseURL: "https://example.com"}, StaticTokenProvider("t"), retry, nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured without project id, got %v", err)
	}

	_, err = NewClient(Config{BaseURL: "https://example.com", ProjectID: "p"}, nil, retry, nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured without token provider, got %v", err)
	}
}

func TestClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ml/v1/text/generation" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Unexpected Authorization header: %s", got)
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Decode request: %v", err)
		}
		if req["model_id"] != "test-model" {
			t.Errorf("Expected model_id test-model, got %v", req["model_id"])
		}
		if req["project_id"] != "proj-1" {
			t.Errorf("Expected project_id proj-1, got %v", req["project_id"])
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [{"generated_text": "  {\"claims\": []}  "}]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	text, err := client.Generate(context.Background(), "test-model", "prompt", GreedyParams(200))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if text != `{"claims": []}` {
		t.Errorf("Expected trimmed generated text, got %q", text)
	}
}

func TestClient_Generate_RetriesServerError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results": [{"generated_text": "ok"}]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	text, err := client.Generate(context.Background(), "m", "p", GreedyParams(10))
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if text != "ok" {
		t.Errorf("Expected ok, got %q", text)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestClient_Generate_TerminalError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	_, err := client.Generate(context.Background(), "m", "p", GreedyParams(10))
	if err == nil {
		t.Fatal("Expected error for 400 response")
	}
	if calls != 1 {
		t.Errorf("Expected no retry on terminal status, got %d calls", calls)
	}
}

func TestClient_Generate_MissingModelID(t *testing.T) {
	client := testClient(t, "http://127.0.0.1:0")

	_, err := client.Generate(context.Background(), "", "p", GreedyParams(10))
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestClient_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ml/v1/text/embeddings" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Decode request: %v", err)
		}
		inputs := req["inputs"].([]any)
		if len(inputs) != 2 {
			t.Errorf("Expected 2 inputs, got %d", len(inputs))
		}
		_, _ = w.Write([]byte(`{"results": [{"embedding": [1, 0]}, {"embedding": [0, 1]}]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	vecs, err := client.Embed(context.Background(), "emb-model", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 2 {
		t.Fatalf("Unexpected vector shape: %v", vecs)
	}
}

func TestClient_Embed_LegacyDataField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"embedding": [0.5, 0.5]}]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	vecs, err := client.Embed(context.Background(), "emb-model", []string{"a"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vecs) != 1 {
		t.Fatalf("Expected 1 vector, got %d", len(vecs))
	}
}

func TestClient_Embed_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": [{"embedding": [1]}]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	_, err := client.Embed(context.Background(), "emb-model", []string{"a", "b"})
	if err == nil {
		t.Fatal("Expected error for vector count mismatch")
	}
}

func TestClient_Rerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ml/v1/text/rerank" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"results": [{"id": "d2", "relevance": 0.9}, {"id": "d1", "relevance": 0.3}]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	results, err := client.Rerank(context.Background(), "rr-model", "query", []RerankPassage{
		{ID: "d1", Text: "one"},
		{ID: "d2", Text: "two"},
	}, 5)
	if err != nil {
		t.Fatalf("Rerank failed: %v", err)
	}
	if len(results) != 2 || results[0].ID != "d2" {
		t.Errorf("Unexpected rerank results: %v", results)
	}
}

func TestClient_Rerank_FailurePropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	client := testClient(t, server.URL)

	_, err := client.Rerank(context.Background(), "rr-model", "q", []RerankPassage{{ID: "d1", Text: "x"}}, 5)
	if err == nil {
		t.Fatal("Expected error so the caller can keep the original order")
	}
}
