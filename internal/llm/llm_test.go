package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pavelanni/certprep/internal/llm/prompts"
	"github.com/pavelanni/certprep/internal/model"
)

func TestParseKeywords(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"plain array", `["S3", "Glacier"]`, []string{"S3", "Glacier"}},
		{"json fence", "```json\n[\"Multi-AZ\", \"RDS\"]\n```", []string{"Multi-AZ", "RDS"}},
		{"bare fence", "```\n[\"VPC\"]\n```", []string{"VPC"}},
		{"empty array", `[]`, []string{}},
		{"prose", "Here are the keywords: S3, EBS", FallbackKeywords},
		{"object", `{"keywords":["S3"]}`, FallbackKeywords},
		{"empty", "", FallbackKeywords},
		{"null", "null", FallbackKeywords},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKeywords(tt.raw)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("ParseKeywords(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseKeywordsFallbackIsCopy(t *testing.T) {
	got := ParseKeywords("nope")
	got[0] = "changed"
	if FallbackKeywords[0] != "AWS" {
		t.Error("fallback keywords must not be shared")
	}
}

// fakeOpenAI answers chat completions by max_tokens: the explanation call
// asks for 1000 tokens, the keyword call for 100.
type fakeOpenAI struct {
	mu          sync.Mutex
	requests    []map[string]any
	keywordResp string
	failExplain bool
}

func (f *fakeOpenAI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		content := "S3 is durable object storage."
		if req["max_tokens"] == float64(keywordsMaxTokens) {
			content = f.keywordResp
		} else if f.failExplain {
			http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
		})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o-mini","object":"model"}]}`))
	})
	return mux
}

func testQuestion() model.Question {
	return model.Question{
		ID:             "q1",
		Text:           "Which service provides object storage?",
		Options:        []string{"Amazon S3", "Amazon EBS", "Amazon EFS", "Instance store"},
		CorrectAnswers: []int{0},
	}
}

func TestExplain(t *testing.T) {
	fake := &fakeOpenAI{keywordResp: "```json\n[\"S3\", \"Object storage\"]\n```"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := New(srv.URL+"/v1", "test-key", "", prompts.LangEnglish)
	exp, err := c.Explain(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if exp.Text != "S3 is durable object storage." {
		t.Errorf("unexpected explanation %q", exp.Text)
	}
	if strings.Join(exp.Keywords, "|") != "S3|Object storage" {
		t.Errorf("unexpected keywords %v", exp.Keywords)
	}

	if len(fake.requests) != 2 {
		t.Fatalf("expected 2 completion calls, got %d", len(fake.requests))
	}
	first := fake.requests[0]
	if first["model"] != DefaultModel {
		t.Errorf("expected default model, got %v", first["model"])
	}
	if first["temperature"] != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", first["temperature"])
	}
	msgs := first["messages"].([]any)
	user := msgs[1].(map[string]any)["content"].(string)
	if !strings.Contains(user, "1. Amazon S3") || !strings.Contains(user, "Correct answer: 1") {
		t.Errorf("explanation prompt missing options or answer:\n%s", user)
	}
}

func TestExplainKeywordFallback(t *testing.T) {
	fake := &fakeOpenAI{keywordResp: "S3 and stuff"}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := New(srv.URL+"/v1", "test-key", "gpt-test", prompts.LangKorean)
	exp, err := c.Explain(context.Background(), testQuestion())
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if strings.Join(exp.Keywords, "|") != "AWS|Cloud Architecture" {
		t.Errorf("expected fallback keywords, got %v", exp.Keywords)
	}
}

func TestExplainFailure(t *testing.T) {
	fake := &fakeOpenAI{failExplain: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	c := New(srv.URL+"/v1", "test-key", "", prompts.LangEnglish)
	if _, err := c.Explain(context.Background(), testQuestion()); err == nil {
		t.Fatal("expected error when the explanation call fails")
	}
}

func TestDisabled(t *testing.T) {
	c := New("", "", "", prompts.LangEnglish)
	if c.Enabled() {
		t.Fatal("client without key should be disabled")
	}
	if _, err := c.Explain(context.Background(), testQuestion()); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled, got %v", err)
	}
	if err := c.Ping(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("expected ErrDisabled from Ping, got %v", err)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer((&fakeOpenAI{}).handler())
	defer srv.Close()

	c := New(srv.URL+"/v1", "test-key", "", prompts.LangEnglish)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
