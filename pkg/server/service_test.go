package server

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mikeboe/aegis/pkg/config"
	"github.com/mikeboe/aegis/pkg/tools"
)

func TestClassifyUpstreamError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		limited bool
	}{
		{"google 429", errors.New("googleapi: Error 429: Quota exceeded"), true},
		{"plain rate limit", errors.New("rate limit exceeded, retry in 20s"), true},
		{"grpc resource exhausted", errors.New("rpc error: code = ResourceExhausted desc = quota"), true},
		{"resource_exhausted", errors.New("RESOURCE_EXHAUSTED: too many requests"), true},
		{"network failure", errors.New("dial tcp: connection refused"), false},
		{"sql error", errors.New("no such table: quarterly_financials"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyUpstreamError(tt.err)
			if errors.Is(got, ErrRateLimited) != tt.limited {
				t.Errorf("classifyUpstreamError(%v): rate limited = %v, want %v", tt.err, !tt.limited, tt.limited)
			}
			if !strings.Contains(got.Error(), tt.err.Error()) {
				t.Errorf("original error detail lost: %v", got)
			}
		})
	}
}

func TestAskWithoutAgent(t *testing.T) {
	svc := NewService(nil, nil, nil, config.Config{QueryTimeout: time.Second})
	if _, err := svc.Ask(context.Background(), "anything"); err == nil {
		t.Fatal("expected error when the agent is not initialized")
	}
}

func TestRagQueryWithoutRetriever(t *testing.T) {
	svc := NewService(nil, nil, nil, config.Config{QueryTimeout: time.Second})
	if _, _, err := svc.RagQuery(context.Background(), "anything", 3); err == nil {
		t.Fatal("expected error when the retriever is not initialized")
	}
}

func TestRagQueryMockAnswerDetails(t *testing.T) {
	searcher := &stubSearcher{results: ragResults("first chunk", "second chunk", "third chunk")}
	retriever := &tools.Retriever{Store: searcher, Embedder: &stubEmbedder{}, TopK: 5}
	svc := NewService(nil, nil, retriever, config.Config{MockMode: true, QueryTimeout: time.Second})

	answer, sources, err := svc.RagQuery(context.Background(), "What drives revenue?", 3)
	if err != nil {
		t.Fatalf("RagQuery returned error: %v", err)
	}
	if !strings.Contains(answer, `"What drives revenue?"`) {
		t.Errorf("mock answer should quote the question: %q", answer)
	}
	if !strings.Contains(answer, "3 source documents") {
		t.Errorf("mock answer should count retrieved documents: %q", answer)
	}
	if len(sources) != 3 {
		t.Errorf("sources = %d, want 3", len(sources))
	}
}
