package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/aegis/pkg/vectorstore"
)

type fakeSearcher struct {
	results   []vectorstore.SearchResult
	err       error
	lastTopK  int
	lastQuery []float32
}

func (f *fakeSearcher) SimilaritySearch(_ context.Context, queryEmbedding []float32, topK int, _ string) ([]vectorstore.SearchResult, error) {
	f.lastQuery = queryEmbedding
	f.lastTopK = topK
	return f.results, f.err
}

type fakeQueryEmbedder struct {
	queries []string
}

func (f *fakeQueryEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func (f *fakeQueryEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.queries = append(f.queries, text)
	return []float32{1, 2, 3}, nil
}

type fakeSynthesizer struct {
	response string
	prompts  []string
}

func (f *fakeSynthesizer) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}
	f.prompts = append(f.prompts, prompt.String())
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeSynthesizer) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func searchResults(contents ...string) []vectorstore.SearchResult {
	out := make([]vectorstore.SearchResult, len(contents))
	for i, c := range contents {
		out[i] = vectorstore.SearchResult{
			Chunk: vectorstore.Chunk{ID: fmt.Sprintf("chunk_%d", i), Content: c},
			Score: 0.9,
		}
	}
	return out
}

func TestRetrieverRetrieve(t *testing.T) {
	store := &fakeSearcher{results: searchResults("revenue grew", "cloud segment")}
	embedder := &fakeQueryEmbedder{}
	r := &Retriever{Store: store, Embedder: embedder, TopK: 5}

	results, err := r.Retrieve(context.Background(), "how did revenue develop?", 2)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if store.lastTopK != 2 {
		t.Errorf("expected topK 2, got %d", store.lastTopK)
	}
	if len(embedder.queries) != 1 || embedder.queries[0] != "how did revenue develop?" {
		t.Errorf("query was not embedded as given: %v", embedder.queries)
	}
}

func TestRetrieverDefaultTopK(t *testing.T) {
	store := &fakeSearcher{results: searchResults("a")}
	r := &Retriever{Store: store, Embedder: &fakeQueryEmbedder{}, TopK: 7}

	if _, err := r.Retrieve(context.Background(), "q", 0); err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if store.lastTopK != 7 {
		t.Errorf("expected retriever default 7, got %d", store.lastTopK)
	}

	r.TopK = 0
	if _, err := r.Retrieve(context.Background(), "q", 0); err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if store.lastTopK != 5 {
		t.Errorf("expected fallback 5, got %d", store.lastTopK)
	}
}

func TestRetrieverRetrieveEmptyCollection(t *testing.T) {
	store := &fakeSearcher{}
	r := &Retriever{Store: store, Embedder: &fakeQueryEmbedder{}, TopK: 5}

	_, err := r.Retrieve(context.Background(), "anything", 3)
	if err == nil {
		t.Fatal("expected error for empty collection")
	}
	if !strings.Contains(err.Error(), "has the document been ingested") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSynthesizeConstrainsPromptToContext(t *testing.T) {
	llm := &fakeSynthesizer{response: "  Revenue was $307.4 billion.  "}
	r := &Retriever{LLM: llm}

	answer, err := r.Synthesize(context.Background(), "What was total revenue?", searchResults("Revenues were $307,394 million", "Cost of revenues"))
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if answer != "Revenue was $307.4 billion." {
		t.Errorf("expected trimmed answer, got %q", answer)
	}

	if len(llm.prompts) != 1 {
		t.Fatalf("expected 1 LLM call, got %d", len(llm.prompts))
	}
	prompt := llm.prompts[0]
	if !strings.Contains(prompt, "based only on the provided context") {
		t.Error("prompt does not constrain the model to the context")
	}
	if !strings.Contains(prompt, "Revenues were $307,394 million\n\n---\n\nCost of revenues") {
		t.Error("chunks are not joined with the separator in the prompt")
	}
	if !strings.Contains(prompt, "User's Question: What was total revenue?") {
		t.Error("prompt is missing the question")
	}
}

func TestFilingToolCall(t *testing.T) {
	store := &fakeSearcher{results: searchResults("Google Cloud revenue was $33.1 billion in 2023")}
	llm := &fakeSynthesizer{response: "Google Cloud revenue was $33.1 billion."}
	tool := &FilingTool{Retriever: &Retriever{
		Store:    store,
		Embedder: &fakeQueryEmbedder{},
		LLM:      llm,
		TopK:     5,
	}}

	if tool.Name() != "query_10k_report" {
		t.Errorf("unexpected tool name %q", tool.Name())
	}

	out, err := tool.Call(context.Background(), "What was Google Cloud revenue?")
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if out != "Google Cloud revenue was $33.1 billion." {
		t.Errorf("unexpected tool output %q", out)
	}
	if store.lastTopK != 5 {
		t.Errorf("expected the retriever default topK, got %d", store.lastTopK)
	}
}

func TestFilingToolEmptyCollection(t *testing.T) {
	tool := &FilingTool{Retriever: &Retriever{
		Store:    &fakeSearcher{},
		Embedder: &fakeQueryEmbedder{},
		LLM:      &fakeSynthesizer{response: "unused"},
		TopK:     5,
	}}

	if _, err := tool.Call(context.Background(), "anything"); err == nil {
		t.Fatal("expected error when no chunks are indexed")
	}
}
