package tools

import (
	"context"
	"fmt"
	"strings"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	lctools "github.com/tmc/langchaingo/tools"

	"github.com/mikeboe/aegis/pkg/vectorstore"
)

// ChunkSearcher is the slice of the vector store retrieval needs.
type ChunkSearcher interface {
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, sourceFilter string) ([]vectorstore.SearchResult, error)
}

// Retriever embeds a query, pulls the closest filing chunks and, as a
// second stage, synthesizes an answer constrained to those chunks.
type Retriever struct {
	Store    ChunkSearcher
	Embedder lcembeddings.Embedder
	LLM      llms.Model
	TopK     int
}

const synthesisPrompt = `You are a financial analyst assistant. Answer the user's question based only on the provided context from a company's 10-K report. Do not use any external knowledge. If the answer is not in the context, state that clearly.

Context from the 10-K report:
---
%s
---

User's Question: %s

Synthesized Answer:`

// Retrieve returns the k closest chunks for the query, falling back to the
// retriever's default when k is not positive. No similarity threshold is
// applied: weak matches are still context, and an empty collection is an
// error worth surfacing rather than an empty answer.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error) {
	if k <= 0 {
		k = r.TopK
	}
	if k <= 0 {
		k = 5
	}

	embedding, err := r.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.Store.SimilaritySearch(ctx, embedding, k, "")
	if err != nil {
		return nil, fmt.Errorf("failed to search filing chunks: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no filing chunks found: has the document been ingested?")
	}
	return results, nil
}

// Synthesize answers the question using only the retrieved chunks.
func (r *Retriever) Synthesize(ctx context.Context, question string, results []vectorstore.SearchResult) (string, error) {
	contents := make([]string, len(results))
	for i, res := range results {
		contents[i] = res.Chunk.Content
	}
	contextBlock := strings.Join(contents, "\n\n---\n\n")

	prompt := fmt.Sprintf(synthesisPrompt, contextBlock, question)
	resp, err := r.LLM.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", fmt.Errorf("failed to synthesize answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// FilingTool exposes retrieval plus synthesis over the 10-K report as a
// single agent tool.
type FilingTool struct {
	Retriever *Retriever
}

var _ lctools.Tool = (*FilingTool)(nil)

func (t *FilingTool) Name() string {
	return "query_10k_report"
}

func (t *FilingTool) Description() string {
	return "Searches and synthesizes information from Google's 2023 10-K financial report. " +
		"Use this tool for any questions about Google's financial performance, business strategy, risk factors, or operations for the year 2023. " +
		"The tool retrieves the relevant report sections and generates a concise answer from them."
}

func (t *FilingTool) Call(ctx context.Context, input string) (string, error) {
	results, err := t.Retriever.Retrieve(ctx, input, 0)
	if err != nil {
		return "", err
	}
	return t.Retriever.Synthesize(ctx, input, results)
}
