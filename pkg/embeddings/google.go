package embeddings

import (
	"context"
	"fmt"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"google.golang.org/genai"
)

// Gemini task types. Queries and stored documents are embedded with
// different task hints so the two ends of the retrieval line up.
const (
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// GoogleEmbedder wraps Google Vertex AI / Gemini embeddings
type GoogleEmbedder struct {
	client *genai.Client
	model  string
	dim    int32
}

var _ lcembeddings.Embedder = (*GoogleEmbedder)(nil)

// NewGoogleEmbedder creates a new Google Vertex AI embedder
func NewGoogleEmbedder(ctx context.Context, model, apiKey string, dimension int) (*GoogleEmbedder, error) {

	// Initialize Gemini API client (API Key)
	geminiConfig := &genai.ClientConfig{
		APIKey: apiKey,
	}
	client, err := genai.NewClient(ctx, geminiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini API client: %w", err)
	}

	return &GoogleEmbedder{
		client: client,
		model:  model,
		dim:    int32(dimension),
	}, nil
}

// EmbedQuery generates an embedding for a search query
func (e *GoogleEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, text, taskRetrievalQuery)
}

// EmbedDocuments generates embeddings for document chunks
func (e *GoogleEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	// We can implement batching here if needed, but for now sequential is safer
	// as we don't know the exact batch limits/API of the SDK version.
	result := make([][]float32, 0, len(texts))

	for _, text := range texts {
		vec, err := e.embed(ctx, text, taskRetrievalDocument)
		if err != nil {
			return nil, err
		}
		result = append(result, vec)
	}

	return result, nil
}

func (e *GoogleEmbedder) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	outputDim := e.dim
	res, err := e.client.Models.EmbedContent(ctx, e.model, []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: text},
			},
		},
	}, &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &outputDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}

	if len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	return res.Embeddings[0].Values, nil
}
