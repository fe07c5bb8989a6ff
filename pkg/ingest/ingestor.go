package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lcembeddings "github.com/tmc/langchaingo/embeddings"

	"github.com/mikeboe/aegis/pkg/splitter"
	"github.com/mikeboe/aegis/pkg/vectorstore"
)

// ChunkWriter is the slice of the vector store the ingestor needs.
type ChunkWriter interface {
	Count(ctx context.Context) (int64, error)
	AddChunks(ctx context.Context, chunks []vectorstore.Chunk) error
}

// Ingestor turns a source document into embedded chunks in the vector
// store. Chunk identifiers are derived from position, so combined with the
// store's conflict handling a rerun of the same document is a no-op.
type Ingestor struct {
	Store     ChunkWriter
	Embedder  lcembeddings.Embedder
	Splitter  *splitter.TextSplitter
	BatchSize int
	Logger    *slog.Logger
}

// Result describes what one ingestion run did.
type Result struct {
	Chunks  int
	Skipped bool
}

func New(store ChunkWriter, embedder lcembeddings.Embedder, split *splitter.TextSplitter) *Ingestor {
	return &Ingestor{
		Store:     store,
		Embedder:  embedder,
		Splitter:  split,
		BatchSize: 50,
		Logger:    slog.Default(),
	}
}

// IngestFile reads a document from disk and ingests it. HTML files are
// converted to plain text first; anything else is ingested as-is.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) (*Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source document: %w", err)
	}

	text := string(raw)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".htm", ".html":
		text = ExtractText(text)
	}

	return ing.IngestText(ctx, text, filepath.Base(path))
}

// IngestText splits, embeds and stores the given text. If the collection
// already holds chunks the run is skipped so restarts never re-embed or
// duplicate the document.
func (ing *Ingestor) IngestText(ctx context.Context, text, source string) (*Result, error) {
	count, err := ing.Store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection state: %w", err)
	}
	if count > 0 {
		ing.Logger.Info("Collection already contains chunks, skipping ingestion", "source", source, "existing", count)
		return &Result{Skipped: true}, nil
	}

	chunks, err := ing.Splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document produced no chunks")
	}
	offsets := splitter.Locate(text, chunks)

	ing.Logger.Info("Ingesting document", "source", source, "chunks", len(chunks))

	batchSize := ing.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		vectors, err := ing.Embedder.EmbedDocuments(ctx, chunks[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch starting at chunk %d: %w", start, err)
		}

		batch := make([]vectorstore.Chunk, 0, end-start)
		for j, content := range chunks[start:end] {
			ordinal := start + j
			batch = append(batch, vectorstore.Chunk{
				ID:      fmt.Sprintf("chunk_%d", ordinal),
				Content: content,
				Metadata: map[string]interface{}{
					"source":  source,
					"ordinal": ordinal,
					"offset":  offsets[ordinal],
				},
				Embedding: vectors[j],
			})
		}

		if err := ing.Store.AddChunks(ctx, batch); err != nil {
			return nil, fmt.Errorf("failed to store batch starting at chunk %d: %w", start, err)
		}

		ing.Logger.Info("Stored chunk batch", "from", start, "to", end-1, "total", len(chunks))
	}

	return &Result{Chunks: len(chunks)}, nil
}
