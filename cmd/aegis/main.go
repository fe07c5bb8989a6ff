package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	lctools "github.com/tmc/langchaingo/tools"

	"github.com/mikeboe/aegis/pkg/agent"
	"github.com/mikeboe/aegis/pkg/clients"
	"github.com/mikeboe/aegis/pkg/config"
	"github.com/mikeboe/aegis/pkg/database"
	"github.com/mikeboe/aegis/pkg/embeddings"
	"github.com/mikeboe/aegis/pkg/ingest"
	"github.com/mikeboe/aegis/pkg/splitter"
	"github.com/mikeboe/aegis/pkg/tools"
	"github.com/mikeboe/aegis/pkg/vectorstore"
)

func main() {
	// Setup structured logging
	handler := slog.NewTextHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(handler))

	// Load .env file
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist, as long as env vars are set
	}

	rootCmd := &cobra.Command{
		Use:   "aegis",
		Short: "Financial intelligence over a 10-K filing",
		Long:  `Aegis ingests a 10-K filing into a vector index and answers financial questions with a tool-using agent.`,
	}

	rootCmd.AddCommand(ingestCmd(), seedCmd(), verifyCmd(), askCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

// openChunkStore connects to Postgres and prepares the chunks table for the
// given collection.
func openChunkStore(ctx context.Context, cfg *config.Config) (*database.PostgresDB, *vectorstore.ChunkStore, error) {
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.EnsureVectorExtension(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if err := db.CreateChunksTable(ctx, cfg.CollectionName, cfg.EmbeddingDim); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create chunks table: %w", err)
	}

	store, err := vectorstore.NewChunkStore(db.Pool, cfg.CollectionName)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, store, nil
}

func ingestCmd() *cobra.Command {
	var filePath string
	var collection string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Parse, chunk, embed and index a 10-K filing",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			if collection != "" {
				cfg.CollectionName = collection
			}
			if filePath == "" {
				filePath = cfg.SourceDocument
			}
			if cfg.GoogleApiKey == "" {
				slog.Error("GOOGLE_API_KEY must be set for ingestion")
				os.Exit(1)
			}

			ctx := context.Background()
			db, store, err := openChunkStore(ctx, cfg)
			if err != nil {
				slog.Error("Failed to prepare vector store", "error", err)
				os.Exit(1)
			}
			defer db.Close()

			embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey, cfg.EmbeddingDim)
			if err != nil {
				slog.Error("Failed to create embedder", "error", err)
				os.Exit(1)
			}

			split := splitter.NewRecursiveCharacterTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
			result, err := ingest.New(store, embedder, split).IngestFile(ctx, filePath)
			if err != nil {
				slog.Error("Ingestion failed", "file", filePath, "error", err)
				os.Exit(1)
			}

			if result.Skipped {
				slog.Info("Collection already populated, nothing to do", "collection", cfg.CollectionName)
				return
			}
			slog.Info("Ingestion complete", "file", filePath, "chunks", result.Chunks, "collection", cfg.CollectionName)
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Path to the 10-K HTML file (defaults to the configured source document)")
	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Target collection name")
	return cmd
}

func seedCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create and seed the quarterly financials database",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			if dbPath != "" {
				cfg.FinancialDBPath = dbPath
			}

			ctx := context.Background()
			fin, err := database.OpenFinancialDB(cfg.FinancialDBPath)
			if err != nil {
				slog.Error("Failed to open financial database", "error", err)
				os.Exit(1)
			}
			defer fin.Close()

			if err := fin.InitSchema(ctx); err != nil {
				slog.Error("Failed to initialize financial schema", "error", err)
				os.Exit(1)
			}
			inserted, err := fin.Seed(ctx)
			if err != nil {
				slog.Error("Failed to seed financial database", "error", err)
				os.Exit(1)
			}
			total, err := fin.Count(ctx)
			if err != nil {
				slog.Error("Failed to count quarterly rows", "error", err)
				os.Exit(1)
			}

			slog.Info("Financial database seeded", "path", cfg.FinancialDBPath, "new_rows", inserted, "total_rows", total)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the SQLite financials file")
	return cmd
}

func verifyCmd() *cobra.Command {
	var collection string
	var source string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the vector index and preview stored chunks",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			if collection != "" {
				cfg.CollectionName = collection
			}

			ctx := context.Background()
			db, store, err := openChunkStore(ctx, cfg)
			if err != nil {
				slog.Error("Failed to open vector store", "error", err)
				os.Exit(1)
			}
			defer db.Close()

			count, err := store.Count(ctx)
			if err != nil {
				slog.Error("Failed to count chunks", "error", err)
				os.Exit(1)
			}

			fmt.Printf("Collection %q holds %d chunks\n", cfg.CollectionName, count)
			if count == 0 {
				fmt.Println("Run `aegis ingest` to index the filing.")
				return
			}

			var chunks []vectorstore.Chunk
			if source != "" {
				chunks, err = store.GetChunksBySource(ctx, source)
				if err != nil {
					slog.Error("Failed to load document chunks", "error", err)
					os.Exit(1)
				}
				fmt.Printf("Document %q contributed %d of them\n", source, len(chunks))
				if len(chunks) > 3 {
					chunks = chunks[:3]
				}
			} else {
				chunks, err = store.FirstChunks(ctx, 3)
				if err != nil {
					slog.Error("Failed to load preview chunks", "error", err)
					os.Exit(1)
				}
			}
			for _, chunk := range chunks {
				preview := chunk.Content
				if len(preview) > 300 {
					preview = preview[:300] + "..."
				}
				fmt.Printf("\n--- %s (source: %v)\n%s\n", chunk.ID, chunk.Metadata["source"], preview)
			}
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection name to inspect")
	cmd.Flags().StringVar(&source, "source", "", "Limit the preview to chunks from one document")
	return cmd
}

func askCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the agent a financial question",
		Args:  cobra.ArbitraryArgs,
		Run: func(cmd *cobra.Command, args []string) {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				// Interactive Mode
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("Enter your question: ")
				input, _ := reader.ReadString('\n')
				question = strings.TrimSpace(input)
			}
			if question == "" {
				slog.Error("Question cannot be empty")
				os.Exit(1)
			}

			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				slog.Error("Invalid configuration", "error", err)
				os.Exit(1)
			}

			ctx := context.Background()
			db, store, err := openChunkStore(ctx, cfg)
			if err != nil {
				slog.Error("Failed to open vector store", "error", err)
				os.Exit(1)
			}
			defer db.Close()

			// Make sure the SQL tool has something to query.
			fin, err := database.OpenFinancialDB(cfg.FinancialDBPath)
			if err != nil {
				slog.Error("Failed to open financial database", "error", err)
				os.Exit(1)
			}
			if err := fin.InitSchema(ctx); err != nil {
				slog.Error("Failed to initialize financial schema", "error", err)
				os.Exit(1)
			}
			if _, err := fin.Seed(ctx); err != nil {
				slog.Error("Failed to seed financial database", "error", err)
				os.Exit(1)
			}
			fin.Close()

			embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey, cfg.EmbeddingDim)
			if err != nil {
				slog.Error("Failed to create embedder", "error", err)
				os.Exit(1)
			}
			cached := embeddings.NewCachedEmbedder(embedder, cfg.EmbeddingModel, 512, time.Hour)

			var llm llms.Model
			if cfg.OpenAIApiKey != "" {
				llm, err = clients.OpenAICompatible(cfg.OpenAIApiKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
			} else {
				llm, err = clients.GoogleAI(ctx, cfg.GoogleApiKey, cfg.ReasoningModel)
			}
			if err != nil {
				slog.Error("Failed to create LLM client", "error", err)
				os.Exit(1)
			}

			retriever := &tools.Retriever{
				Store:    store,
				Embedder: cached,
				LLM:      llm,
				TopK:     cfg.TopK,
			}

			var toolList []lctools.Tool
			if cfg.EnableFilingTool {
				toolList = append(toolList, &tools.FilingTool{Retriever: retriever})
			}
			finTool, err := tools.NewFinancialTool(cfg.FinancialDBPath)
			if err != nil {
				slog.Error("Failed to create financial tool", "error", err)
				os.Exit(1)
			}
			defer finTool.Close()
			toolList = append(toolList, finTool)

			webTool, err := tools.NewWebSearchTool(cfg.TavilyApiKey, 3)
			if err != nil {
				slog.Error("Failed to create web search tool", "error", err)
				os.Exit(1)
			}
			toolList = append(toolList, webTool)

			toolbox, err := agent.NewToolbox(toolList...)
			if err != nil {
				slog.Error("Failed to assemble toolbox", "error", err)
				os.Exit(1)
			}
			slog.Info("Agent toolbox assembled", "tools", toolbox.Len())

			executor := agent.NewExecutor(llm, toolbox, cfg.MaxIterations)

			runCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
			defer cancel()

			slog.Info("Running agent", "question", question)
			result, err := executor.Run(runCtx, question)
			if err != nil {
				slog.Error("Query failed", "error", err)
				os.Exit(1)
			}

			fmt.Printf("\nFinal Answer:\n%s\n", result.Answer)
			if result.Incomplete {
				slog.Warn("The agent hit its iteration cap before finishing", "iterations", result.Iterations)
			} else {
				slog.Info("Run complete", "iterations", result.Iterations)
			}
		},
	}

	return cmd
}
