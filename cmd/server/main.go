package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/tmc/langchaingo/llms"
	lctools "github.com/tmc/langchaingo/tools"

	"github.com/mikeboe/aegis/pkg/agent"
	"github.com/mikeboe/aegis/pkg/clients"
	"github.com/mikeboe/aegis/pkg/config"
	"github.com/mikeboe/aegis/pkg/database"
	"github.com/mikeboe/aegis/pkg/embeddings"
	"github.com/mikeboe/aegis/pkg/server"
	"github.com/mikeboe/aegis/pkg/tools"
	"github.com/mikeboe/aegis/pkg/vectorstore"
)

func main() {
	// Setup structured logging
	handler := slog.NewTextHandler(os.Stdout, nil)
	slog.SetDefault(slog.New(handler))

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	// Postgres holds the vector index and the run history.
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.EnsureVectorExtension(ctx); err != nil {
		log.Fatalf("Failed to enable pgvector: %v", err)
	}
	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	if err := db.CreateChunksTable(ctx, cfg.CollectionName, cfg.EmbeddingDim); err != nil {
		log.Fatalf("Failed to create chunks table: %v", err)
	}

	// SQLite holds the structured quarterly figures. Seeding is idempotent,
	// so running it on every start is safe.
	finDB, err := database.OpenFinancialDB(cfg.FinancialDBPath)
	if err != nil {
		log.Fatalf("Failed to open financial database: %v", err)
	}
	if err := finDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize financial schema: %v", err)
	}
	inserted, err := finDB.Seed(ctx)
	if err != nil {
		log.Fatalf("Failed to seed financial database: %v", err)
	}
	slog.Info("Financial database ready", "path", cfg.FinancialDBPath, "new_rows", inserted)
	// The SQL tool opens its own connection to the same file.
	finDB.Close()

	embedder, err := embeddings.NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey, cfg.EmbeddingDim)
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	cached := embeddings.NewCachedEmbedder(embedder, cfg.EmbeddingModel, 512, time.Hour)

	var llm llms.Model
	if cfg.OpenAIApiKey != "" {
		llm, err = clients.OpenAICompatible(cfg.OpenAIApiKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	} else {
		llm, err = clients.GoogleAI(ctx, cfg.GoogleApiKey, cfg.ReasoningModel)
	}
	if err != nil {
		log.Fatalf("Failed to create LLM client: %v", err)
	}

	store, err := vectorstore.NewChunkStore(db.Pool, cfg.CollectionName)
	if err != nil {
		log.Fatalf("Failed to create chunk store: %v", err)
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
		log.Fatalf("Failed to create financial tool: %v", err)
	}
	defer finTool.Close()
	toolList = append(toolList, finTool)

	webTool, err := tools.NewWebSearchTool(cfg.TavilyApiKey, 3)
	if err != nil {
		log.Fatalf("Failed to create web search tool: %v", err)
	}
	toolList = append(toolList, webTool)

	toolbox, err := agent.NewToolbox(toolList...)
	if err != nil {
		log.Fatalf("Failed to assemble toolbox: %v", err)
	}
	slog.Info("Agent toolbox assembled", "tools", toolbox.Len())

	executor := agent.NewExecutor(llm, toolbox, cfg.MaxIterations)

	svc := server.NewService(db, executor, retriever, *cfg)
	mcpHandler := server.NewMCPHandler(toolbox, server.ServerVersion)
	h := server.NewHandler(svc, mcpHandler)

	r := gin.Default()

	// CORS Setup
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Allow all for dev
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	h.RegisterRoutes(r)

	fmt.Printf("Server starting on port %s\n", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
