package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ServerName and ServerVersion identify the service on the API info
	// endpoint and in the MCP handshake.
	ServerName    = "Aegis Financial Intelligence"
	ServerVersion = "2.0.0"
)

type Handler struct {
	Service *Service
	MCP     http.Handler
}

func NewHandler(s *Service, mcpHandler http.Handler) *Handler {
	return &Handler{Service: s, MCP: mcpHandler}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.index)
	r.GET("/health", h.health)
	r.GET("/api", h.apiInfo)
	r.POST("/query", h.query)
	r.POST("/rag/query", h.ragQuery)
	if h.MCP != nil {
		r.Any("/mcp", gin.WrapH(h.MCP))
	}

	api := r.Group("/api")
	{
		api.GET("/runs", h.listRuns)
		api.GET("/runs/:id", h.getRun)
		api.GET("/runs/:id/logs", h.getRunLogs)
	}
}

func (h *Handler) index(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, indexHTML)
}

func (h *Handler) agentReady() bool {
	return h.Service != nil && h.Service.Agent != nil
}

func (h *Handler) health(c *gin.Context) {
	message := "API is running and agent is ready"
	if !h.agentReady() {
		message = "API running but agent not initialized"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"agent_ready": h.agentReady(),
		"message":     message,
	})
}

func (h *Handler) apiInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        ServerName + " API",
		"version":     ServerVersion,
		"status":      "ready",
		"agent_ready": h.agentReady(),
	})
}

type QueryRequest struct {
	Question string `json:"question" binding:"required"`
}

type QueryResponse struct {
	Answer string `json:"answer"`
}

// query runs the full agent loop. The response carries only the terminal
// answer; the transcript stays in the run history.
func (h *Handler) query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slog.Info("Processing query", "question", req.Question)
	result, err := h.Service.Ask(c.Request.Context(), req.Question)
	if err != nil {
		slog.Error("Query failed", "error", err)
		if errors.Is(err, ErrRateLimited) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Please try again later."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Query processing failed"})
		return
	}

	c.JSON(http.StatusOK, QueryResponse{Answer: result.Answer})
}

type RagQueryRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k"`
}

type RagQueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// ragQuery is the direct retrieval endpoint: no agent loop, answer plus
// the chunks it was synthesized from.
func (h *Handler) ragQuery(c *gin.Context) {
	var req RagQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slog.Info("Received query", "question", req.Question)
	answer, sources, err := h.Service.RagQuery(c.Request.Context(), req.Question, req.TopK)
	if err != nil {
		slog.Error("Error processing query", "error", err)
		if errors.Is(err, ErrRateLimited) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Please try again later."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error occurred while processing your query."})
		return
	}

	if sources == nil {
		sources = []Source{}
	}
	c.JSON(http.StatusOK, RagQueryResponse{Answer: answer, Sources: sources})
}

func (h *Handler) listRuns(c *gin.Context) {
	runs, err := h.Service.ListRuns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Return empty list instead of null
	if runs == nil {
		runs = []Run{}
	}
	c.JSON(http.StatusOK, runs)
}

func (h *Handler) getRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	run, err := h.Service.GetRun(c.Request.Context(), id)
	if err != nil {
		// Differentiate 404 vs 500 later if needed
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) getRunLogs(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	logs, err := h.Service.GetRunLogs(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}
