package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/aegis/pkg/agent"
	"github.com/mikeboe/aegis/pkg/config"
	"github.com/mikeboe/aegis/pkg/database"
	"github.com/mikeboe/aegis/pkg/tools"
)

// ErrRateLimited marks upstream quota errors so the HTTP layer can answer
// 429 instead of a generic 500.
var ErrRateLimited = errors.New("upstream rate limit")

type Service struct {
	DB        *database.PostgresDB
	Agent     *agent.Executor
	Retriever *tools.Retriever
	Cfg       config.Config
}

func NewService(db *database.PostgresDB, exec *agent.Executor, retriever *tools.Retriever, cfg config.Config) *Service {
	return &Service{
		DB:        db,
		Agent:     exec,
		Retriever: retriever,
		Cfg:       cfg,
	}
}

// Run is one persisted question/answer exchange.
type Run struct {
	ID         uuid.UUID       `json:"id"`
	Question   string          `json:"question"`
	Answer     *string         `json:"answer,omitempty"`
	Status     string          `json:"status"`
	Transcript json.RawMessage `json:"transcript,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Ask answers one question with the agent and persists the run. Hitting the
// iteration cap is not an error: the marker answer comes back with run
// status incomplete.
func (s *Service) Ask(ctx context.Context, question string) (*agent.RunResult, error) {
	if s.Agent == nil {
		return nil, fmt.Errorf("agent is not initialized")
	}

	runID := uuid.New()
	s.createRun(ctx, runID, question)

	ctx, cancel := context.WithTimeout(ctx, s.Cfg.QueryTimeout)
	defer cancel()

	logger := s.Agent.Logger
	if s.DB != nil {
		logger = slog.New(NewRunLogHandler(s.DB, runID))
	}
	exec := s.Agent.WithLogger(logger)

	// Persist the transcript as it grows so /api/runs/:id shows progress
	// while a question is still being worked on.
	var steps []agent.Step
	exec.OnStep = func(step agent.Step) {
		steps = append(steps, step)
		s.saveTranscript(runID, steps)
	}

	result, err := exec.Run(ctx, question)
	if err != nil {
		logger.Error("Agent run failed", "error", err)
		s.finishRun(runID, "failed", nil, steps)
		return nil, classifyUpstreamError(err)
	}

	status := "completed"
	if result.Incomplete {
		status = "incomplete"
	}
	s.finishRun(runID, status, &result.Answer, result.Steps)
	return result, nil
}

// Source is one retrieved chunk returned alongside a direct retrieval
// answer. SourceID is the 1-based rank of the chunk in the result set.
type Source struct {
	Content  string `json:"content"`
	SourceID int    `json:"source_id"`
}

const mockAnswerFormat = `Based on the retrieved information from Google's 10-K report, here's what I found regarding your question: %q

This is a mock response for testing purposes. The actual answer would be synthesized from the following %d source documents that were retrieved from the vector database.

Key information includes financial data, business operations, risk factors, and strategic initiatives as detailed in the source citations below.`

// RagQuery answers a question by plain retrieval plus synthesis, skipping
// the agent loop. MockMode skips the synthesis call as well, which keeps
// the endpoint testable when the generation quota is exhausted.
func (s *Service) RagQuery(ctx context.Context, question string, topK int) (string, []Source, error) {
	if s.Retriever == nil {
		return "", nil, fmt.Errorf("retriever is not initialized")
	}

	results, err := s.Retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return "", nil, classifyUpstreamError(err)
	}

	sources := make([]Source, len(results))
	for i, res := range results {
		sources[i] = Source{Content: res.Chunk.Content, SourceID: i + 1}
	}

	if s.Cfg.MockMode {
		slog.Info("Running in mock mode, skipping synthesis", "retrieved", len(results))
		return fmt.Sprintf(mockAnswerFormat, question, len(results)), sources, nil
	}

	answer, err := s.Retriever.Synthesize(ctx, question, results)
	if err != nil {
		return "", nil, classifyUpstreamError(err)
	}
	return answer, sources, nil
}

func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("run history requires a database")
	}
	query := `
		SELECT id, question, answer, status, transcript, created_at, updated_at
		FROM agent_runs
		WHERE id = $1
	`
	run := &Run{}
	err := s.DB.Pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Question, &run.Answer, &run.Status, &run.Transcript, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (s *Service) ListRuns(ctx context.Context) ([]Run, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("run history requires a database")
	}
	query := `
		SELECT id, question, answer, status, transcript, created_at, updated_at
		FROM agent_runs
		ORDER BY created_at DESC
		LIMIT 50
	`
	rows, err := s.DB.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Question, &run.Answer, &run.Status, &run.Transcript, &run.CreatedAt, &run.UpdatedAt); err != nil {
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetRunLogs(ctx context.Context, runID uuid.UUID) ([]LogEntry, error) {
	if s.DB == nil {
		return nil, fmt.Errorf("run history requires a database")
	}
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM agent_logs
		WHERE run_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// createRun records a new run in status running. Persistence failures are
// logged and swallowed: answering the question matters more than the
// audit trail.
func (s *Service) createRun(ctx context.Context, id uuid.UUID, question string) {
	if s.DB == nil {
		return
	}
	_, err := s.DB.Pool.Exec(ctx,
		"INSERT INTO agent_runs (id, question, status) VALUES ($1, $2, 'running')",
		id, question)
	if err != nil {
		slog.Error("Failed to record run", "run_id", id, "error", err)
	}
}

func (s *Service) saveTranscript(id uuid.UUID, steps []agent.Step) {
	if s.DB == nil {
		return
	}
	transcript, err := json.Marshal(steps)
	if err != nil {
		slog.Error("Failed to marshal transcript", "run_id", id, "error", err)
		return
	}
	// Background context so the update lands even if the request context
	// was cancelled mid-run.
	_, err = s.DB.Pool.Exec(context.Background(),
		"UPDATE agent_runs SET transcript = $2, updated_at = NOW() WHERE id = $1",
		id, transcript)
	if err != nil {
		slog.Error("Failed to save transcript", "run_id", id, "error", err)
	}
}

func (s *Service) finishRun(id uuid.UUID, status string, answer *string, steps []agent.Step) {
	if s.DB == nil {
		return
	}
	transcript, err := json.Marshal(steps)
	if err != nil {
		transcript = []byte("[]")
	}
	_, err = s.DB.Pool.Exec(context.Background(),
		"UPDATE agent_runs SET status = $2, answer = $3, transcript = $4, updated_at = NOW() WHERE id = $1",
		id, status, answer, transcript)
	if err != nil {
		slog.Error("Failed to finish run", "run_id", id, "status", status, "error", err)
	}
}

// classifyUpstreamError maps provider quota failures onto ErrRateLimited.
// Matching is textual because the SDKs do not expose typed quota errors
// consistently.
func classifyUpstreamError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "rate limit", "quota", "resource exhausted", "resource_exhausted"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}
	return err
}
