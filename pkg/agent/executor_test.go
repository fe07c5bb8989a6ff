package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/tmc/langchaingo/llms"
)

// fakeModel replays a fixed sequence of responses and records the prompts
// it was asked with.
type fakeModel struct {
	responses []string
	prompts   []string
	err       error
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}

	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}
	f.prompts = append(f.prompts, prompt.String())

	idx := len(f.prompts) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.responses[idx]}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func TestExecutorToolThenFinalAnswer(t *testing.T) {
	var gotInput string
	tb, err := NewToolbox(funcTool{
		name: "sql_database_query",
		desc: "Runs SQL against quarterly financials.",
		fn: func(ctx context.Context, input string) (string, error) {
			gotInput = input
			return "105000", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	model := &fakeModel{responses: []string{
		"Thought: I should sum the quarterly profits.\nAction: sql_database_query\nAction Input: SELECT SUM(profit_millions) FROM quarterly_financials WHERE year = 2023",
		"Thought: I now know the final answer\nFinal Answer: The total profit in 2023 was $105,000 million.",
	}}

	exec := NewExecutor(model, tb, 6)
	result, err := exec.Run(context.Background(), "What was the total profit in 2023?")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Answer != "The total profit in 2023 was $105,000 million." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.Incomplete {
		t.Error("run should not be marked incomplete")
	}
	if result.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", result.Iterations)
	}
	if len(result.Steps) != 1 {
		t.Fatalf("Steps = %d, want 1", len(result.Steps))
	}
	if gotInput != "SELECT SUM(profit_millions) FROM quarterly_financials WHERE year = 2023" {
		t.Errorf("tool received input %q", gotInput)
	}
	if result.Steps[0].Observation != "105000" {
		t.Errorf("Observation = %q", result.Steps[0].Observation)
	}

	firstPrompt := model.prompts[0]
	if !strings.Contains(firstPrompt, "What was the total profit in 2023?") {
		t.Error("first prompt missing the question")
	}
	if !strings.Contains(firstPrompt, "sql_database_query: Runs SQL against quarterly financials.") {
		t.Error("first prompt missing the tool description")
	}
	if !strings.HasSuffix(firstPrompt, "Thought:") {
		t.Error("prompt should end with a Thought cue")
	}

	secondPrompt := model.prompts[1]
	wantReplay := "Thought: I should sum the quarterly profits.\n" +
		"Action: sql_database_query\n" +
		"Action Input: SELECT SUM(profit_millions) FROM quarterly_financials WHERE year = 2023\n" +
		"Observation: 105000\n"
	if !strings.Contains(secondPrompt, wantReplay) {
		t.Error("second prompt does not replay the first step verbatim")
	}
}

func TestExecutorUnknownToolBecomesObservation(t *testing.T) {
	tb, err := NewToolbox(funcTool{name: "web_search", desc: "Searches the web."})
	if err != nil {
		t.Fatal(err)
	}

	model := &fakeModel{responses: []string{
		"Action: calculator\nAction Input: 2+2",
		"Final Answer: I used the wrong tool and have corrected course.",
	}}

	exec := NewExecutor(model, tb, 6)
	result, err := exec.Run(context.Background(), "irrelevant")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if len(result.Steps) != 1 {
		t.Fatalf("Steps = %d, want 1", len(result.Steps))
	}
	obs := result.Steps[0].Observation
	if !strings.Contains(obs, "unknown tool") || !strings.Contains(obs, "web_search") {
		t.Errorf("observation %q should name the unknown tool problem and list alternatives", obs)
	}
}

func TestExecutorToolErrorBecomesObservation(t *testing.T) {
	tb, err := NewToolbox(funcTool{
		name: "sql_database_query",
		desc: "Runs SQL.",
		fn: func(ctx context.Context, input string) (string, error) {
			return "", fmt.Errorf("no such table: monthly_financials")
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	model := &fakeModel{responses: []string{
		"Action: sql_database_query\nAction Input: SELECT * FROM monthly_financials",
		"Final Answer: The data is not available.",
	}}

	exec := NewExecutor(model, tb, 6)
	result, err := exec.Run(context.Background(), "irrelevant")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	obs := result.Steps[0].Observation
	if !strings.Contains(obs, "no such table") {
		t.Errorf("observation %q should carry the tool error", obs)
	}
	if result.Answer != "The data is not available." {
		t.Errorf("Answer = %q", result.Answer)
	}
}

func TestExecutorCorrectsMalformedResponse(t *testing.T) {
	tb := newTestToolbox(t)

	model := &fakeModel{responses: []string{
		"I will just write prose without any markers.",
		"Final Answer: recovered after the format reminder.",
	}}

	exec := NewExecutor(model, tb, 6)
	result, err := exec.Run(context.Background(), "irrelevant")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if result.Answer != "recovered after the format reminder." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if len(result.Steps) != 1 {
		t.Fatalf("Steps = %d, want 1 corrective step", len(result.Steps))
	}
	if !strings.Contains(result.Steps[0].Observation, "could not be parsed") {
		t.Errorf("corrective observation = %q", result.Steps[0].Observation)
	}

	// The retry prompt must replay the corrective observation.
	if !strings.Contains(model.prompts[1], "could not be parsed") {
		t.Error("second prompt missing the corrective observation")
	}
}

func TestExecutorGivesUpAfterRepeatedGarbage(t *testing.T) {
	tb := newTestToolbox(t)

	model := &fakeModel{responses: []string{"garbage with no markers at all"}}

	exec := NewExecutor(model, tb, 10)
	_, err := exec.Run(context.Background(), "irrelevant")
	if err == nil {
		t.Fatal("Run() should fail after repeated malformed responses")
	}
	if !strings.Contains(err.Error(), "malformed") {
		t.Errorf("error = %q", err.Error())
	}
	if len(model.prompts) != maxParseFailures {
		t.Errorf("model called %d times, want %d", len(model.prompts), maxParseFailures)
	}
}

func TestExecutorIterationCap(t *testing.T) {
	calls := 0
	tb, err := NewToolbox(funcTool{
		name: "web_search",
		desc: "Searches the web.",
		fn: func(ctx context.Context, input string) (string, error) {
			calls++
			return "nothing conclusive", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	model := &fakeModel{responses: []string{
		"Thought: still unsure\nAction: web_search\nAction Input: one more search",
	}}

	exec := NewExecutor(model, tb, 3)
	result, err := exec.Run(context.Background(), "an unanswerable question")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if !result.Incomplete {
		t.Error("hitting the iteration cap must mark the result incomplete")
	}
	if result.Answer != IncompleteAnswer {
		t.Errorf("Answer = %q, want the explicit incomplete marker", result.Answer)
	}
	if result.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", result.Iterations)
	}
	if calls != 3 {
		t.Errorf("tool called %d times, want 3", calls)
	}
	if len(result.Steps) != 3 {
		t.Errorf("Steps = %d, want 3", len(result.Steps))
	}
}

func TestExecutorStopsOnCancelledContext(t *testing.T) {
	tb := newTestToolbox(t)
	model := &fakeModel{responses: []string{"Final Answer: never reached"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecutor(model, tb, 6)
	if _, err := exec.Run(ctx, "irrelevant"); err == nil {
		t.Fatal("Run() with a cancelled context should fail")
	}
	if len(model.prompts) != 0 {
		t.Errorf("model called %d times after cancellation, want 0", len(model.prompts))
	}
}

func TestExecutorModelFailure(t *testing.T) {
	tb := newTestToolbox(t)
	model := &fakeModel{err: fmt.Errorf("googleapi: Error 429: quota exceeded")}

	exec := NewExecutor(model, tb, 6)
	_, err := exec.Run(context.Background(), "irrelevant")
	if err == nil {
		t.Fatal("Run() should surface model errors")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error = %q, want the provider error preserved", err.Error())
	}
}

func TestNewExecutorDefaults(t *testing.T) {
	tb := newTestToolbox(t)
	exec := NewExecutor(&fakeModel{}, tb, 0)
	if exec.MaxIterations != DefaultMaxIterations {
		t.Errorf("MaxIterations = %d, want default %d", exec.MaxIterations, DefaultMaxIterations)
	}
	if exec.Logger == nil {
		t.Error("Logger should default to slog.Default()")
	}
}

func TestExecutorOnStepObservesTranscript(t *testing.T) {
	tb, err := NewToolbox(funcTool{
		name: "sql_database_query",
		desc: "Runs SQL against quarterly financials.",
		fn: func(ctx context.Context, input string) (string, error) {
			return "105000", nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	model := &fakeModel{responses: []string{
		"Thought: query the database.\nAction: sql_database_query\nAction Input: SELECT 1",
		"Thought: done.\nFinal Answer: 105000",
	}}
	exec := NewExecutor(model, tb, 6)

	var seen []Step
	exec.OnStep = func(s Step) { seen = append(seen, s) }

	result, err := exec.Run(context.Background(), "total profit?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(seen) != len(result.Steps) {
		t.Fatalf("OnStep saw %d steps, result has %d", len(seen), len(result.Steps))
	}
	if len(seen) != 1 {
		t.Fatalf("expected 1 observed step, got %d", len(seen))
	}
	if seen[0].Tool != "sql_database_query" || seen[0].Observation != "105000" {
		t.Errorf("unexpected observed step %+v", seen[0])
	}
}
