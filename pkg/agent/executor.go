package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

const (
	// DefaultMaxIterations bounds the reasoning loop when no explicit cap
	// is configured.
	DefaultMaxIterations = 6

	// maxParseFailures is how many consecutive unparseable responses the
	// executor tolerates before abandoning the run.
	maxParseFailures = 3
)

// IncompleteAnswer is returned when the loop exhausts its iteration cap
// before the model commits to a final answer. It is deliberately explicit
// so callers and users never mistake a truncated run for a finished one.
const IncompleteAnswer = "I could not complete the analysis within the allotted reasoning steps. Please try again or narrow the question."

// Executor drives the think-act-observe loop. Each iteration renders the
// full transcript into a prompt, asks the model for its next step, and
// either invokes the chosen tool or stops with the final answer.
type Executor struct {
	LLM           llms.Model
	Toolbox       *Toolbox
	MaxIterations int
	Logger        *slog.Logger

	// OnStep, when set, observes each transcript step as it is appended.
	// Callers use it to persist in-progress runs.
	OnStep func(Step)
}

func NewExecutor(llm llms.Model, toolbox *Toolbox, maxIterations int) *Executor {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Executor{
		LLM:           llm,
		Toolbox:       toolbox,
		MaxIterations: maxIterations,
		Logger:        slog.Default(),
	}
}

// WithLogger returns a copy of the executor that logs through the given
// logger, so one shared executor can serve per-run loggers.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	clone := *e
	clone.Logger = logger
	return &clone
}

// Run answers one question. It returns an error only when the run could
// not proceed at all (model failure, cancelled context, persistent garbage
// output); hitting the iteration cap is reported through RunResult.Incomplete
// instead.
func (e *Executor) Run(ctx context.Context, question string) (*RunResult, error) {
	var steps []Step
	parseFailures := 0

	for iteration := 1; iteration <= e.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		e.Logger.Info("Agent iteration started", "iteration", iteration, "max", e.MaxIterations)

		prompt := renderPrompt(e.Toolbox, question, steps)
		resp, err := e.LLM.GenerateContent(ctx,
			[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
			llms.WithTemperature(0),
			llms.WithStopWords([]string{"\nObservation:"}),
		)
		if err != nil {
			return nil, fmt.Errorf("model call failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("model returned no choices")
		}
		text := resp.Choices[0].Content

		action, finish, err := Parse(text)
		if err != nil {
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				return nil, err
			}
			parseFailures++
			e.Logger.Warn("Model response could not be parsed",
				"iteration", iteration, "reason", parseErr.Reason, "consecutive_failures", parseFailures)
			if parseFailures >= maxParseFailures {
				return nil, fmt.Errorf("giving up after %d consecutive malformed responses: %w", parseFailures, err)
			}
			step := Step{
				Thought: strings.TrimSpace(text),
				Observation: fmt.Sprintf(
					"Your last response could not be parsed: %s. Reply with exactly one Action and its Action Input, or one Final Answer.",
					parseErr.Reason),
			}
			steps = append(steps, step)
			if e.OnStep != nil {
				e.OnStep(step)
			}
			continue
		}
		parseFailures = 0

		if finish != nil {
			e.Logger.Info("Agent produced final answer", "iterations", iteration)
			return &RunResult{
				Answer:     finish.Answer,
				Steps:      steps,
				Iterations: iteration,
			}, nil
		}

		step := Step{
			Thought:     action.Thought,
			Tool:        action.Tool,
			Input:       action.Input,
			Observation: e.observe(ctx, action),
		}
		steps = append(steps, step)
		if e.OnStep != nil {
			e.OnStep(step)
		}
	}

	e.Logger.Warn("Agent exhausted its iteration cap without a final answer", "iterations", e.MaxIterations)
	return &RunResult{
		Answer:     IncompleteAnswer,
		Steps:      steps,
		Iterations: e.MaxIterations,
		Incomplete: true,
	}, nil
}

// observe executes one action and renders whatever happened, including
// failures, as observation text the model can react to. Tool errors do not
// abort the run: seeing the error lets the model pick another tool or fix
// its input.
func (e *Executor) observe(ctx context.Context, action *Action) string {
	tool, err := e.Toolbox.Lookup(action.Tool)
	if err != nil {
		e.Logger.Warn("Model requested unknown tool", "tool", action.Tool)
		return err.Error()
	}

	e.Logger.Info("Invoking tool", "tool", action.Tool, "input", action.Input)
	out, err := tool.Call(ctx, action.Input)
	if err != nil {
		e.Logger.Warn("Tool call failed", "tool", action.Tool, "error", err)
		return fmt.Sprintf("The %s tool failed: %v. Consider a different input or tool.", action.Tool, err)
	}
	if strings.TrimSpace(out) == "" {
		return "The tool returned no output."
	}
	return out
}
