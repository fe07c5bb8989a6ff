package agent

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// ParseError reports a model response that matches neither recognized step
// shape after normalization. The executor turns these into corrective
// observations rather than failing the run.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable model response: %s", e.Reason)
}

var (
	actionMarker = regexp.MustCompile(`(?m)^[ \t]*Action\s*:`)
	finalMarker  = regexp.MustCompile(`(?m)^[ \t]*Final Answer\s*:`)

	actionLine = regexp.MustCompile(`(?m)^[ \t]*Action\s*:[ \t]*(.*)$`)
	inputBlock = regexp.MustCompile(`(?sm)^[ \t]*Action Input\s*:[ \t]*(.*)\z`)
	finalBlock = regexp.MustCompile(`(?sm)^[ \t]*Final Answer\s*:[ \t]*(.*)\z`)

	logLinePrefix = regexp.MustCompile(`^[ \t]*(?:INFO|DEBUG|WARN(?:ING)?|ERROR|CRITICAL|TRACE)\s*[:\-]`)
	logLineInline = regexp.MustCompile(`\s-\s(?:INFO|DEBUG|WARNING|ERROR|CRITICAL)\s-\s`)
)

// fabricatedResultMarkers open text the model must never produce inside an
// Action Input: it has started inventing the tool's result. Everything from
// the first marker onward is discarded.
var fabricatedResultMarkers = []string{
	"Observation:",
	"\nThought:",
	"Final Answer:",
	"Result:",
}

// Parse interprets one model response as either a tool action or a final
// answer. Exactly one of the returned pointers is non-nil on success.
//
// The raw text is normalized first: markdown emphasis is stripped, leaked
// log lines are dropped, and a fabricated result trailing the Action Input
// is cut off. Only then is the strict format applied. A response carrying
// both an Action and a Final Answer is rejected outright, since there is no
// safe way to tell which one the model meant.
func Parse(raw string) (*Action, *FinalAnswer, error) {
	text := Normalize(raw)

	hasAction := actionMarker.MatchString(text)
	hasFinal := finalMarker.MatchString(text)

	switch {
	case hasAction && hasFinal:
		return nil, nil, &ParseError{
			Reason: "the response contains both an Action and a Final Answer",
			Raw:    raw,
		}

	case hasFinal:
		m := finalBlock.FindStringSubmatch(text)
		if m == nil {
			return nil, nil, &ParseError{Reason: "the Final Answer could not be read", Raw: raw}
		}
		answer := strings.TrimSpace(m[1])
		if answer == "" {
			return nil, nil, &ParseError{Reason: "the Final Answer is empty", Raw: raw}
		}
		loc := finalMarker.FindStringIndex(text)
		return nil, &FinalAnswer{
			Thought: thoughtBefore(text, loc[0]),
			Answer:  answer,
		}, nil

	case hasAction:
		am := actionLine.FindStringSubmatch(text)
		tool := strings.Trim(strings.TrimSpace(am[1]), "[]`\"'")
		if tool == "" {
			return nil, nil, &ParseError{Reason: "the Action names no tool", Raw: raw}
		}
		im := inputBlock.FindStringSubmatch(text)
		if im == nil {
			return nil, nil, &ParseError{Reason: "the Action has no Action Input", Raw: raw}
		}
		input := unfence(strings.TrimSpace(truncateFabricated(im[1])))
		loc := actionMarker.FindStringIndex(text)
		return &Action{
			Thought: thoughtBefore(text, loc[0]),
			Tool:    tool,
			Input:   input,
		}, nil, nil

	default:
		return nil, nil, &ParseError{
			Reason: "the response contains neither an Action nor a Final Answer",
			Raw:    raw,
		}
	}
}

// Normalize applies the markup-tolerance pipeline in a fixed order:
// emphasis first so that decorated log prefixes still look like log
// prefixes, then log-line removal.
func Normalize(raw string) string {
	text := stripEmphasis(raw)
	text = dropLogLines(text)
	return strings.TrimSpace(text)
}

// stripEmphasis removes markdown emphasis characters while leaving
// code-like content alone. Runs of two or more asterisks or underscores
// are always emphasis. A single asterisk is emphasis only when it hugs a
// letter, so 2*3 and SELECT *, FROM both survive while *italic* does not.
// Single underscores survive, so snake_case tool names pass through.
func stripEmphasis(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			j := i
			for j < len(runes) && runes[j] == '*' {
				j++
			}
			if j-i == 1 {
				prevLetter := i > 0 && unicode.IsLetter(runes[i-1])
				nextLetter := j < len(runes) && unicode.IsLetter(runes[j])
				if !prevLetter && !nextLetter {
					b.WriteRune('*')
				}
			}
			i = j - 1
		case '_':
			j := i
			for j < len(runes) && runes[j] == '_' {
				j++
			}
			if j-i == 1 {
				b.WriteRune('_')
			}
			i = j - 1
		default:
			b.WriteRune(runes[i])
		}
	}
	return b.String()
}

// dropLogLines removes lines that look like leaked logger output, either a
// level prefix (INFO: ...) or the timestamped form (... - INFO - ...).
func dropLogLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if logLinePrefix.MatchString(line) || logLineInline.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// truncateFabricated cuts an Action Input at the first marker of invented
// result prose.
func truncateFabricated(input string) string {
	cut := len(input)
	for _, marker := range fabricatedResultMarkers {
		if idx := strings.Index(input, marker); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	return input[:cut]
}

// unfence strips a wrapping markdown code fence, including a language hint
// like ```sql, from a tool input.
func unfence(s string) string {
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		body := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
		if i := strings.Index(body, "\n"); i >= 0 {
			first := strings.TrimSpace(body[:i])
			if first != "" && len(first) <= 10 && !strings.Contains(first, " ") {
				body = body[i+1:]
			}
		}
		return strings.TrimSpace(body)
	}
	if len(s) >= 2 && strings.HasPrefix(s, "`") && strings.HasSuffix(s, "`") {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	return s
}

// thoughtBefore extracts the reasoning text preceding a marker position.
func thoughtBefore(text string, loc int) string {
	head := strings.TrimSpace(text[:loc])
	head = strings.TrimPrefix(head, "Thought:")
	return strings.TrimSpace(head)
}
