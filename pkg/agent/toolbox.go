package agent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tmc/langchaingo/tools"
)

// Toolbox is the closed set of tools one agent run can choose from. It is
// assembled once at startup and passed to the executor explicitly; nothing
// here is global, so two servers with different tool sets can coexist in
// one process.
type Toolbox struct {
	order  []string
	byName map[string]tools.Tool
}

// NewToolbox registers the given tools, preserving order for prompt
// rendering. Duplicate or empty names are configuration mistakes and fail
// loudly.
func NewToolbox(list ...tools.Tool) (*Toolbox, error) {
	tb := &Toolbox{byName: make(map[string]tools.Tool, len(list))}
	for _, t := range list {
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, exists := tb.byName[name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		tb.byName[name] = t
		tb.order = append(tb.order, name)
	}
	return tb, nil
}

// Lookup returns the named tool, or an UnknownToolError listing what is
// actually available so the message can be fed straight back to the model.
func (tb *Toolbox) Lookup(name string) (tools.Tool, error) {
	if t, ok := tb.byName[name]; ok {
		return t, nil
	}
	return nil, &UnknownToolError{Name: name, Available: tb.Names()}
}

// Names returns the registered tool names in registration order.
func (tb *Toolbox) Names() []string {
	return slices.Clone(tb.order)
}

// All returns the registered tools in registration order.
func (tb *Toolbox) All() []tools.Tool {
	out := make([]tools.Tool, 0, len(tb.order))
	for _, name := range tb.order {
		out = append(out, tb.byName[name])
	}
	return out
}

func (tb *Toolbox) Len() int {
	return len(tb.order)
}

// Describe renders the name-and-description list injected into the prompt.
func (tb *Toolbox) Describe() string {
	var b strings.Builder
	for _, name := range tb.order {
		fmt.Fprintf(&b, "%s: %s\n", name, tb.byName[name].Description())
	}
	return strings.TrimRight(b.String(), "\n")
}

// UnknownToolError reports a model request for a tool that is not
// registered.
type UnknownToolError struct {
	Name      string
	Available []string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q: available tools are %s", e.Name, strings.Join(e.Available, ", "))
}
