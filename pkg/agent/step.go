package agent

// Action is a parsed request to invoke one tool.
type Action struct {
	Thought string
	Tool    string
	Input   string
}

// FinalAnswer is a parsed terminal response.
type FinalAnswer struct {
	Thought string
	Answer  string
}

// Step records one executed turn of the loop. Tool and Input are empty for
// turns where the model's response could not be parsed; the Observation
// then carries the corrective message that was fed back.
type Step struct {
	Thought     string `json:"thought"`
	Tool        string `json:"tool,omitempty"`
	Input       string `json:"input,omitempty"`
	Observation string `json:"observation"`
}

// RunResult is the outcome of one full agent run. Incomplete marks runs
// that hit the iteration cap before reaching a final answer; Answer then
// holds an explicit statement to that effect rather than a guess.
type RunResult struct {
	Answer     string `json:"answer"`
	Steps      []Step `json:"steps"`
	Iterations int    `json:"iterations"`
	Incomplete bool   `json:"incomplete,omitempty"`
}
