package agent

import (
	"fmt"
	"strings"
)

// The prompt follows the classic ReAct layout: tool list, format contract,
// two worked examples, then the running transcript. The examples cost a few
// hundred tokens but cut malformed responses dramatically on smaller
// models.
const promptPreamble = `You are a senior financial analyst assistant. Answer the question as accurately as you can using the tools available to you.

You have access to the following tools:

%s

Use the following format:

Question: the input question you must answer
Thought: you should always think about what to do next
Action: the tool to use, exactly one of [%s]
Action Input: the input to the tool
Observation: the result of the tool call
... (this Thought/Action/Action Input/Observation sequence can repeat)
Thought: I now know the final answer
Final Answer: the final answer to the original question

Never write an Observation yourself; it will be provided to you. Give either an Action with its Action Input, or a Final Answer, never both in one response.
`

const workedExamples = `
Here are two examples of correctly formatted exchanges:

Question: What was the total profit in 2023?
Thought: Quarterly profit figures live in the financials database, so I should sum them with SQL.
Action: sql_database_query
Action Input: SELECT SUM(profit_millions) FROM quarterly_financials WHERE year = 2023
Observation: 105000
Thought: I now know the final answer
Final Answer: The total profit in 2023 was $105,000 million.

Question: What are the main risk factors in the filing?
Thought: Risk factors are described in the 10-K report, so I should search it.
Action: query_10k_report
Action Input: main business risk factors
Observation: The filing lists competition, evolving regulation and security incidents as principal risks.
Thought: I now know the final answer
Final Answer: The principal risks disclosed in the filing are competition, evolving regulation and security incidents.
`

func renderPrompt(tb *Toolbox, question string, steps []Step) string {
	var b strings.Builder
	fmt.Fprintf(&b, promptPreamble, tb.Describe(), strings.Join(tb.Names(), ", "))
	b.WriteString(workedExamples)
	b.WriteString("\nBegin!\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n")
	b.WriteString(renderScratchpad(steps))
	b.WriteString("Thought:")
	return b.String()
}

// renderScratchpad replays prior turns in the same shape the format
// contract describes, so the model sees its own history exactly as the
// examples show it.
func renderScratchpad(steps []Step) string {
	var b strings.Builder
	for _, s := range steps {
		if s.Thought != "" {
			fmt.Fprintf(&b, "Thought: %s\n", s.Thought)
		}
		if s.Tool != "" {
			fmt.Fprintf(&b, "Action: %s\nAction Input: %s\n", s.Tool, s.Input)
		}
		fmt.Fprintf(&b, "Observation: %s\n", s.Observation)
	}
	return b.String()
}
