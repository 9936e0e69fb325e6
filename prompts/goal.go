package prompts

// GoalPromptData contains data for the goal check instruction template.
type GoalPromptData struct {
	Goal    string
	Fields  []string
	Details map[string]string
}

// GoalPromptTemplate asks the model to judge the conversation against a goal
// and answer with a JSON object that always carries a summary.
const GoalPromptTemplate = `
Review the conversation so far and decide whether it has reached this goal:

{{ .Goal }}

{{ formatDetails .Details }}

# Output Format
Reply with a single JSON object and nothing else.
- "summary": a short summary of the conversation measured against the goal.
- "achieved": true when the goal has been reached, otherwise false.
{{- if .Fields }}
- Also include the keys {{ formatFields .Fields }} with what the conversation established for each, or null when unknown.
{{- end }}`

// GoalInstruction renders the goal check instruction.
func GoalInstruction(data GoalPromptData) (string, error) {
	return generateFromTemplate(GoalPromptTemplate, data)
}
