package prompts

// AnswerPromptData contains data for the structured answer context template.
type AnswerPromptData struct {
	Persona string
	Details map[string]string
}

// AnswerPromptTemplate sets up a conversation whose single-turn replies are
// JSON objects with an "answer" key.
const AnswerPromptTemplate = `
{{ .Persona }}

{{ formatDetails .Details }}

You receive the conversation as a JSON array of messages with "role" and "content".
Reply to the last user message with a single JSON object of the form {"answer": "<your reply>"} and nothing else.`

// AnswerContext renders the context for sessions that use single-turn structured exchanges.
func AnswerContext(data AnswerPromptData) (string, error) {
	return generateFromTemplate(AnswerPromptTemplate, data)
}
