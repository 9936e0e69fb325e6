// Package llm provides the remote language model endpoint used by conversation sessions.
package llm

import "context"

// Role tags a message in a transcript.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the roles the endpoint understands.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single role-tagged transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ResponseSchema asks the chat endpoint for a reply matching a JSON schema.
type ResponseSchema struct {
	Name        string
	Description string
	Schema      any
	Strict      bool
}

// Options are the per-call sampling knobs forwarded to the endpoint.
// Zero values are omitted from the request.
type Options struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   int64
	User        string
	// Schema only applies to chat calls.
	Schema *ResponseSchema
}

type ChatRequest struct {
	Model    string
	Messages []Message
	Options  Options
}

type CompletionRequest struct {
	Model   string
	Prompt  string
	Options Options
}

type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Reply is what a successful call resolves to. Choices holds the text of
// every returned choice in order and may be empty.
type Reply struct {
	Model   string
	Choices []string
	Usage   Usage
}

// Client is the minimal contract sessions rely on. LLM implements it; tests
// substitute scripted fakes.
type Client interface {
	// Chat issues a chat-style completion over an ordered message list.
	Chat(ctx context.Context, req ChatRequest) (*Reply, error)

	// Complete issues a legacy prompt-style completion.
	Complete(ctx context.Context, req CompletionRequest) (*Reply, error)
}

var _ Client = (*LLM)(nil)
