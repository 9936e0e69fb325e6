package convo

import (
	"fmt"

	"github.com/boat-builder/convo/llm"
)

// Prompt is either plain text or a structured message. It describes the
// context a session starts from and the instruction used for goal checks.
type Prompt struct {
	set        bool
	text       string
	structured *Message
}

// Text wraps plain text. As a context it becomes a system message.
func Text(s string) Prompt {
	return Prompt{set: true, text: s}
}

// Structured wraps a message that is used verbatim.
func Structured(msg Message) Prompt {
	return Prompt{set: true, structured: &msg}
}

// PromptFrom resolves a dynamically typed value: a string, a Message or a
// role/content mapping such as decoded JSON.
func PromptFrom(v any) (Prompt, error) {
	switch p := v.(type) {
	case Prompt:
		return p.check()
	case string:
		return Text(p), nil
	case Message:
		return Structured(p).check()
	case map[string]string:
		return Structured(Message{Role: Role(p["role"]), Content: p["content"]}).check()
	case map[string]any:
		msg, ok := messageFromMap(p)
		if !ok {
			return Prompt{}, fmt.Errorf("%w: mapping needs string role and content", ErrInvalidContextType)
		}
		return Structured(msg).check()
	}
	return Prompt{}, fmt.Errorf("%w: got %T", ErrInvalidContextType, v)
}

func (p Prompt) check() (Prompt, error) {
	if err := p.validate(); err != nil {
		return Prompt{}, err
	}
	return p, nil
}

func (p Prompt) validate() error {
	if !p.set {
		return fmt.Errorf("%w: prompt is not set", ErrInvalidContextType)
	}
	if p.structured == nil {
		return nil
	}
	if !p.structured.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidContextType, p.structured.Role)
	}
	return nil
}

// Message resolves the prompt into the transcript entry it stands for.
func (p Prompt) Message() Message {
	if p.structured != nil {
		return *p.structured
	}
	return SystemMessage(p.text)
}

func SystemMessage(content string) Message {
	return llm.SystemMessage(content)
}

func UserMessage(content string) Message {
	return llm.UserMessage(content)
}

func AssistantMessage(content string) Message {
	return llm.AssistantMessage(content)
}

// HistoryFrom converts dynamically typed history, such as decoded JSON, into
// messages. Anything other than a sequence of role/content mappings fails
// with ErrInvalidInputType.
func HistoryFrom(v any) ([]Message, error) {
	switch h := v.(type) {
	case []Message:
		return append([]Message{}, h...), nil
	case []map[string]any:
		msgs := make([]Message, 0, len(h))
		for i, entry := range h {
			msg, ok := messageFromMap(entry)
			if !ok {
				return nil, fmt.Errorf("%w: entry %d is not a role/content mapping", ErrInvalidInputType, i)
			}
			msgs = append(msgs, msg)
		}
		return msgs, nil
	case []map[string]string:
		msgs := make([]Message, 0, len(h))
		for _, entry := range h {
			msgs = append(msgs, Message{Role: Role(entry["role"]), Content: entry["content"]})
		}
		return msgs, nil
	case []any:
		msgs := make([]Message, 0, len(h))
		for i, entry := range h {
			var (
				msg Message
				ok  bool
			)
			switch e := entry.(type) {
			case map[string]any:
				msg, ok = messageFromMap(e)
			case map[string]string:
				msg, ok = Message{Role: Role(e["role"]), Content: e["content"]}, true
			case Message:
				msg, ok = e, true
			}
			if !ok {
				return nil, fmt.Errorf("%w: entry %d is %T", ErrInvalidInputType, i, entry)
			}
			msgs = append(msgs, msg)
		}
		return msgs, nil
	}
	return nil, fmt.Errorf("%w: got %T", ErrInvalidInputType, v)
}

func messageFromMap(m map[string]any) (Message, bool) {
	role, ok := m["role"].(string)
	if !ok {
		return Message{}, false
	}
	content, ok := m["content"].(string)
	if !ok {
		return Message{}, false
	}
	return Message{Role: Role(role), Content: content}, true
}
