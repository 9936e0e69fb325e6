package convo

import "github.com/boat-builder/convo/llm"

type (
	Role    = llm.Role
	Message = llm.Message
)

const (
	RoleSystem    = llm.RoleSystem
	RoleUser      = llm.RoleUser
	RoleAssistant = llm.RoleAssistant
)

// MessageList holds an ordered, append-only collection of messages.
type MessageList struct {
	messages []Message
}

func NewMessageList(msgs ...Message) *MessageList {
	return &MessageList{
		messages: append([]Message{}, msgs...),
	}
}

func (ml *MessageList) Len() int {
	return len(ml.messages)
}

// Add appends one or more new messages to the MessageList in a FIFO order.
func (ml *MessageList) Add(msgs ...Message) {
	ml.messages = append(ml.messages, msgs...)
}

// All returns a copy of the messages so callers cannot rewrite history.
func (ml *MessageList) All() []Message {
	return append([]Message{}, ml.messages...)
}

func (ml *MessageList) Clone() *MessageList {
	return NewMessageList(ml.messages...)
}
