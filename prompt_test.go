package convo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptFrom(t *testing.T) {
	valid := []struct {
		name string
		in   any
		want Message
	}{
		{"string", "Be brief.", SystemMessage("Be brief.")},
		{"empty string", "", SystemMessage("")},
		{"message", UserMessage("hi"), UserMessage("hi")},
		{"string map", map[string]string{"role": "assistant", "content": "ok"}, AssistantMessage("ok")},
		{"any map", map[string]any{"role": "system", "content": "ctx"}, SystemMessage("ctx")},
		{"prompt", Text("again"), SystemMessage("again")},
	}
	for _, tt := range valid {
		t.Run(tt.name, func(t *testing.T) {
			p, err := PromptFrom(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Message())
		})
	}

	invalid := []struct {
		name string
		in   any
	}{
		{"number", 42},
		{"nil", nil},
		{"slice", []string{"a"}},
		{"unknown role", map[string]string{"role": "robot", "content": "beep"}},
		{"missing content", map[string]any{"role": "system"}},
		{"non-string content", map[string]any{"role": "system", "content": 3}},
		{"zero prompt", Prompt{}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PromptFrom(tt.in)
			assert.ErrorIs(t, err, ErrInvalidContextType)
		})
	}
}

func TestHistoryFrom(t *testing.T) {
	var decoded any
	require.NoError(t, json.Unmarshal([]byte(`[
		{"role": "user", "content": "hi"},
		{"role": "assistant", "content": "hello"}
	]`), &decoded))

	msgs, err := HistoryFrom(decoded)
	require.NoError(t, err)
	assert.Equal(t, []Message{UserMessage("hi"), AssistantMessage("hello")}, msgs)

	msgs, err = HistoryFrom([]map[string]any{{"role": "user", "content": "x"}})
	require.NoError(t, err)
	assert.Equal(t, []Message{UserMessage("x")}, msgs)

	for name, in := range map[string]any{
		"not a sequence":    map[string]any{"role": "user", "content": "x"},
		"string":            "hi",
		"non-mapping entry": []any{map[string]any{"role": "user", "content": "x"}, 5},
		"bad mapping entry": []map[string]any{{"role": "user"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := HistoryFrom(in)
			assert.ErrorIs(t, err, ErrInvalidInputType)
		})
	}
}

func TestHistoryFrom_FeedsAddHistory(t *testing.T) {
	sess, _ := newTestSession(t, &fakeClient{})

	msgs, err := HistoryFrom([]any{map[string]string{"role": "critic", "content": "meh"}})
	require.NoError(t, err)
	assert.ErrorIs(t, sess.AddHistory(msgs), ErrInvalidInputType)
	assert.Len(t, sess.Transcript(), 1)
}
