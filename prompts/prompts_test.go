package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoalInstruction(t *testing.T) {
	t.Run("goal only", func(t *testing.T) {
		got, err := GoalInstruction(GoalPromptData{Goal: "Book a table for two."})
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(got, "Review the conversation"))
		assert.Contains(t, got, "Book a table for two.")
		assert.Contains(t, got, `"summary"`)
		assert.Contains(t, got, `"achieved"`)
		assert.NotContains(t, got, "<Details>")
		assert.NotContains(t, got, "Also include the keys")
	})

	t.Run("fields and details", func(t *testing.T) {
		got, err := GoalInstruction(GoalPromptData{
			Goal:    "Collect the caller's contact data.",
			Fields:  []string{"name", "phone"},
			Details: map[string]string{"Language": "English", "Channel": "phone"},
		})
		require.NoError(t, err)

		assert.Contains(t, got, `Also include the keys "name", "phone"`)
		assert.Contains(t, got, "<Details>\nChannel: phone\nLanguage: English\n</Details>")
	})
}

func TestAnswerContext(t *testing.T) {
	got, err := AnswerContext(AnswerPromptData{Persona: "You are a concierge."})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "You are a concierge."))
	assert.Contains(t, got, `{"answer": "<your reply>"}`)
	assert.NotContains(t, got, "<Details>")
}

func TestFormatFields(t *testing.T) {
	assert.Equal(t, "", formatFields(nil))
	assert.Equal(t, `"a"`, formatFields([]string{"a"}))
	assert.Equal(t, `"a", "b c"`, formatFields([]string{"a", "b c"}))
}

func TestGenerateFromTemplate_ParseError(t *testing.T) {
	_, err := generateFromTemplate("{{ .Missing", struct{}{})
	assert.Error(t, err)
}
