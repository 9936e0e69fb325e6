package convo

import (
	"encoding/json"
	"fmt"
)

// Answer is what an exchange resolves to. Intent is only set, to false, when
// the model's reply could not be parsed and the raw text is passed through.
type Answer struct {
	Text   string
	Intent *bool
	// Fields holds any other keys of a structured reply.
	Fields map[string]any
}

// Degraded reports whether the answer is the unparsed fallback.
func (a Answer) Degraded() bool {
	return a.Intent != nil && !*a.Intent
}

func (a Answer) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Fields)+2)
	for k, v := range a.Fields {
		out[k] = v
	}
	out["answer"] = a.Text
	if a.Intent != nil {
		out["intent"] = *a.Intent
	}
	return json.Marshal(out)
}

func fallbackAnswer(raw string) Answer {
	intent := false
	return Answer{Text: raw, Intent: &intent}
}

// GoalCheck is the structured verdict of a goal check.
type GoalCheck struct {
	Summary string
	Fields  map[string]any
}

func (g GoalCheck) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(g.Fields)+1)
	for k, v := range g.Fields {
		out[k] = v
	}
	out["summary"] = g.Summary
	return json.Marshal(out)
}

// goalReply documents the shape a goal check asks the model for.
type goalReply struct {
	Summary  string `json:"summary" jsonschema:"description=Summary of the conversation so far against the goal"`
	Achieved bool   `json:"achieved" jsonschema:"description=Whether the conversation reached its goal"`
}

// parseObject decodes raw as a JSON object. ok is false when raw is not JSON
// at all; a JSON value that is not an object yields ok with a nil map.
func parseObject(raw string) (obj map[string]any, ok bool) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false
	}
	obj, _ = v.(map[string]any)
	return obj, true
}

// takeString removes key from obj and renders it as text. Missing and null
// values report false.
func takeString(obj map[string]any, key string) (string, bool) {
	v, present := obj[key]
	if !present || v == nil {
		return "", false
	}
	delete(obj, key)
	if s, ok := v.(string); ok {
		return s, true
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v), true
	}
	return string(b), true
}
