package convo

import (
	"github.com/boat-builder/convo/llm"
	"github.com/invopop/jsonschema"
)

func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	return schema
}

// GoalSchema asks the chat endpoint to answer a goal check with a summary object.
func GoalSchema() *llm.ResponseSchema {
	return &llm.ResponseSchema{
		Name:        "goal_check",
		Description: "Verdict on whether the conversation reached its goal",
		Schema:      GenerateSchema[goalReply](),
		Strict:      true,
	}
}
