package convo

import (
	"sort"

	"github.com/boat-builder/convo/llm"
)

type TokenRates struct {
	Input  float64
	Output float64
}

// Pricing constants for GPT-4o and GPT-4o-mini and O3-mini(in dollars per million tokens)
const (
	GPT4oInputRate      = 2.5
	GPT4oOutputRate     = 10.0
	GPT4oMiniInputRate  = 0.15
	GPT4oMiniOutputRate = 0.60
	O3MiniInputRate     = 1.10
	O3MiniOutputRate    = 4.40
	InstructInputRate   = 1.50
	InstructOutputRate  = 2.00
)

// ModelPricings is a map of model names to their pricing information
var ModelPricings = map[string]TokenRates{
	"gpt-4o": {
		Input:  GPT4oInputRate,
		Output: GPT4oOutputRate,
	},
	"gpt-4o-mini": {
		Input:  GPT4oMiniInputRate,
		Output: GPT4oMiniOutputRate,
	},
	"o3-mini": {
		Input:  O3MiniInputRate,
		Output: O3MiniOutputRate,
	},
	"gpt-3.5-turbo-instruct": {
		Input:  InstructInputRate,
		Output: InstructOutputRate,
	},
	"azure/gpt-4o": {
		Input:  GPT4oInputRate,
		Output: GPT4oOutputRate,
	},
	"azure/gpt-4o-mini": {
		Input:  GPT4oMiniInputRate,
		Output: GPT4oMiniOutputRate,
	},
	"azure/o3-mini": {
		Input:  O3MiniInputRate,
		Output: O3MiniOutputRate,
	},
}

// CostDetails represents detailed cost information for a session
type CostDetails struct {
	InputTokens  int64
	OutputTokens int64
	TotalCost    float64
	// Unpriced lists models that were used but have no pricing entry.
	Unpriced []string
}

func (s *Session) track(model string, reply *llm.Reply) {
	u := s.usage[model]
	u.PromptTokens += reply.Usage.PromptTokens
	u.CompletionTokens += reply.Usage.CompletionTokens
	s.usage[model] = u
}

// Cost returns the accumulated cost of the session across every model it used.
// ok is false when nothing was used yet or some model has no pricing; the
// details still carry the token totals and the priced part of the cost.
func (s *Session) Cost() (*CostDetails, bool) {
	details := &CostDetails{}
	for model, u := range s.usage {
		details.InputTokens += u.PromptTokens
		details.OutputTokens += u.CompletionTokens

		pricing, exists := ModelPricings[model]
		if !exists {
			details.Unpriced = append(details.Unpriced, model)
			continue
		}
		inputCost := float64(u.PromptTokens) * pricing.Input / 1000000
		outputCost := float64(u.CompletionTokens) * pricing.Output / 1000000
		details.TotalCost += inputCost + outputCost
	}
	sort.Strings(details.Unpriced)

	return details, len(s.usage) > 0 && len(details.Unpriced) == 0
}
