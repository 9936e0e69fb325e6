package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Define a custom type for context keys
type ContextKey string

const (
	SessionIDKey  ContextKey = "sessionID"
	RequestIDKey  ContextKey = "requestID"
	CustomerIDKey ContextKey = "customerID"
	ExtraKey      ContextKey = "extra"
)

// BreakerConfig trips the circuit after FailureThreshold consecutive
// transient failures. A zero threshold disables the breaker.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	HalfOpenRequests uint32        `mapstructure:"half_open_requests"`
}

type LLMConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Organization string        `mapstructure:"organization"`
	Timeout      time.Duration `mapstructure:"timeout"`
	// RequestsPerSecond of zero means unlimited.
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Breaker           BreakerConfig `mapstructure:"breaker"`

	HTTPClient *http.Client `mapstructure:"-"`
}

// LLM is a wrapper around the openai client. Retries are left to the caller,
// so the SDK's own retry loop is switched off.
type LLM struct {
	client  openai.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewLLMClient builds the endpoint adapter. It fails fast when no API key is configured.
func (config *LLMConfig) NewLLMClient() (*LLM, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Organization != "" {
		opts = append(opts, option.WithOrganization(config.Organization))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}
	if config.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	logger := log.With().Str("module", "llm").Logger()

	return &LLM{
		client:  openai.NewClient(opts...),
		limiter: rate.NewLimiter(limit, burst),
		breaker: newBreaker(config.Breaker, logger),
		logger:  logger,
	}, nil
}

func newBreaker(config BreakerConfig, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	if config.FailureThreshold == 0 {
		return nil
	}
	halfOpen := config.HalfOpenRequests
	if halfOpen == 0 {
		halfOpen = 1
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: halfOpen,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		// Only remote trouble counts against the endpoint; rejected requests do not.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}

func optsWithIds(ctx context.Context, opts []option.RequestOption) []option.RequestOption {
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		opts = append(opts, option.WithHeader("X-Session-Id", sessionID))
	}

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		opts = append(opts, option.WithHeader("X-Request-Id", requestID))
	}

	if customerID, ok := ctx.Value(CustomerIDKey).(string); ok {
		opts = append(opts, option.WithJSONSet("user", customerID))
	}

	if extraMeta, ok := ctx.Value(ExtraKey).(map[string]string); ok {
		for key, value := range extraMeta {
			opts = append(opts, option.WithJSONSet(key, value))
		}
	}

	return opts
}

// do runs call behind the rate limiter and breaker and classifies its error.
func (c *LLM) do(ctx context.Context, endpoint string, call func() (*Reply, error)) (*Reply, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llm: rate limiter: %w", err)
	}

	start := time.Now()
	run := func() (*Reply, error) {
		reply, err := call()
		return reply, classify(ctx, err)
	}

	var reply *Reply
	var err error
	if c.breaker == nil {
		reply, err = run()
	} else {
		var out interface{}
		out, err = c.breaker.Execute(func() (interface{}, error) {
			return run()
		})
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			err = fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		} else if out != nil {
			reply = out.(*Reply)
		}
	}

	event := c.logger.Debug()
	if err != nil {
		event = c.logger.Warn().Err(err)
	}
	event.
		Str("endpoint", endpoint).
		Interface("request_id", ctx.Value(RequestIDKey)).
		Dur("duration", time.Since(start)).
		Msg("LLM request finished")

	if err != nil {
		return nil, err
	}
	return reply, nil
}

// Chat sends the transcript to the chat completions endpoint.
func (c *LLM) Chat(ctx context.Context, req ChatRequest) (*Reply, error) {
	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(req.Messages),
		Model:    openai.ChatModel(req.Model),
	}
	o := req.Options
	if o.Temperature != nil {
		params.Temperature = openai.Float(*o.Temperature)
	}
	if o.TopP != nil {
		params.TopP = openai.Float(*o.TopP)
	}
	if o.MaxTokens > 0 {
		params.MaxTokens = openai.Int(o.MaxTokens)
	}
	if o.User != "" {
		params.User = openai.String(o.User)
	}
	if o.Schema != nil {
		schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   o.Schema.Name,
			Schema: o.Schema.Schema,
			Strict: openai.Bool(o.Schema.Strict),
		}
		if o.Schema.Description != "" {
			schemaParam.Description = openai.String(o.Schema.Description)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
		}
	}

	return c.do(ctx, "chat", func() (*Reply, error) {
		completion, err := c.client.Chat.Completions.New(ctx, params, optsWithIds(ctx, nil)...)
		if err != nil {
			return nil, err
		}
		reply := &Reply{
			Model: completion.Model,
			Usage: Usage{
				PromptTokens:     completion.Usage.PromptTokens,
				CompletionTokens: completion.Usage.CompletionTokens,
			},
		}
		for _, choice := range completion.Choices {
			reply.Choices = append(reply.Choices, choice.Message.Content)
		}
		return reply, nil
	})
}

// Complete sends a raw prompt to the legacy completions endpoint.
func (c *LLM) Complete(ctx context.Context, req CompletionRequest) (*Reply, error) {
	params := openai.CompletionNewParams{
		Model:  openai.CompletionNewParamsModel(req.Model),
		Prompt: openai.CompletionNewParamsPromptUnion{OfString: openai.String(req.Prompt)},
	}
	o := req.Options
	if o.Temperature != nil {
		params.Temperature = openai.Float(*o.Temperature)
	}
	if o.TopP != nil {
		params.TopP = openai.Float(*o.TopP)
	}
	if o.MaxTokens > 0 {
		params.MaxTokens = openai.Int(o.MaxTokens)
	}
	if o.User != "" {
		params.User = openai.String(o.User)
	}

	return c.do(ctx, "completion", func() (*Reply, error) {
		completion, err := c.client.Completions.New(ctx, params, optsWithIds(ctx, nil)...)
		if err != nil {
			return nil, err
		}
		reply := &Reply{
			Model: completion.Model,
			Usage: Usage{
				PromptTokens:     completion.Usage.PromptTokens,
				CompletionTokens: completion.Usage.CompletionTokens,
			},
		}
		for _, choice := range completion.Choices {
			reply.Choices = append(reply.Choices, choice.Text)
		}
		return reply, nil
	})
}

// ListModels returns the ids of the models the endpoint serves.
func (c *LLM) ListModels(ctx context.Context) ([]string, error) {
	var ids []string
	_, err := c.do(ctx, "models", func() (*Reply, error) {
		page, err := c.client.Models.List(ctx, optsWithIds(ctx, nil)...)
		if err != nil {
			return nil, err
		}
		for _, model := range page.Data {
			ids = append(ids, model.ID)
		}
		return &Reply{}, nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}
