// Package convo keeps a conversation with a remote language model: an
// append-only transcript, retried exchanges and validated replies.
package convo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boat-builder/convo/llm"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Session holds one conversation's transcript and the instruction used to
// check whether it reached its goal. A Session is not safe for concurrent use.
type Session struct {
	id          string
	client      llm.Client
	instruction Prompt
	history     *MessageList

	retry RetryPolicy
	sleep Sleeper
	usage map[string]llm.Usage

	logger zerolog.Logger
}

type Option func(*Session)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *Session) {
		s.retry = policy
	}
}

// WithSleeper replaces the backoff sleep, mostly for tests.
func WithSleeper(sleep Sleeper) Option {
	return func(s *Session) {
		s.sleep = sleep
	}
}

// WithID resumes a session under a known id instead of generating one.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// NewSession starts a transcript with the context message. The instruction
// is kept aside for VerifyGoal and never enters the transcript.
func NewSession(client llm.Client, contextPrompt Prompt, instruction Prompt, opts ...Option) (*Session, error) {
	if err := contextPrompt.validate(); err != nil {
		return nil, err
	}
	if err := instruction.validate(); err != nil {
		return nil, err
	}

	s := &Session{
		client:      client,
		instruction: instruction,
		history:     NewMessageList(contextPrompt.Message()),
		retry:       DefaultRetryPolicy(),
		sleep:       sleepContext,
		usage:       map[string]llm.Usage{},
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		s.id = id
	}
	s.logger = s.logger.With().Str("module", "convo.session").Str("session_id", s.id).Logger()
	return s, nil
}

func (s *Session) ID() string {
	return s.id
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []Message {
	return s.history.All()
}

// AddHistory appends earlier messages verbatim. Nothing is appended unless
// every message has a known role.
func (s *Session) AddHistory(messages []Message) error {
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("%w: message %d has role %q", ErrInvalidInputType, i, msg.Role)
		}
	}
	s.history.Add(messages...)
	return nil
}

// requestContext tags outgoing calls so endpoint logs and proxies can
// correlate them with this session.
func (s *Session) requestContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, llm.SessionIDKey, s.id)
	return context.WithValue(ctx, llm.RequestIDKey, uuid.NewString())
}

// Exchange sends the prompt as the next user turn and records the reply.
// When every attempt fails the prompt stays in the transcript without a reply.
func (s *Session) Exchange(ctx context.Context, model, prompt string, opts llm.Options) (Answer, error) {
	s.history.Add(UserMessage(prompt))

	ctx = s.requestContext(ctx)
	reply, err := s.withRetry(ctx, "chat", func(ctx context.Context) (*llm.Reply, error) {
		return s.client.Chat(ctx, llm.ChatRequest{Model: model, Messages: s.history.All(), Options: opts})
	})
	if err != nil {
		return Answer{}, err
	}
	s.track(model, reply)

	if len(reply.Choices) == 0 {
		s.logger.Error().Msg("Received empty choices from the API")
		return Answer{}, ErrEmptyResponse
	}

	text := reply.Choices[0]
	s.history.Add(AssistantMessage(text))
	return Answer{Text: text}, nil
}

// ExchangeOnce asks a single structured question through the completion
// endpoint. The model is expected to reply with a JSON object holding an
// "answer"; only then are the prompt and answer kept. A reply that is not
// JSON is handed back raw with Intent false and the transcript untouched.
func (s *Session) ExchangeOnce(ctx context.Context, model, prompt string, opts llm.Options) (Answer, error) {
	tentative := s.history.Clone()
	tentative.Add(UserMessage(prompt))

	encoded, err := json.Marshal(tentative.All())
	if err != nil {
		return Answer{}, fmt.Errorf("encode transcript: %w", err)
	}

	ctx = s.requestContext(ctx)
	reply, err := s.withRetry(ctx, "completion", func(ctx context.Context) (*llm.Reply, error) {
		return s.client.Complete(ctx, llm.CompletionRequest{Model: model, Prompt: string(encoded), Options: opts})
	})
	if err != nil {
		return Answer{}, err
	}
	s.track(model, reply)

	if len(reply.Choices) == 0 {
		s.logger.Error().Msg("Received empty choices from the API")
		return Answer{}, ErrEmptyResponse
	}
	raw := reply.Choices[0]

	obj, ok := parseObject(raw)
	if !ok {
		s.logger.Error().Str("prompt", prompt).Str("response", raw).Msg("Error occurred while parsing response")
		s.logger.Info().Msg("Returning a safe response to the user")
		return fallbackAnswer(raw), nil
	}

	text, ok := takeString(obj, "answer")
	if !ok {
		return Answer{}, fmt.Errorf("%w: missing answer", ErrInvalidResponseFormat)
	}

	tentative.Add(AssistantMessage(text))
	s.history = tentative
	return Answer{Text: text, Fields: obj}, nil
}

// VerifyGoal asks the model whether the conversation met its goal, using the
// stored instruction as the final message. The reply must be a JSON object
// with a "summary"; there is no fallback. The transcript is not modified.
func (s *Session) VerifyGoal(ctx context.Context, model string, opts llm.Options) (GoalCheck, error) {
	messages := s.history.Clone()
	messages.Add(s.instruction.Message())

	ctx = s.requestContext(ctx)
	reply, err := s.withRetry(ctx, "chat", func(ctx context.Context) (*llm.Reply, error) {
		return s.client.Chat(ctx, llm.ChatRequest{Model: model, Messages: messages.All(), Options: opts})
	})
	if err != nil {
		return GoalCheck{}, err
	}
	s.track(model, reply)

	if len(reply.Choices) == 0 {
		s.logger.Error().Msg("Received empty choices from the API")
		return GoalCheck{}, ErrEmptyResponse
	}
	raw := reply.Choices[0]

	obj, ok := parseObject(raw)
	if !ok {
		s.logger.Error().Str("response", raw).Msg("Error occurred while parsing goal check")
		return GoalCheck{}, fmt.Errorf("%w: goal check is not JSON", ErrInvalidResponseFormat)
	}
	summary, ok := takeString(obj, "summary")
	if !ok {
		return GoalCheck{}, fmt.Errorf("%w: missing summary", ErrInvalidResponseFormat)
	}
	return GoalCheck{Summary: summary, Fields: obj}, nil
}
