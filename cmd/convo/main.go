package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/boat-builder/convo"
	"github.com/boat-builder/convo/config"
	"github.com/boat-builder/convo/llm"
	"github.com/boat-builder/convo/prompts"
	"github.com/boat-builder/convo/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultGoal = "The user's questions have all been answered."

func usage() {
	fmt.Println("Usage: convo <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  chat      start or resume an interactive conversation")
	fmt.Println("  models    list the models served by the endpoint")
	fmt.Println("  sessions  list stored conversations")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	chatCmd := flag.NewFlagSet("chat", flag.ExitOnError)
	chatConfig := chatCmd.String("config", "", "Path to a config file")
	contextText := chatCmd.String("context", "", "System context for the conversation (overrides session.context)")
	goal := chatCmd.String("goal", "", "Goal the conversation should reach (overrides session.goal)")
	fields := chatCmd.String("fields", "", "Comma-separated extra keys the goal check should report")
	model := chatCmd.String("model", "", "Model to talk to (overrides session.model, or session.completion_model with -once)")
	once := chatCmd.Bool("once", false, "Use single-turn structured exchanges on the completion endpoint")
	sessionID := chatCmd.String("session", "", "Resume a stored conversation by id")
	metricsAddr := chatCmd.String("metrics", "", "Serve Prometheus metrics on this address (overrides metrics.addr)")

	modelsCmd := flag.NewFlagSet("models", flag.ExitOnError)
	modelsConfig := modelsCmd.String("config", "", "Path to a config file")

	sessionsCmd := flag.NewFlagSet("sessions", flag.ExitOnError)
	sessionsConfig := sessionsCmd.String("config", "", "Path to a config file")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "chat":
		chatCmd.Parse(os.Args[2:])
		cfg := mustLoad(*chatConfig)
		if *contextText != "" {
			cfg.Session.Context = *contextText
		}
		if *goal != "" {
			cfg.Session.Goal = *goal
		}
		if *metricsAddr != "" {
			cfg.Metrics.Addr = *metricsAddr
		}
		err = runChat(ctx, cfg, chatOptions{
			model:     *model,
			once:      *once,
			sessionID: *sessionID,
			fields:    splitFields(*fields),
		})
	case "models":
		modelsCmd.Parse(os.Args[2:])
		err = runModels(ctx, mustLoad(*modelsConfig))
	case "sessions":
		sessionsCmd.Parse(os.Args[2:])
		err = runSessions(ctx, mustLoad(*sessionsConfig))
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("convo failed")
	}
}

func mustLoad(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)
	return cfg
}

func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func splitFields(s string) []string {
	var out []string
	for _, field := range strings.Split(s, ",") {
		if field = strings.TrimSpace(field); field != "" {
			out = append(out, field)
		}
	}
	return out
}

type chatOptions struct {
	model     string
	once      bool
	sessionID string
	fields    []string
}

func runChat(ctx context.Context, cfg *config.Config, opts chatOptions) error {
	client, err := cfg.LLM.NewLLMClient()
	if err != nil {
		return err
	}

	var store *storage.Store
	if cfg.Storage.Driver != "" {
		store, err = storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("Metrics server stopped")
			}
		}()
	}

	sess, err := openSession(ctx, cfg, client, store, opts)
	if err != nil {
		return err
	}

	model := opts.model
	if model == "" {
		model = cfg.Session.Model
		if opts.once {
			model = cfg.Session.CompletionModel
		}
	}
	callOpts := cfg.Options()

	fmt.Printf("Session %s. Commands: /goal /models /cost /history /quit\n", sess.ID())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			for _, msg := range sess.Transcript() {
				fmt.Printf("[%s] %s\n", msg.Role, msg.Content)
			}
			continue
		case "/cost":
			details, ok := sess.Cost()
			fmt.Printf("input=%d output=%d cost=$%.6f", details.InputTokens, details.OutputTokens, details.TotalCost)
			if !ok && len(details.Unpriced) > 0 {
				fmt.Printf(" (unpriced: %s)", strings.Join(details.Unpriced, ", "))
			}
			fmt.Println()
			continue
		case "/models":
			ids, err := client.ListModels(ctx)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Println(strings.Join(ids, "\n"))
			continue
		case "/goal":
			goalOpts := callOpts
			if len(opts.fields) == 0 {
				goalOpts.Schema = convo.GoalSchema()
			}
			check, err := sess.VerifyGoal(ctx, cfg.Session.Model, goalOpts)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			printJSON(check)
			continue
		}

		var answer convo.Answer
		if opts.once {
			answer, err = sess.ExchangeOnce(ctx, model, line, callOpts)
		} else {
			answer, err = sess.Exchange(ctx, model, line, callOpts)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Printf("Error: %v\n", err)
		} else {
			fmt.Println(answer.Text)
		}

		if store != nil {
			if err := store.Save(ctx, sess.ID(), sess.Transcript()); err != nil {
				log.Error().Err(err).Str("session_id", sess.ID()).Msg("Failed to save transcript")
			}
		}
	}
}

func openSession(ctx context.Context, cfg *config.Config, client llm.Client, store *storage.Store, opts chatOptions) (*convo.Session, error) {
	goal := cfg.Session.Goal
	if goal == "" {
		goal = defaultGoal
	}
	instruction, err := prompts.GoalInstruction(prompts.GoalPromptData{Goal: goal, Fields: opts.fields})
	if err != nil {
		return nil, err
	}

	sessionOpts := []convo.Option{convo.WithRetryPolicy(cfg.Retry)}

	if opts.sessionID != "" {
		if store == nil {
			return nil, fmt.Errorf("resuming session %s needs storage to be configured", opts.sessionID)
		}
		history, err := store.Load(ctx, opts.sessionID)
		if err != nil {
			return nil, err
		}
		sess, err := convo.NewSession(client, convo.Structured(history[0]), convo.Text(instruction),
			append(sessionOpts, convo.WithID(opts.sessionID))...)
		if err != nil {
			return nil, err
		}
		if err := sess.AddHistory(history[1:]); err != nil {
			return nil, err
		}
		return sess, nil
	}

	contextText := cfg.Session.Context
	if opts.once {
		contextText, err = prompts.AnswerContext(prompts.AnswerPromptData{Persona: contextText})
		if err != nil {
			return nil, err
		}
	}
	return convo.NewSession(client, convo.Text(contextText), convo.Text(instruction), sessionOpts...)
}

func runModels(ctx context.Context, cfg *config.Config) error {
	client, err := cfg.LLM.NewLLMClient()
	if err != nil {
		return err
	}
	ids, err := client.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runSessions(ctx context.Context, cfg *config.Config) error {
	if cfg.Storage.Driver == "" {
		return fmt.Errorf("storage is not configured")
	}
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	ids, err := store.Sessions(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(string(b))
}
