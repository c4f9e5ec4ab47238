package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/journalmesh"
	"github.com/hupe1980/journalmesh/internal/config"
	"github.com/hupe1980/journalmesh/journal"
	"github.com/hupe1980/journalmesh/logging"
	"github.com/hupe1980/journalmesh/model"
	"github.com/hupe1980/journalmesh/model/anthropic"
	"github.com/hupe1980/journalmesh/model/gemini"
	"github.com/hupe1980/journalmesh/model/openai"
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// runtime holds everything a command needs; Close releases the backends.
type runtime struct {
	cfg     *config.Config
	logger  logging.Logger
	mesh    *journalmesh.Mesh
	closers []func(context.Context) error
}

func newRuntime(ctx context.Context, g *Globals, optFns ...func(o *journalmesh.Options)) (*runtime, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.Demo {
		cfg.LLM.Provider = "scripted"
	}

	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger}

	llm, err := newModel(ctx, cfg.LLM, cfg.APIKey())
	if err != nil {
		return nil, err
	}

	store, history, err := rt.openStores(ctx)
	if err != nil {
		_ = rt.Close(context.Background())
		return nil, err
	}

	prompts, err := cfg.PromptMap()
	if err != nil {
		_ = rt.Close(context.Background())
		return nil, err
	}

	mesh, err := journalmesh.New(llm, func(o *journalmesh.Options) {
		o.Store = store
		o.History = history
		if prompts != nil {
			o.Prompts = prompts
		}
		o.GatewayTimeout = cfg.Supervisor.GatewayTimeout
		o.ToolTimeout = cfg.Supervisor.ToolTimeout
		o.DelegationTimeout = cfg.Supervisor.DelegationTimeout
		o.MaxRounds = cfg.Supervisor.MaxRounds
		o.MaxAgentToolRounds = cfg.Supervisor.MaxAgentToolRounds
		o.HistoryMessages = cfg.History.MaxMessages
		o.MaxConcurrentQueries = cfg.Supervisor.MaxConcurrentQueries
		o.Logger = logger
		for _, fn := range optFns {
			fn(o)
		}
	})
	if err != nil {
		_ = rt.Close(context.Background())
		return nil, err
	}
	rt.mesh = mesh

	logger.Info("journalmesh.runtime.ready",
		"provider", cfg.LLM.Provider,
		"store", cfg.Store.Driver,
		"history", cfg.History.Driver,
	)

	return rt, nil
}

// Close releases every opened backend.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i](ctx))
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func newLogger(cfg config.LogConfig, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case "logrus":
		return logging.NewLogrusLogger(level, out), nil
	case "", "slog":
		return logging.NewLogger(&logging.LoggerConfig{
			Level:     level,
			Format:    cfg.Format,
			Output:    out,
			Component: "journalmesh",
		}), nil
	default:
		return nil, fmt.Errorf("unknown log backend %q", cfg.Backend)
	}
}

func newModel(ctx context.Context, cfg config.LLMConfig, apiKey string) (model.Model, error) {
	switch cfg.Provider {
	case "scripted":
		return newDemoModel(), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = cfg.MaxTokens
			}
			o.APIKey = apiKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.APIKey = apiKey
		}), nil
	case "gemini":
		return gemini.NewModel(ctx, func(o *gemini.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.Temperature = float32(cfg.Temperature)
			o.APIKey = apiKey
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func (rt *runtime) openStores(ctx context.Context) (journal.Store, journal.History, error) {
	var (
		store   journal.Store
		history journal.History
	)

	switch rt.cfg.Store.Driver {
	case "mongo":
		client, err := journal.ConnectMongo(ctx, rt.cfg.Store.URI)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, client.Disconnect)

		db := client.Database(rt.cfg.Store.Database)
		mongoStore := journal.NewMongoStore(db)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			return nil, nil, err
		}
		store = mongoStore

		if rt.cfg.History.Driver == "mongo" {
			history = journal.NewMongoHistory(db)
		}
	default:
		store = journal.NewMemoryStore()
	}

	switch rt.cfg.History.Driver {
	case "redis":
		client, err := journal.ConnectRedis(ctx, rt.cfg.History.Addr, rt.cfg.History.Password, rt.cfg.History.DB)
		if err != nil {
			return nil, nil, err
		}
		rt.closers = append(rt.closers, func(context.Context) error { return client.Close() })
		history = journal.NewRedisHistory(client, func(o *journal.RedisHistoryOptions) {
			o.Retention = rt.cfg.History.Retention
		})
	case "memory":
		history = journal.NewMemoryHistory(0)
	}

	return store, history, nil
}
