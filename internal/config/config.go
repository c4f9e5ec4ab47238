// Package config loads journalmesh configuration from a YAML file, an
// optional .env file and JOURNALMESH_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/journalmesh/core"
	"github.com/hupe1980/journalmesh/logging"
	"github.com/hupe1980/journalmesh/prompt"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "JOURNALMESH_"

// Config is the full process configuration.
type Config struct {
	LLM        LLMConfig         `yaml:"llm"`
	Supervisor SupervisorConfig  `yaml:"supervisor"`
	Store      StoreConfig       `yaml:"store"`
	History    HistoryConfig     `yaml:"history"`
	Server     ServerConfig      `yaml:"server"`
	Log        LogConfig         `yaml:"log"`
	Prompts    map[string]string `yaml:"prompts"` // identity name -> prompt text
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai|anthropic|gemini|scripted
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	BaseURL     string  `yaml:"base_url"`
}

// SupervisorConfig bounds the dispatch loop.
type SupervisorConfig struct {
	MaxRounds            int           `yaml:"max_rounds"`
	MaxAgentToolRounds   int           `yaml:"max_agent_tool_rounds"`
	GatewayTimeout       time.Duration `yaml:"gateway_timeout"`
	ToolTimeout          time.Duration `yaml:"tool_timeout"`
	DelegationTimeout    time.Duration `yaml:"delegation_timeout"`
	MaxConcurrentQueries int           `yaml:"max_concurrent_queries"`
}

// StoreConfig selects the journal store.
type StoreConfig struct {
	Driver   string `yaml:"driver"` // memory|mongo
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// HistoryConfig selects the chat history backend.
type HistoryConfig struct {
	Driver      string        `yaml:"driver"` // memory|redis|mongo
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	MaxMessages int           `yaml:"max_messages"`
	Retention   time.Duration `yaml:"retention"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`  // json|text
	Backend string `yaml:"backend"` // slog|logrus
}

// New returns a configuration holding the defaults.
func New() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Supervisor: SupervisorConfig{
			MaxRounds:          5,
			MaxAgentToolRounds: 3,
			GatewayTimeout:     60 * time.Second,
			ToolTimeout:        30 * time.Second,
			DelegationTimeout:  2 * time.Minute,
		},
		Store: StoreConfig{
			Driver:   "memory",
			Database: "journalmesh",
		},
		History: HistoryConfig{
			Driver:      "memory",
			Addr:        "localhost:6379",
			MaxMessages: 20,
		},
		Server: ServerConfig{Addr: ":8080"},
		Log: LogConfig{
			Level:   "info",
			Format:  "json",
			Backend: "slog",
		},
	}
}

// Load reads .env (if present), the YAML file at path (if path is not
// empty) and environment overrides, then validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := New()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
		return nil
	}

	str("LLM_PROVIDER", &c.LLM.Provider)
	str("LLM_MODEL", &c.LLM.Model)
	str("LLM_API_KEY_ENV", &c.LLM.APIKeyEnv)
	str("LLM_BASE_URL", &c.LLM.BaseURL)
	str("STORE_DRIVER", &c.Store.Driver)
	str("MONGO_URI", &c.Store.URI)
	str("MONGO_DATABASE", &c.Store.Database)
	str("HISTORY_DRIVER", &c.History.Driver)
	str("REDIS_ADDR", &c.History.Addr)
	str("REDIS_PASSWORD", &c.History.Password)
	str("SERVER_ADDR", &c.Server.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(
		num("MAX_ROUNDS", &c.Supervisor.MaxRounds),
		num("MAX_AGENT_TOOL_ROUNDS", &c.Supervisor.MaxAgentToolRounds),
		num("REDIS_DB", &c.History.DB),
		dur("GATEWAY_TIMEOUT", &c.Supervisor.GatewayTimeout),
		dur("TOOL_TIMEOUT", &c.Supervisor.ToolTimeout),
		dur("DELEGATION_TIMEOUT", &c.Supervisor.DelegationTimeout),
	)
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case "openai", "anthropic", "gemini", "scripted":
	default:
		errs = append(errs, fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature: %v out of range [0,2]", c.LLM.Temperature))
	}

	if c.Supervisor.MaxRounds < 1 {
		errs = append(errs, errors.New("supervisor.max_rounds: must be at least 1"))
	}
	if c.Supervisor.MaxAgentToolRounds < 1 {
		errs = append(errs, errors.New("supervisor.max_agent_tool_rounds: must be at least 1"))
	}
	if c.Supervisor.GatewayTimeout <= 0 || c.Supervisor.ToolTimeout <= 0 || c.Supervisor.DelegationTimeout <= 0 {
		errs = append(errs, errors.New("supervisor: timeouts must be positive"))
	}
	if c.Supervisor.MaxConcurrentQueries < 0 {
		errs = append(errs, errors.New("supervisor.max_concurrent_queries: must not be negative"))
	}

	switch c.Store.Driver {
	case "memory":
	case "mongo":
		if c.Store.URI == "" {
			errs = append(errs, errors.New("store.uri: required for mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}

	switch c.History.Driver {
	case "memory", "redis":
	case "mongo":
		if c.Store.Driver != "mongo" {
			errs = append(errs, errors.New("history.driver: mongo requires store.driver mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("history.driver: unknown driver %q", c.History.Driver))
	}
	if c.History.MaxMessages < 0 {
		errs = append(errs, errors.New("history.max_messages: must not be negative"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Log.Backend != "slog" && c.Log.Backend != "logrus" {
		errs = append(errs, fmt.Errorf("log.backend: unknown backend %q", c.Log.Backend))
	}

	if _, err := c.PromptMap(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// PromptMap converts the prompt overrides into a prompt.Map.
func (c *Config) PromptMap() (prompt.Map, error) {
	if len(c.Prompts) == 0 {
		return nil, nil
	}

	m := make(prompt.Map, len(c.Prompts))
	for name, text := range c.Prompts {
		id, err := core.ParseIdentity(strings.ToLower(strings.TrimSpace(name)))
		if err != nil {
			return nil, fmt.Errorf("prompts.%s: %w", name, err)
		}
		m[id] = text
	}

	return m, nil
}

// APIKey returns the provider key from the configured environment variable,
// or from the provider's conventional variable.
func (c *Config) APIKey() string {
	env := c.LLM.APIKeyEnv
	if env == "" {
		env = DefaultAPIKeyEnv(c.LLM.Provider)
	}
	if env == "" {
		return ""
	}
	return os.Getenv(env)
}

// DefaultAPIKeyEnv returns the conventional key variable of a provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "gemini":
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}
