// Package config loads service configuration from a YAML file with
// PRAXIS_-prefixed environment overrides.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig         `koanf:"log"`
	LLM       LLMConfig         `koanf:"llm"`
	Store     StoreConfig       `koanf:"store"`
	Engine    EngineConfig      `koanf:"engine"`
	Gateway   GatewayConfig     `koanf:"gateway"`
	Ledger    LedgerConfig      `koanf:"ledger"`
	Scheduler SchedulerConfig   `koanf:"scheduler"`
	Telemetry TelemetryConfig   `koanf:"telemetry"`
	Server    ServerConfig      `koanf:"server"`
	Recall    RecallConfig      `koanf:"recall"`
	MCP       []MCPServerConfig `koanf:"mcp"`
}

// MCPServerConfig describes one MCP server whose tools are imported as
// capabilities at startup.
type MCPServerConfig struct {
	Category    string   `koanf:"category"`
	Command     string   `koanf:"command"`
	Args        []string `koanf:"args"`
	NominalCost string   `koanf:"nominal_cost"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // ollama, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

type StoreConfig struct {
	Path string `koanf:"path"` // sqlite database file
}

type EngineConfig struct {
	MaxSteps          int           `koanf:"max_steps"`
	TokenBudget       int           `koanf:"token_budget"`
	ModelTimeout      time.Duration `koanf:"model_timeout"`
	RejectBusyThreads bool          `koanf:"reject_busy_threads"`
}

type GatewayConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialDelay      time.Duration `koanf:"initial_delay"`
	InvocationTimeout time.Duration `koanf:"invocation_timeout"`
}

type LedgerConfig struct {
	DailyRefill  string `koanf:"daily_refill"`  // decimal amount, "0" disables
	MessagePrice string `koanf:"message_price"` // flat per-turn charge, "0" disables
}

type SchedulerConfig struct {
	TickInterval time.Duration `koanf:"tick_interval"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type ServerConfig struct {
	Addr           string   `koanf:"addr"`
	AllowedOrigins []string `koanf:"allowed_origins"`
	AgentManifest  string   `koanf:"agent_manifest"` // YAML seed file
}

type RecallConfig struct {
	Enabled       bool   `koanf:"enabled"`
	QdrantAddr    string `koanf:"qdrant_addr"`
	Collection    string `koanf:"collection"`
	EmbedderURL   string `koanf:"embedder_url"`
	EmbedderModel string `koanf:"embedder_model"`
	TopK          int    `koanf:"top_k"`
}

// Load reads configuration from path (optional) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5:7b-instruct")
	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("store.path", "praxis.db")
	k.Set("engine.max_steps", 8)
	k.Set("engine.token_budget", 4096)
	k.Set("engine.model_timeout", "120s")
	k.Set("engine.reject_busy_threads", false)
	k.Set("gateway.max_attempts", 3)
	k.Set("gateway.initial_delay", "200ms")
	k.Set("gateway.invocation_timeout", "30s")
	k.Set("ledger.daily_refill", "100")
	k.Set("ledger.message_price", "0")
	k.Set("scheduler.tick_interval", "1m")
	k.Set("telemetry.exporter", "stdout")
	k.Set("server.addr", ":8080")
	k.Set("recall.enabled", false)
	k.Set("recall.qdrant_addr", "localhost:6334")
	k.Set("recall.collection", "praxis_notes")
	k.Set("recall.embedder_url", "http://localhost:11434")
	k.Set("recall.embedder_model", "nomic-embed-text")
	k.Set("recall.top_k", 3)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (PRAXIS_ENGINE_MAX_STEPS -> engine.max_steps)
	if err := k.Load(env.Provider("PRAXIS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "PRAXIS_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
