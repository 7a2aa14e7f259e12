package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for tillsyn-assist
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Logging    LoggingConfig    `toml:"logging"`
	Database   DatabaseConfig   `toml:"database"`
	Voice      VoiceConfig      `toml:"voice"`
	OpenAI     OpenAIConfig     `toml:"openai"`
	Extraction ExtractionConfig `toml:"extraction"`
	Editor     EditorConfig     `toml:"editor"`
	NATS       NATSConfig       `toml:"nats"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string        `toml:"host"`
	Port               int           `toml:"port"`
	CORSAllowedOrigins []string      `toml:"cors_allowed_origins"`
	ReadTimeout        time.Duration `toml:"read_timeout"`
	WriteTimeout       time.Duration `toml:"write_timeout"`
	EnableH2C          bool          `toml:"enable_h2c"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DatabaseConfig holds the SQLite store location
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// Agent is a selectable voice persona hosted by the provider
type Agent struct {
	ID   string `toml:"id" json:"id"`
	Name string `toml:"name" json:"name"`
}

// VoiceConfig holds conversational-voice provider configuration
type VoiceConfig struct {
	APIKey          string  `toml:"api_key"`
	BaseURL         string  `toml:"base_url"`
	WebSocketURL    string  `toml:"websocket_url"`
	DefaultAgent    string  `toml:"default_agent"`
	Agents          []Agent `toml:"agents"`
	InputSampleRate int     `toml:"input_sample_rate"`
	InputChannels   int     `toml:"input_channels"`
	ChunkMs         int     `toml:"chunk_ms"`
}

// OpenAIConfig holds the text-completion model configuration
type OpenAIConfig struct {
	APIKey              string        `toml:"api_key"`
	BaseURL             string        `toml:"base_url"`
	TranscriptModel     string        `toml:"transcript_model"`
	DefectModel         string        `toml:"defect_model"`
	MaxCompletionTokens int           `toml:"max_completion_tokens"`
	Timeout             time.Duration `toml:"timeout"`
}

// ExtractionConfig selects the extraction strategy chain and persistence policy
type ExtractionConfig struct {
	Mode               string        `toml:"mode"` // llm, regex, provider
	EmptyRecordPolicy  string        `toml:"empty_record_policy"`
	SalesOpportunities bool          `toml:"include_sales_opportunities"`
	PollMaxAttempts    int           `toml:"poll_max_attempts"`
	PollInterval       time.Duration `toml:"poll_interval"`
}

// EditorConfig holds auto-save configuration for checklist and defect editors
type EditorConfig struct {
	Debounce time.Duration `toml:"debounce"`
}

// NATSConfig holds notification publishing configuration
type NATSConfig struct {
	Enabled       bool          `toml:"enabled"`
	URL           string        `toml:"url"`
	Subject       string        `toml:"subject"`
	MaxReconnect  int           `toml:"max_reconnect"`
	ReconnectWait time.Duration `toml:"reconnect_wait"`
}

// DefaultAgents are the inspection assistant personas configured at the provider
var DefaultAgents = []Agent{
	{ID: "agent_2401k467207hefr83sq8vsfkj5ys", Name: "Ola"},
	{ID: "agent_5601k49hjdh5fhmbdqhs6j50a10w", Name: "Elin"},
	{ID: "agent_5801k49gsgmbfwz97js52x2xd2vp", Name: "Sanna"},
	{ID: "agent_0501k49gxw80fantcxhw3nddggnk", Name: "Adam"},
	{ID: "agent_9401k49h8jm3fp195vq5m4ms7kks", Name: "Martin"},
}

// Default returns a Config populated with built-in defaults
func Default() *Config {
	agents := make([]Agent, len(DefaultAgents))
	copy(agents, DefaultAgents)

	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			EnableH2C:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Database: DatabaseConfig{
			Path: "./data/tillsyn.db",
		},
		Voice: VoiceConfig{
			BaseURL:         "https://api.elevenlabs.io",
			WebSocketURL:    "wss://api.elevenlabs.io/v1/convai/conversation",
			DefaultAgent:    DefaultAgents[0].ID,
			Agents:          agents,
			InputSampleRate: 16000,
			InputChannels:   1,
			ChunkMs:         250,
		},
		OpenAI: OpenAIConfig{
			TranscriptModel:     "gpt-4o-mini",
			DefectModel:         "gpt-4.1-2025-04-14",
			MaxCompletionTokens: 2000,
			Timeout:             60 * time.Second,
		},
		Extraction: ExtractionConfig{
			Mode:              "llm",
			EmptyRecordPolicy: "placeholder",
			PollMaxAttempts:   5,
			PollInterval:      3 * time.Second,
		},
		Editor: EditorConfig{
			Debounce: time.Second,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Subject:       "tillsyn.notifications",
			MaxReconnect:  10,
			ReconnectWait: 2 * time.Second,
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies environment overrides.
// A missing file is not an error; the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides secrets and common knobs from the environment
func (c *Config) applyEnv() {
	c.OpenAI.APIKey = getEnvString("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = getEnvString("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.Voice.APIKey = getEnvString("ELEVENLABS_API_KEY", c.Voice.APIKey)
	c.Database.Path = getEnvString("TILLSYN_DB_PATH", c.Database.Path)
	c.Server.Port = getEnvInt("TILLSYN_PORT", c.Server.Port)
	c.Logging.Level = getEnvString("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnvString("LOG_FORMAT", c.Logging.Format)
	c.Extraction.Mode = getEnvString("TILLSYN_EXTRACTION_MODE", c.Extraction.Mode)
	c.Editor.Debounce = getEnvDuration("TILLSYN_EDITOR_DEBOUNCE", c.Editor.Debounce)
	c.NATS.Enabled = getEnvBool("TILLSYN_NATS_ENABLED", c.NATS.Enabled)
	c.NATS.URL = getEnvString("NATS_URL", c.NATS.URL)
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Extraction.Mode {
	case "llm", "regex", "provider":
	default:
		return fmt.Errorf("unsupported extraction mode: %q", c.Extraction.Mode)
	}

	switch c.Extraction.EmptyRecordPolicy {
	case "skip", "placeholder", "always":
	default:
		return fmt.Errorf("unsupported empty record policy: %q", c.Extraction.EmptyRecordPolicy)
	}

	if c.Extraction.PollMaxAttempts <= 0 {
		return fmt.Errorf("poll max attempts must be positive: %d", c.Extraction.PollMaxAttempts)
	}

	if c.Extraction.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative: %s", c.Extraction.PollInterval)
	}

	if c.Editor.Debounce <= 0 {
		return fmt.Errorf("editor debounce must be positive: %s", c.Editor.Debounce)
	}

	if c.Voice.InputSampleRate <= 0 || c.Voice.InputChannels <= 0 || c.Voice.ChunkMs <= 0 {
		return fmt.Errorf("voice input format must be positive (rate=%d channels=%d chunk_ms=%d)",
			c.Voice.InputSampleRate, c.Voice.InputChannels, c.Voice.ChunkMs)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path must be provided")
	}

	return nil
}

// AgentByID returns the configured persona with the given provider id
func (c *Config) AgentByID(id string) (Agent, bool) {
	for _, agent := range c.Voice.Agents {
		if agent.ID == id {
			return agent, true
		}
	}
	return Agent{}, false
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
