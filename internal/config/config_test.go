package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "ELEVENLABS_API_KEY", "TILLSYN_DB_PATH", "TILLSYN_PORT",
	"LOG_LEVEL", "LOG_FORMAT", "TILLSYN_EXTRACTION_MODE", "TILLSYN_EDITOR_DEBOUNCE",
	"TILLSYN_NATS_ENABLED", "NATS_URL",
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tillsyn.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnvVars(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Extraction.Mode != "llm" {
		t.Errorf("Extraction.Mode = %q, want %q", cfg.Extraction.Mode, "llm")
	}
	if cfg.Extraction.PollMaxAttempts != 5 {
		t.Errorf("Extraction.PollMaxAttempts = %d, want 5", cfg.Extraction.PollMaxAttempts)
	}
	if cfg.Extraction.PollInterval != 3*time.Second {
		t.Errorf("Extraction.PollInterval = %s, want 3s", cfg.Extraction.PollInterval)
	}
	if cfg.Editor.Debounce != time.Second {
		t.Errorf("Editor.Debounce = %s, want 1s", cfg.Editor.Debounce)
	}
	if cfg.OpenAI.TranscriptModel != "gpt-4o-mini" {
		t.Errorf("OpenAI.TranscriptModel = %q, want gpt-4o-mini", cfg.OpenAI.TranscriptModel)
	}
	if len(cfg.Voice.Agents) != 5 {
		t.Errorf("len(Voice.Agents) = %d, want 5", len(cfg.Voice.Agents))
	}
	if agent, ok := cfg.AgentByID(cfg.Voice.DefaultAgent); !ok || agent.Name != "Ola" {
		t.Errorf("default agent = %+v (found=%v), want Ola", agent, ok)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	clearEnvVars(t)

	path := writeConfig(t, `
[server]
port = 9090
cors_allowed_origins = ["http://localhost:5173"]

[extraction]
mode = "regex"
empty_record_policy = "skip"
poll_interval = "500ms"

[editor]
debounce = "250ms"

[[voice.agents]]
id = "agent_test"
name = "Testa"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Server.CORSAllowedOrigins) != 1 {
		t.Errorf("CORSAllowedOrigins = %v, want one origin", cfg.Server.CORSAllowedOrigins)
	}
	if cfg.Extraction.Mode != "regex" {
		t.Errorf("Extraction.Mode = %q, want regex", cfg.Extraction.Mode)
	}
	if cfg.Extraction.EmptyRecordPolicy != "skip" {
		t.Errorf("EmptyRecordPolicy = %q, want skip", cfg.Extraction.EmptyRecordPolicy)
	}
	if cfg.Extraction.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %s, want 500ms", cfg.Extraction.PollInterval)
	}
	if cfg.Editor.Debounce != 250*time.Millisecond {
		t.Errorf("Debounce = %s, want 250ms", cfg.Editor.Debounce)
	}
	if len(cfg.Voice.Agents) != 1 || cfg.Voice.Agents[0].Name != "Testa" {
		t.Errorf("Voice.Agents = %+v, want single Testa agent", cfg.Voice.Agents)
	}
	// untouched sections keep defaults
	if cfg.OpenAI.DefectModel != "gpt-4.1-2025-04-14" {
		t.Errorf("OpenAI.DefectModel = %q, want default", cfg.OpenAI.DefectModel)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ELEVENLABS_API_KEY", "xi-test")
	t.Setenv("TILLSYN_DB_PATH", "/tmp/custom.db")
	t.Setenv("TILLSYN_EXTRACTION_MODE", "provider")
	t.Setenv("TILLSYN_EDITOR_DEBOUNCE", "2s")
	t.Setenv("TILLSYN_NATS_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("OpenAI.APIKey = %q, want sk-test", cfg.OpenAI.APIKey)
	}
	if cfg.Voice.APIKey != "xi-test" {
		t.Errorf("Voice.APIKey = %q, want xi-test", cfg.Voice.APIKey)
	}
	if cfg.Database.Path != "/tmp/custom.db" {
		t.Errorf("Database.Path = %q, want /tmp/custom.db", cfg.Database.Path)
	}
	if cfg.Extraction.Mode != "provider" {
		t.Errorf("Extraction.Mode = %q, want provider", cfg.Extraction.Mode)
	}
	if cfg.Editor.Debounce != 2*time.Second {
		t.Errorf("Editor.Debounce = %s, want 2s", cfg.Editor.Debounce)
	}
	if !cfg.NATS.Enabled {
		t.Error("NATS.Enabled = false, want true")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad port", "[server]\nport = 70000\n"},
		{"bad mode", "[extraction]\nmode = \"magic\"\n"},
		{"bad policy", "[extraction]\nempty_record_policy = \"maybe\"\n"},
		{"zero attempts", "[extraction]\npoll_max_attempts = 0\n"},
		{"zero debounce", "[editor]\ndebounce = \"0s\"\n"},
		{"malformed toml", "[server\nport = 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Errorf("Load() expected error for %s", tt.name)
			}
		})
	}
}
