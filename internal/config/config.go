package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendGrok      = "grok"
	BackendOpenAI    = "openai"
)

// DefaultSystemPrompt seeds every conversation that has no stored history
const DefaultSystemPrompt = "You are a helpful assistant. Answer concisely."

// Config holds application configuration.
//
// Values come from Default, then the optional YAML file, then any flag the
// user set explicitly.
type Config struct {
	Backend     string        `yaml:"backend"`
	Debug       bool          `yaml:"debug"`
	DBPath      string        `yaml:"db_path"`
	LogDir      string        `yaml:"log_dir"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	HTTPTimeout time.Duration `yaml:"http_timeout"` // 0 leaves inference calls unbounded

	// Web front-end
	Serve bool   `yaml:"serve"`
	Addr  string `yaml:"addr"`

	OpenAI    Endpoint `yaml:"openai"`
	Anthropic Endpoint `yaml:"anthropic"`
	Grok      Endpoint `yaml:"grok"`
	Ollama    Endpoint `yaml:"ollama"` // Model in format "model:version" (e.g., "llama3:latest")
}

// Endpoint locates one model backend
type Endpoint struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Backend:     BackendOpenAI,
		DBPath:      "chat_messages.db",
		LogDir:      "logs",
		Temperature: 0.7,
		MaxTokens:   1024,
		Addr:        "127.0.0.1:8501",
		OpenAI:      Endpoint{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o"},
		Anthropic:   Endpoint{BaseURL: "https://api.anthropic.com", Model: "claude-sonnet-4-20250514"},
		Grok:        Endpoint{BaseURL: "https://api.grok.x.ai/v1", Model: "grok-1"},
		Ollama:      Endpoint{BaseURL: "http://localhost:11434", Model: "llama3:latest"},
	}
}

// LoadFile overlays the YAML file at path onto cfg.
// A missing file leaves cfg untouched and is not an error.
func LoadFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse yaml config %s: %w", path, err)
	}
	return nil
}

// Validate rejects configurations the application cannot start with
func (c Config) Validate() error {
	switch c.Backend {
	case BackendOllama, BackendAnthropic, BackendGrok, BackendOpenAI:
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("invalid max_tokens %d", c.MaxTokens)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("invalid http_timeout %s", c.HTTPTimeout)
	}
	return nil
}

// Endpoint returns the settings of the selected backend
func (c Config) Endpoint() Endpoint {
	switch c.Backend {
	case BackendAnthropic:
		return c.Anthropic
	case BackendGrok:
		return c.Grok
	case BackendOllama:
		return c.Ollama
	default:
		return c.OpenAI
	}
}

// APIKeyEnv names the environment variable that may hold the backend's key
func (c Config) APIKeyEnv() string {
	switch c.Backend {
	case BackendAnthropic:
		return "ANTHROPIC_API_KEY"
	case BackendGrok:
		return "GROK_API_KEY"
	case BackendOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}
