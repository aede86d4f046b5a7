package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ghonijee/money-tracker-ai-agent/framework"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "moneytracker.yaml"

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider    string   `yaml:"provider,omitempty"` // openai, anthropic or ollama
	BaseURL     string   `yaml:"base_url,omitempty"`
	APIKey      string   `yaml:"api_key,omitempty"`
	Models      []string `yaml:"models,omitempty"`
	VisionModel string   `yaml:"vision_model,omitempty"`
	Temperature float64  `yaml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens,omitempty"`
	// Timeout bounds each call, in seconds.
	Timeout    int `yaml:"timeout,omitempty"`
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// AgentConfig tunes the agent loop.
type AgentConfig struct {
	PromptVersion   string `yaml:"prompt_version,omitempty"`
	MaxIterations   int    `yaml:"max_iterations,omitempty"`
	MaxRetries      int    `yaml:"max_retries,omitempty"`
	MemoryCapacity  int    `yaml:"memory_capacity,omitempty"`
	SummaryLimit    int    `yaml:"summary_limit,omitempty"`
	ToolTimeout     int    `yaml:"tool_timeout,omitempty"`
	Timezone        string `yaml:"timezone,omitempty"`
	FallbackApology string `yaml:"fallback_apology,omitempty"`
	ExhaustedReply  string `yaml:"exhausted_reply,omitempty"`
	MediaDir        string `yaml:"media_dir,omitempty"`
}

// WhatsAppConfig holds the Cloud API credentials.
type WhatsAppConfig struct {
	Token         string `yaml:"token,omitempty"`
	PhoneNumberID string `yaml:"phone_number_id,omitempty"`
	VerifyToken   string `yaml:"verify_token,omitempty"`
	BaseURL       string `yaml:"base_url,omitempty"`
}

// Config is the full process configuration.
type Config struct {
	SecretKey    string         `yaml:"secret_key,omitempty"`
	DatabasePath string         `yaml:"database_path,omitempty"`
	HTTPAddr     string         `yaml:"http_addr,omitempty"`
	LogLevel     string         `yaml:"log_level,omitempty"`
	LogFormat    string         `yaml:"log_format,omitempty"`
	TelemetryLog string         `yaml:"telemetry_log,omitempty"`
	LLM          LLMConfig      `yaml:"llm,omitempty"`
	Agent        AgentConfig    `yaml:"agent,omitempty"`
	WhatsApp     WhatsAppConfig `yaml:"whatsapp,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DatabasePath: "data/moneytracker.db",
		HTTPAddr:     ":8080",
		LogLevel:     "info",
		LogFormat:    "text",
		LLM: LLMConfig{
			Provider:    "openai",
			BaseURL:     "https://openrouter.ai/api/v1",
			Models:      []string{"deepseek/deepseek-chat-v3-0324:free"},
			VisionModel: "",
			MaxTokens:   1024,
			Timeout:     60,
			MaxRetries:  3,
		},
		Agent: AgentConfig{
			PromptVersion:   "v4",
			MaxIterations:   framework.DefaultIterationBudget,
			MaxRetries:      framework.DefaultRetryBudget,
			MemoryCapacity:  framework.DefaultScratchCapacity,
			SummaryLimit:    100,
			ToolTimeout:     30,
			Timezone:        "Asia/Jakarta",
			FallbackApology: "Sorry, something went wrong while handling your request. Please try again in a moment.",
			ExhaustedReply:  "Sorry, I could not finish that request. Could you rephrase it?",
			MediaDir:        "data/media",
		},
		WhatsApp: WhatsAppConfig{
			VerifyToken: "secret_verify_token",
			BaseURL:     "https://graph.facebook.com/v21.0",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (when
// it exists), then .env, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path) //#nosec G304 -- intentional config read
	switch {
	case err == nil:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
		}
		if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg.applyEnv(os.LookupEnv)
	return &cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	str("SECRET_KEY", &c.SecretKey)
	str("DATABASE_PATH", &c.DatabasePath)
	str("HTTP_ADDR", &c.HTTPAddr)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("TELEMETRY_LOG", &c.TelemetryLog)
	str("LLM_PROVIDER", &c.LLM.Provider)
	str("LLM_BASE_URL", &c.LLM.BaseURL)
	str("OPEN_ROUTER_KEY", &c.LLM.APIKey)
	str("LLM_API_KEY", &c.LLM.APIKey)
	str("LLM_VISION_MODEL", &c.LLM.VisionModel)
	num("LLM_TIMEOUT", &c.LLM.Timeout)
	if v, ok := lookup("LLM_MODELS"); ok && strings.TrimSpace(v) != "" {
		c.LLM.Models = splitList(v)
	}
	str("PROMPT_VERSION", &c.Agent.PromptVersion)
	num("AGENT_MAX_ITERATIONS", &c.Agent.MaxIterations)
	num("AGENT_MAX_RETRIES", &c.Agent.MaxRetries)
	str("TIMEZONE", &c.Agent.Timezone)
	str("MEDIA_DIR", &c.Agent.MediaDir)
	str("WHATAPP_APP_TOKEN", &c.WhatsApp.Token)
	str("WHATAPP_PHONE_NUMBER_ID", &c.WhatsApp.PhoneNumberID)
	str("WHATAPP_WEBHOOK_API_KEY", &c.WhatsApp.VerifyToken)
}

// Validate checks settings every entrypoint needs. A missing secret key is
// reported as a configuration error.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("%w: SECRET_KEY is not set", framework.ErrConfiguration)
	}
	if len(c.LLM.Models) == 0 {
		return fmt.Errorf("%w: no LLM models configured", framework.ErrConfiguration)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: %v", framework.ErrConfiguration, err)
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Agent.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Agent.Timezone)
}

// LLMTimeout returns the per-call model timeout.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.Timeout) * time.Second
}

// ToolTimeout returns the per-call tool timeout.
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Agent.ToolTimeout) * time.Second
}

// ReadMap deserializes a YAML file into a generic map for dotted lookups.
func ReadMap(path string) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	bytes, err := os.ReadFile(path) //#nosec G304 -- intentional config read
	if err != nil {
		if os.IsNotExist(err) {
			return data, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(bytes, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteMap persists the map back to YAML, creating directories.
func WriteMap(path string, data map[string]interface{}) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	bytes, err := yaml.Marshal(data)
	if err != nil {
		return err
	}
	return os.WriteFile(path, bytes, 0o600)
}

// GetValue traverses a nested map using dotted notation.
func GetValue(data map[string]interface{}, key string) (interface{}, bool) {
	var current interface{} = data
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		value, ok := m[part]
		if !ok {
			return nil, false
		}
		current = value
	}
	return current, true
}

// SetValue assigns a dotted key, creating intermediate maps. Numeric and
// boolean literals are stored typed.
func SetValue(data map[string]interface{}, key, raw string) {
	parts := strings.Split(key, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = parseScalar(raw)
}

func parseScalar(raw string) interface{} {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if strings.Contains(raw, ",") {
		return splitList(raw)
	}
	return raw
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
