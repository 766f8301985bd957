// Package config loads runtime configuration from an optional config file and
// the environment. Environment variable names follow the legacy .env contract
// so existing deployments keep working unchanged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultMaxIterations  = 10
	DefaultScriptTimeout  = 60 * time.Second
	DefaultGatewayTimeout = 120 * time.Second
)

// ServerConfig holds the HTTP/WebSocket surface settings.
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// GatewayConfig selects and configures the model gateway adapter.
type GatewayConfig struct {
	Provider    string        `mapstructure:"provider"` // "openai" or "anthropic"
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Config is the root configuration for the query engine.
type Config struct {
	BaseDir          string        `mapstructure:"base_dir"`
	FilesDir         string        `mapstructure:"files_dir"`
	ScriptsDir       string        `mapstructure:"scripts_dir"`
	SessionsDir      string        `mapstructure:"sessions_dir"`
	SystemPromptFile string        `mapstructure:"system_prompt_file"`
	MaxIterations    int           `mapstructure:"max_iterations"`
	ScriptTimeout    time.Duration `mapstructure:"script_timeout"`
	PythonBin        string        `mapstructure:"python_bin"`

	Gateway GatewayConfig `mapstructure:"gateway"`
	Server  ServerConfig  `mapstructure:"server"`
}

// Load reads configuration from docquery.yaml (if present in the working
// directory) layered over environment variables and built-in defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("base_dir", "")
	v.SetDefault("files_dir", "files_to_query")
	v.SetDefault("scripts_dir", "temp_scripts")
	v.SetDefault("sessions_dir", "query_sessions")
	v.SetDefault("system_prompt_file", "system_prompt.txt")
	v.SetDefault("max_iterations", DefaultMaxIterations)
	v.SetDefault("script_timeout", DefaultScriptTimeout)
	v.SetDefault("python_bin", "python3")

	v.SetDefault("gateway.provider", "anthropic")
	v.SetDefault("gateway.model", "")
	v.SetDefault("gateway.max_tokens", 4000)
	v.SetDefault("gateway.temperature", 0.1)
	v.SetDefault("gateway.timeout", DefaultGatewayTimeout)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allow_origins", []string{"http://localhost:3000", "http://localhost:3001"})

	// Legacy environment names take precedence over file values so existing
	// .env-driven setups keep working.
	bindings := map[string]string{
		"files_dir":          "FILES_TO_QUERY_DIR",
		"scripts_dir":        "TEMP_SCRIPTS_DIR",
		"sessions_dir":       "QUERY_SESSIONS_DIR",
		"system_prompt_file": "SYSTEM_PROMPT_FILE",
		"max_iterations":     "MAX_ITERATIONS",
		"gateway.provider":   "MODEL_PROVIDER",
		"gateway.api_key":    "ANTHROPIC_API_KEY",
		"gateway.base_url":   "MODEL_BASE_URL",
		"gateway.model":      "MODEL_NAME",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && v.GetString("gateway.api_key") == "" {
		v.Set("gateway.api_key", key)
	}

	v.SetConfigName("docquery")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.BaseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.BaseDir = wd
	}
	if cfg.Gateway.Model == "" {
		cfg.Gateway.Model = defaultModelFor(cfg.Gateway.Provider)
	}
	return &cfg, nil
}

// EnsureDirs creates the writable directories the engine needs.
// The files directory is created too so a fresh checkout has a place to
// drop documents into.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.FilesPath(), c.ScriptsPath(), c.SessionsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FilesPath returns the absolute document directory.
func (c *Config) FilesPath() string { return c.resolve(c.FilesDir) }

// ScriptsPath returns the absolute generated-scripts directory.
func (c *Config) ScriptsPath() string { return c.resolve(c.ScriptsDir) }

// SessionsPath returns the absolute session trace directory.
func (c *Config) SessionsPath() string { return c.resolve(c.SessionsDir) }

// SystemPromptPath returns the absolute system prompt file path.
func (c *Config) SystemPromptPath() string { return c.resolve(c.SystemPromptFile) }

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

func defaultModelFor(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o"
	default:
		return "claude-3-5-sonnet-20241022"
	}
}
