package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. STEPWISE_LLM_PROVIDER
const EnvPrefix = "STEPWISE"

// envKeys are the settings that may be overridden from the environment
var envKeys = []string{
	"llm.provider",
	"llm.requests_per_second",
	"llm.deepseek.enable_complexity_routing",
	"runtime.max_steps",
	"consent.enable_interactive_consent",
	"memory.persist_dir",
	"logging.level",
	"logging.file",
	"work_dir",
}

// apiKeyEnv maps provider sections to their conventional key variables
var apiKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".stepwise", "stepwise.json")
}

// Load reads the config file over the defaults. A missing file yields the
// defaults plus environment overrides.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyAPIKeyEnv(cfg)

	if cfg.WorkDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.WorkDir = cwd
		}
	}

	return cfg, nil
}

// applyAPIKeyEnv fills empty API keys from the conventional variables
func applyAPIKeyEnv(cfg *Config) {
	targets := map[string]*string{
		"openai":    &cfg.LLM.OpenAI.APIKey,
		"deepseek":  &cfg.LLM.DeepSeek.APIKey,
		"anthropic": &cfg.LLM.Anthropic.APIKey,
	}
	for provider, key := range targets {
		if *key != "" {
			continue
		}
		if value := os.Getenv(apiKeyEnv[provider]); value != "" {
			*key = value
		}
	}
}

// Save writes the configuration as JSON
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("llm", cfg.LLM)
	v.Set("sandbox", cfg.Sandbox)
	v.Set("memory", cfg.Memory)
	v.Set("safety", cfg.Safety)
	v.Set("runtime", cfg.Runtime)
	v.Set("consent", cfg.Consent)
	v.Set("logging", cfg.Logging)
	v.Set("eval", cfg.Eval)
	v.Set("work_dir", cfg.WorkDir)

	if err := v.WriteConfig(); err != nil {
		if err := v.SafeWriteConfig(); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
