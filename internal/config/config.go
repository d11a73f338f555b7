package config

import (
	"encoding/json"
)

// Config represents the main stepwise configuration
type Config struct {
	LLM     LLMConfig     `json:"llm" mapstructure:"llm"`
	Sandbox SandboxConfig `json:"sandbox" mapstructure:"sandbox"`
	Memory  MemoryConfig  `json:"memory" mapstructure:"memory"`
	Safety  SafetyConfig  `json:"safety" mapstructure:"safety"`
	Runtime RuntimeConfig `json:"runtime" mapstructure:"runtime"`
	Consent ConsentConfig `json:"consent" mapstructure:"consent"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
	Eval    EvalConfig    `json:"eval" mapstructure:"eval"`

	// WorkDir is where file tools and shell commands run. Empty means the
	// current directory.
	WorkDir string `json:"work_dir" mapstructure:"work_dir"`
}

// LLMConfig selects and configures the planning model
type LLMConfig struct {
	Provider          string         `json:"provider" mapstructure:"provider"` // deepseek, openai, anthropic, scripted
	OpenAI            ProviderConfig `json:"openai" mapstructure:"openai"`
	DeepSeek          DeepSeekConfig `json:"deepseek" mapstructure:"deepseek"`
	Anthropic         ProviderConfig `json:"anthropic" mapstructure:"anthropic"`
	RequestsPerSecond float64        `json:"requests_per_second" mapstructure:"requests_per_second"`
}

// ProviderConfig holds one provider's connection settings
type ProviderConfig struct {
	APIKey         string  `json:"api_key" mapstructure:"api_key"`
	Model          string  `json:"model" mapstructure:"model"`
	BaseURL        string  `json:"base_url" mapstructure:"base_url"`
	MaxTokens      int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	TimeoutSeconds int     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// DeepSeekConfig adds complexity routing to the provider settings
type DeepSeekConfig struct {
	ProviderConfig          `mapstructure:",squash"`
	ReasonerModel           string `json:"reasoner_model" mapstructure:"reasoner_model"`
	EnableComplexityRouting bool   `json:"enable_complexity_routing" mapstructure:"enable_complexity_routing"`
}

// SandboxConfig bounds shell execution
type SandboxConfig struct {
	MaxMemoryMB          int      `json:"max_memory_mb" mapstructure:"max_memory_mb"`
	MaxCPUTimeSeconds    int      `json:"max_cpu_time_s" mapstructure:"max_cpu_time_s"`
	MaxFileSizeMB        int      `json:"max_file_size_mb" mapstructure:"max_file_size_mb"`
	MaxProcesses         int      `json:"max_processes" mapstructure:"max_processes"`
	EnforceProcessLimits bool     `json:"enforce_process_limits" mapstructure:"enforce_process_limits"`
	BlockedCommands      []string `json:"blocked_commands" mapstructure:"blocked_commands"`
	TempDir              string   `json:"temp_dir" mapstructure:"temp_dir"`
	EnableNetwork        bool     `json:"enable_network" mapstructure:"enable_network"`
}

// MemoryConfig configures the persistent memory store
type MemoryConfig struct {
	PersistDir            string `json:"persist_dir" mapstructure:"persist_dir"`
	MaxEpisodicMemories   int    `json:"max_episodic_memories" mapstructure:"max_episodic_memories"`
	MaxWorkingMemoryItems int    `json:"max_working_memory_items" mapstructure:"max_working_memory_items"`
	EmbeddingModel        string `json:"embedding_model" mapstructure:"embedding_model"`
	EmbeddingDimension    int    `json:"embedding_dimension" mapstructure:"embedding_dimension"`
	EnableVectorSearch    bool   `json:"enable_vector_search" mapstructure:"enable_vector_search"`
}

// SafetyConfig mirrors safety.Policy
type SafetyConfig struct {
	MaxOutputLength         int      `json:"max_output_length" mapstructure:"max_output_length"`
	MaxInputLength          int      `json:"max_input_length" mapstructure:"max_input_length"`
	MaxArgsCount            int      `json:"max_args_count" mapstructure:"max_args_count"`
	MaxFileSizeMB           int      `json:"max_file_size_mb" mapstructure:"max_file_size_mb"`
	BlockedFilePaths        []string `json:"blocked_file_paths" mapstructure:"blocked_file_paths"`
	EnableContentFiltering  bool     `json:"enable_content_filtering" mapstructure:"enable_content_filtering"`
	EnableCommandValidation bool     `json:"enable_command_validation" mapstructure:"enable_command_validation"`
	EnableFilePathCheck     bool     `json:"enable_file_path_check" mapstructure:"enable_file_path_check"`
}

// RuntimeConfig bounds the agent loop
type RuntimeConfig struct {
	MaxSteps                int  `json:"max_steps" mapstructure:"max_steps"`
	DefaultTimeoutSeconds   int  `json:"default_timeout_seconds" mapstructure:"default_timeout_seconds"`
	DenialWindow            int  `json:"denial_window" mapstructure:"denial_window"`
	DenialThreshold         int  `json:"denial_threshold" mapstructure:"denial_threshold"`
	EnableMemoryPersistence bool `json:"enable_memory_persistence" mapstructure:"enable_memory_persistence"`
	EnableGuardrails        bool `json:"enable_guardrails" mapstructure:"enable_guardrails"`
}

// ConsentConfig configures the consent engine
type ConsentConfig struct {
	EnableInteractiveConsent  bool     `json:"enable_interactive_consent" mapstructure:"enable_interactive_consent"`
	AutoApproveSafeOperations bool     `json:"auto_approve_safe_operations" mapstructure:"auto_approve_safe_operations"`
	AutoApproveReadOperations bool     `json:"auto_approve_read_operations" mapstructure:"auto_approve_read_operations"`
	RequireConsentForWrite    bool     `json:"require_consent_for_write" mapstructure:"require_consent_for_write"`
	RequireConsentForDelete   bool     `json:"require_consent_for_delete" mapstructure:"require_consent_for_delete"`
	RequireConsentForExecute  bool     `json:"require_consent_for_execute" mapstructure:"require_consent_for_execute"`
	SafeDirectories           []string `json:"safe_directories" mapstructure:"safe_directories"`
	PromptTimeoutSeconds      int      `json:"prompt_timeout_seconds" mapstructure:"prompt_timeout_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	Pretty     bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge     int    `json:"max_age" mapstructure:"max_age"`   // days
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
	Redaction  bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile  string `json:"audit_file" mapstructure:"audit_file"`
}

// EvalConfig configures the evaluation harness
type EvalConfig struct {
	OutputDir string `json:"output_dir" mapstructure:"output_dir"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "deepseek",
			OpenAI: ProviderConfig{
				Model:          "gpt-4o-mini",
				BaseURL:        "https://api.openai.com/v1",
				MaxTokens:      4000,
				Temperature:    0.1,
				TimeoutSeconds: 30,
			},
			DeepSeek: DeepSeekConfig{
				ProviderConfig: ProviderConfig{
					Model:          "deepseek-chat",
					BaseURL:        "https://api.deepseek.com/v1",
					MaxTokens:      4000,
					Temperature:    0.1,
					TimeoutSeconds: 30,
				},
				ReasonerModel:           "deepseek-reasoner",
				EnableComplexityRouting: true,
			},
			Anthropic: ProviderConfig{
				Model:          "claude-sonnet-4-5",
				MaxTokens:      4000,
				Temperature:    0.1,
				TimeoutSeconds: 30,
			},
			RequestsPerSecond: 2,
		},
		Sandbox: SandboxConfig{
			MaxMemoryMB:       512,
			MaxCPUTimeSeconds: 30,
			MaxFileSizeMB:     100,
			MaxProcesses:      5,
			BlockedCommands: []string{
				"rm -rf", "sudo", "su", "chmod 777", "mkfs", "dd if=",
				"shutdown", "reboot", "halt", "poweroff", "init",
			},
		},
		Memory: MemoryConfig{
			PersistDir:            "./agent_memory",
			MaxEpisodicMemories:   1000,
			MaxWorkingMemoryItems: 20,
			EmbeddingModel:        "text-embedding-3-small",
			EmbeddingDimension:    1536,
		},
		Safety: SafetyConfig{
			MaxOutputLength:         10000,
			MaxInputLength:          50000,
			MaxArgsCount:            20,
			MaxFileSizeMB:           10,
			EnableContentFiltering:  true,
			EnableCommandValidation: true,
			EnableFilePathCheck:     true,
		},
		Runtime: RuntimeConfig{
			MaxSteps:                10,
			DefaultTimeoutSeconds:   60,
			DenialWindow:            5,
			DenialThreshold:         2,
			EnableMemoryPersistence: true,
			EnableGuardrails:        true,
		},
		Consent: ConsentConfig{
			EnableInteractiveConsent:  false,
			AutoApproveSafeOperations: true,
			AutoApproveReadOperations: true,
			RequireConsentForWrite:    true,
			RequireConsentForDelete:   true,
			RequireConsentForExecute:  true,
			SafeDirectories:           []string{"./workspace", "./output", "./temp", "/tmp"},
			PromptTimeoutSeconds:      60,
		},
		Logging: LoggingConfig{
			Level:      "warn",
			Pretty:     true,
			MaxSize:    50,
			MaxAge:     7,
			MaxBackups: 5,
			Redaction:  true,
		},
		Eval: EvalConfig{
			OutputDir: "./eval_results",
		},
	}
}

// ActiveProvider returns the settings of the configured provider
func (c *Config) ActiveProvider() ProviderConfig {
	switch c.LLM.Provider {
	case "openai":
		return c.LLM.OpenAI
	case "anthropic":
		return c.LLM.Anthropic
	default:
		return c.LLM.DeepSeek.ProviderConfig
	}
}

// String returns a JSON representation of the config with API keys masked
func (c *Config) String() string {
	redacted := *c
	redacted.LLM.OpenAI.APIKey = maskKey(c.LLM.OpenAI.APIKey)
	redacted.LLM.DeepSeek.APIKey = maskKey(c.LLM.DeepSeek.APIKey)
	redacted.LLM.Anthropic.APIKey = maskKey(c.LLM.Anthropic.APIKey)
	data, _ := json.MarshalIndent(redacted, "", "  ")
	return string(data)
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// Validate checks the configuration and returns every problem found
func (c *Config) Validate() error {
	errs := NewValidator().ValidateConfig(c)
	if len(errs) == 0 {
		return nil
	}
	return errs
}
