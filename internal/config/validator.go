package config

import (
	"fmt"
	"strings"
)

// ValidationErrors aggregates every problem found in a config
type ValidationErrors []error

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// Unwrap exposes the individual errors to errors.Is and errors.As
func (e ValidationErrors) Unwrap() []error {
	return e
}

var (
	validProviders = []string{"deepseek", "openai", "anthropic", "scripted"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider checks the provider name
func (v *Validator) ValidateProvider(provider string) error {
	for _, p := range validProviders {
		if provider == p {
			return nil
		}
	}
	return fmt.Errorf("invalid llm provider: %s (must be one of: %s)", provider, strings.Join(validProviders, ", "))
}

// ValidateAPIKey checks an API key's format when one is set. A missing key
// is not an error here; the planner reports it at run time.
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return nil
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai", "deepseek":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid %s API key format (should start with sk-)", provider)
		}
	}

	return nil
}

// ValidateProviderSettings checks one provider section
func (v *Validator) ValidateProviderSettings(name string, p ProviderConfig) []error {
	var errs []error
	if err := v.ValidateAPIKey(p.APIKey, name); err != nil {
		errs = append(errs, fmt.Errorf("llm.%s: %w", name, err))
	}
	if p.Model == "" {
		errs = append(errs, fmt.Errorf("llm.%s: model name cannot be empty", name))
	}
	if err := v.ValidateTemperature(p.Temperature); err != nil {
		errs = append(errs, fmt.Errorf("llm.%s: %w", name, err))
	}
	if err := v.ValidateMaxTokens(p.MaxTokens); err != nil {
		errs = append(errs, fmt.Errorf("llm.%s: %w", name, err))
	}
	if p.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("llm.%s: timeout_seconds must be positive", name))
	}
	return errs
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	for _, valid := range validLogLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLogLevels, ", "))
}

func positive(errs []error, name string, value int) []error {
	if value <= 0 {
		return append(errs, fmt.Errorf("%s must be positive, got %d", name, value))
	}
	return errs
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) ValidationErrors {
	var errs ValidationErrors

	if err := v.ValidateProvider(cfg.LLM.Provider); err != nil {
		errs = append(errs, err)
	}
	switch cfg.LLM.Provider {
	case "openai":
		errs = append(errs, v.ValidateProviderSettings("openai", cfg.LLM.OpenAI)...)
	case "deepseek":
		errs = append(errs, v.ValidateProviderSettings("deepseek", cfg.LLM.DeepSeek.ProviderConfig)...)
		if cfg.LLM.DeepSeek.EnableComplexityRouting && cfg.LLM.DeepSeek.ReasonerModel == "" {
			errs = append(errs, fmt.Errorf("llm.deepseek: reasoner_model is required when complexity routing is enabled"))
		}
	case "anthropic":
		errs = append(errs, v.ValidateProviderSettings("anthropic", cfg.LLM.Anthropic)...)
	}
	if cfg.LLM.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("llm.requests_per_second must be >= 0"))
	}

	errs = positive(errs, "sandbox.max_memory_mb", cfg.Sandbox.MaxMemoryMB)
	errs = positive(errs, "sandbox.max_cpu_time_s", cfg.Sandbox.MaxCPUTimeSeconds)
	errs = positive(errs, "sandbox.max_file_size_mb", cfg.Sandbox.MaxFileSizeMB)
	errs = positive(errs, "sandbox.max_processes", cfg.Sandbox.MaxProcesses)

	errs = positive(errs, "memory.max_episodic_memories", cfg.Memory.MaxEpisodicMemories)
	errs = positive(errs, "memory.max_working_memory_items", cfg.Memory.MaxWorkingMemoryItems)
	if cfg.Memory.EnableVectorSearch && cfg.Memory.EmbeddingDimension <= 0 {
		errs = append(errs, fmt.Errorf("memory.embedding_dimension must be positive when vector search is enabled"))
	}

	errs = positive(errs, "safety.max_output_length", cfg.Safety.MaxOutputLength)
	errs = positive(errs, "safety.max_input_length", cfg.Safety.MaxInputLength)
	errs = positive(errs, "safety.max_args_count", cfg.Safety.MaxArgsCount)

	errs = positive(errs, "runtime.max_steps", cfg.Runtime.MaxSteps)
	errs = positive(errs, "runtime.default_timeout_seconds", cfg.Runtime.DefaultTimeoutSeconds)
	errs = positive(errs, "runtime.denial_window", cfg.Runtime.DenialWindow)
	errs = positive(errs, "runtime.denial_threshold", cfg.Runtime.DenialThreshold)

	if cfg.Consent.PromptTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("consent.prompt_timeout_seconds must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}
