package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, "deepseek-chat", cfg.LLM.DeepSeek.Model)
	assert.Equal(t, "deepseek-reasoner", cfg.LLM.DeepSeek.ReasonerModel)
	assert.Equal(t, "https://api.deepseek.com/v1", cfg.LLM.DeepSeek.BaseURL)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.OpenAI.Model)
	assert.Equal(t, 4000, cfg.LLM.OpenAI.MaxTokens)
	assert.Equal(t, 512, cfg.Sandbox.MaxMemoryMB)
	assert.Equal(t, 5, cfg.Sandbox.MaxProcesses)
	assert.False(t, cfg.Sandbox.EnforceProcessLimits)
	assert.Equal(t, "./agent_memory", cfg.Memory.PersistDir)
	assert.Equal(t, 20, cfg.Memory.MaxWorkingMemoryItems)
	assert.Equal(t, 10000, cfg.Safety.MaxOutputLength)
	assert.Equal(t, 10, cfg.Runtime.MaxSteps)
	assert.Equal(t, 5, cfg.Runtime.DenialWindow)
	assert.Equal(t, 2, cfg.Runtime.DenialThreshold)
	assert.False(t, cfg.Consent.EnableInteractiveConsent)
	assert.Contains(t, cfg.Consent.SafeDirectories, "/tmp")

	require.NoError(t, cfg.Validate())
}

func TestConfig_ActiveProvider(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "deepseek-chat", cfg.ActiveProvider().Model)

	cfg.LLM.Provider = "openai"
	assert.Equal(t, "gpt-4o-mini", cfg.ActiveProvider().Model)

	cfg.LLM.Provider = "anthropic"
	assert.Equal(t, cfg.LLM.Anthropic.Model, cfg.ActiveProvider().Model)
}

func TestConfig_StringMasksKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.DeepSeek.APIKey = "sk-1234567890abcdef"

	out := cfg.String()
	assert.NotContains(t, out, "sk-1234567890abcdef")
	assert.Contains(t, out, "sk-1****cdef")
	assert.Equal(t, "sk-1234567890abcdef", cfg.LLM.DeepSeek.APIKey)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "bad provider", mutate: func(c *Config) { c.LLM.Provider = "gemini" }, want: "invalid llm provider"},
		{name: "bad key", mutate: func(c *Config) { c.LLM.DeepSeek.APIKey = "nope" }, want: "API key format"},
		{name: "bad anthropic key", mutate: func(c *Config) {
			c.LLM.Provider = "anthropic"
			c.LLM.Anthropic.APIKey = "sk-wrong"
		}, want: "sk-ant-"},
		{name: "zero steps", mutate: func(c *Config) { c.Runtime.MaxSteps = 0 }, want: "runtime.max_steps"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "invalid log level"},
		{name: "temperature", mutate: func(c *Config) { c.LLM.DeepSeek.Temperature = 3 }, want: "temperature"},
		{name: "missing reasoner", mutate: func(c *Config) { c.LLM.DeepSeek.ReasonerModel = "" }, want: "reasoner_model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_ValidateAggregates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runtime.MaxSteps = 0
	cfg.Runtime.DenialThreshold = 0
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 3)
	assert.Equal(t, 2, strings.Count(err.Error(), "must be positive"))
}

func TestConfig_ScriptedProviderNeedsNoKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Provider = "scripted"

	assert.NoError(t, cfg.Validate())
}
