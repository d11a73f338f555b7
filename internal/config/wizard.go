package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Wizard builds a config by asking a few questions on a terminal
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{reader: bufio.NewReader(in), out: out}
}

// Run asks for the provider, its API key, consent mode and log level.
// Empty answers keep the defaults.
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== stepwise configuration ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	validator := NewValidator()

	for {
		fmt.Fprintf(w.out, "LLM provider (%s) [%s]: ", strings.Join(validProviders, "/"), cfg.LLM.Provider)
		provider, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if provider == "" {
			break
		}
		if err := validator.ValidateProvider(provider); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.LLM.Provider = provider
		break
	}

	if cfg.LLM.Provider != "scripted" {
		for {
			fmt.Fprintf(w.out, "%s API key (press Enter to use %s): ", cfg.LLM.Provider, apiKeyEnv[cfg.LLM.Provider])
			key, err := w.readLine()
			if err != nil {
				return nil, err
			}
			if key == "" {
				break
			}
			if err := validator.ValidateAPIKey(key, cfg.LLM.Provider); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			setAPIKey(cfg, key)
			break
		}
	}

	fmt.Fprint(w.out, "Ask before risky operations? (y/n) [n]: ")
	answer, err := w.readLine()
	if err != nil {
		return nil, err
	}
	cfg.Consent.EnableInteractiveConsent = strings.EqualFold(answer, "y")

	fmt.Fprintf(w.out, "Log level (%s) [%s]: ", strings.Join(validLogLevels, "/"), cfg.Logging.Level)
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, using default (%s)\n", err, cfg.Logging.Level)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

func setAPIKey(cfg *Config, key string) {
	switch cfg.LLM.Provider {
	case "openai":
		cfg.LLM.OpenAI.APIKey = key
	case "anthropic":
		cfg.LLM.Anthropic.APIKey = key
	default:
		cfg.LLM.DeepSeek.APIKey = key
	}
}

// readLine treats EOF after a partial line as a final answer
func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
