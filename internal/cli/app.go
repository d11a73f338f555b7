package cli

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/stepwise/internal/config"
	"github.com/harun/stepwise/internal/logger"
	"github.com/harun/stepwise/internal/observability"
	"github.com/harun/stepwise/internal/tracing"
	"github.com/harun/stepwise/pkg/agent"
	"github.com/harun/stepwise/pkg/consent"
	"github.com/harun/stepwise/pkg/coretools"
	"github.com/harun/stepwise/pkg/memory"
	"github.com/harun/stepwise/pkg/planner"
	"github.com/harun/stepwise/pkg/safety"
	"github.com/harun/stepwise/pkg/sandbox"
	"github.com/harun/stepwise/pkg/toolexecutor"
)

const (
	serviceName  = "stepwise"
	memoryDBName = "memory.db"
	httpTimeout  = 15 * time.Second
)

// app holds the components a run needs
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	memory  *memory.Manager
	catalog *toolexecutor.Catalog
	planner agent.Planner
	runner  *agent.Runner
}

// loadConfig loads the config file and applies the --log-level override
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newApp wires logging, memory, tools, guardrails, consent and the planner.
// Consent prompts read from in and write to out.
func newApp(cfg *config.Config, in io.Reader, out io.Writer) (*app, error) {
	lg, err := logger.New(loggerConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	base := lg.Zerolog()

	if cfg.Logging.AuditFile != "" {
		if err := observability.OpenAuditTrail(cfg.Logging.AuditFile); err != nil {
			base.Warn().Err(err).Msg("Audit log disabled")
		}
	}
	if err := tracing.InitOpenTelemetry(serviceName); err != nil {
		base.Warn().Err(err).Msg("Tracing disabled")
	}

	mem, err := newMemory(cfg, lg.Component("memory"))
	if err != nil {
		lg.Close()
		return nil, err
	}

	sbCfg := sandboxConfig(cfg)
	sb, err := sandbox.NewHostSandbox(sbCfg)
	if err != nil {
		mem.Close()
		lg.Close()
		return nil, fmt.Errorf("failed to create sandbox: %w", err)
	}

	catalog, err := newCatalog(cfg, sb, mem)
	if err != nil {
		mem.Close()
		lg.Close()
		return nil, err
	}

	p, err := newPlanner(cfg, lg.Component("planner"))
	if err != nil {
		mem.Close()
		lg.Close()
		return nil, err
	}

	runner, err := agent.NewRunner(agent.Config{
		Planner: p,
		Catalog: catalog,
		Executor: toolexecutor.NewExecutor(toolexecutor.Options{
			DefaultTimeout: time.Duration(cfg.Runtime.DefaultTimeoutSeconds) * time.Second,
			Limiter:        sandbox.NewProcessLimiter(sbCfg),
		}),
		Validator:       safety.New(safetyPolicy(cfg)),
		Memory:          mem,
		ConsentPolicy:   consentPolicy(cfg),
		Prompter:        consent.NewCLIPrompter(in, out),
		MaxSteps:        cfg.Runtime.MaxSteps,
		DenialWindow:    cfg.Runtime.DenialWindow,
		DenialThreshold: cfg.Runtime.DenialThreshold,
		Logger:          lg.Component("agent"),
	})
	if err != nil {
		mem.Close()
		lg.Close()
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     lg,
		memory:  mem,
		catalog: catalog,
		planner: p,
		runner:  runner,
	}, nil
}

// Close releases the memory database and the log sinks
func (a *app) Close() error {
	return errors.Join(a.memory.Close(), observability.CloseAuditTrail(), a.log.Close())
}

func loggerConfig(cfg *config.Config) logger.Config {
	return logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		Console:    true,
		Pretty:     cfg.Logging.Pretty,
		Redaction:  cfg.Logging.Redaction,
		MaxSizeMB:  cfg.Logging.MaxSize,
		MaxAgeDays: cfg.Logging.MaxAge,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	}
}

// newMemory opens the persistent store, or a private in-memory one when
// persistence is off. Vector search needs an OpenAI key for embeddings.
func newMemory(cfg *config.Config, log zerolog.Logger) (*memory.Manager, error) {
	mc := memory.Config{
		DBPath:      memory.InMemoryDB,
		Logger:      log,
		MaxEpisodic: cfg.Memory.MaxEpisodicMemories,
		MaxWorking:  cfg.Memory.MaxWorkingMemoryItems,
	}
	if cfg.Runtime.EnableMemoryPersistence && cfg.Memory.PersistDir != "" {
		mc.DBPath = filepath.Join(cfg.Memory.PersistDir, memoryDBName)
	}
	if cfg.Memory.EnableVectorSearch {
		if key := cfg.LLM.OpenAI.APIKey; key != "" {
			mc.EmbeddingProvider = memory.NewOpenAIEmbedder(key, cfg.Memory.EmbeddingModel, cfg.Memory.EmbeddingDimension)
		} else {
			log.Warn().Msg("Vector search needs an OpenAI API key; falling back to keyword recall")
		}
	}

	mgr, err := memory.NewManager(mc)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory: %w", err)
	}
	return mgr, nil
}

func newCatalog(cfg *config.Config, sb sandbox.Sandbox, mem memory.Store) (*toolexecutor.Catalog, error) {
	catalog := toolexecutor.NewCatalog()
	err := coretools.Register(catalog, coretools.Options{
		WorkDir:    cfg.WorkDir,
		Sandbox:    sb,
		Memory:     mem,
		HTTPClient: &http.Client{Timeout: httpTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return catalog, nil
}

// newPlanner returns the offline planner for the scripted provider and an
// LLM planner otherwise
func newPlanner(cfg *config.Config, log zerolog.Logger) (agent.Planner, error) {
	if cfg.LLM.Provider == "scripted" {
		return planner.NewOfflinePlanner(), nil
	}

	p := cfg.ActiveProvider()
	llmCfg := planner.LLMConfig{
		Provider:          cfg.LLM.Provider,
		APIKey:            p.APIKey,
		BaseURL:           p.BaseURL,
		Model:             p.Model,
		Temperature:       p.Temperature,
		MaxTokens:         p.MaxTokens,
		Timeout:           time.Duration(p.TimeoutSeconds) * time.Second,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Logger:            log,
	}
	if cfg.LLM.Provider == "deepseek" {
		llmCfg.ReasonerModel = cfg.LLM.DeepSeek.ReasonerModel
		llmCfg.EnableComplexityRouting = cfg.LLM.DeepSeek.EnableComplexityRouting
	}

	lp, err := planner.NewLLMPlanner(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create planner: %w", err)
	}
	return lp, nil
}

func newSelector(cfg *config.Config) *planner.Selector {
	return planner.NewSelector(
		cfg.LLM.Provider,
		cfg.ActiveProvider().Model,
		cfg.LLM.DeepSeek.ReasonerModel,
		cfg.LLM.DeepSeek.EnableComplexityRouting,
	)
}

func sandboxConfig(cfg *config.Config) sandbox.Config {
	sc := sandbox.DefaultConfig()
	sc.ResourceLimits.MaxMemoryMB = cfg.Sandbox.MaxMemoryMB
	sc.ResourceLimits.MaxCPUSeconds = cfg.Sandbox.MaxCPUTimeSeconds
	sc.ResourceLimits.MaxFileSizeMB = cfg.Sandbox.MaxFileSizeMB
	sc.ResourceLimits.MaxProcesses = cfg.Sandbox.MaxProcesses
	if cfg.Sandbox.BlockedCommands != nil {
		sc.BlockedCommands = cfg.Sandbox.BlockedCommands
	}
	sc.EnforceProcessLimits = cfg.Sandbox.EnforceProcessLimits
	sc.TempDir = cfg.Sandbox.TempDir
	sc.EnableNetwork = cfg.Sandbox.EnableNetwork
	return sc
}

// safetyPolicy maps the safety section. Guardrails off disables every check
// but keeps the size limits.
func safetyPolicy(cfg *config.Config) safety.Policy {
	p := safety.DefaultPolicy()
	p.MaxOutputLength = cfg.Safety.MaxOutputLength
	p.MaxInputLength = cfg.Safety.MaxInputLength
	p.MaxArgsCount = cfg.Safety.MaxArgsCount
	p.MaxFileSizeMB = cfg.Safety.MaxFileSizeMB
	if cfg.Safety.BlockedFilePaths != nil {
		p.BlockedFilePaths = cfg.Safety.BlockedFilePaths
	}
	p.EnableContentFiltering = cfg.Safety.EnableContentFiltering
	p.EnableCommandValidation = cfg.Safety.EnableCommandValidation
	p.EnableFilePathCheck = cfg.Safety.EnableFilePathCheck
	p.WorkDir = cfg.WorkDir

	if !cfg.Runtime.EnableGuardrails {
		p.EnableContentFiltering = false
		p.EnableCommandValidation = false
		p.EnableFilePathCheck = false
	}
	return p
}

func consentPolicy(cfg *config.Config) consent.Policy {
	c := cfg.Consent
	p := consent.DefaultPolicy()
	p.Interactive = c.EnableInteractiveConsent
	p.AutoApproveSafe = c.AutoApproveSafeOperations
	p.AutoApproveRead = c.AutoApproveReadOperations
	p.RequireWrite = c.RequireConsentForWrite
	p.RequireDelete = c.RequireConsentForDelete
	p.RequireExecute = c.RequireConsentForExecute
	if c.SafeDirectories != nil {
		p.SafeDirectories = c.SafeDirectories
	}
	if c.PromptTimeoutSeconds > 0 {
		p.PromptTimeout = time.Duration(c.PromptTimeoutSeconds) * time.Second
	}
	p.WorkDir = cfg.WorkDir
	return p
}
