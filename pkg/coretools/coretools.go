package coretools

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/harun/stepwise/pkg/memory"
	"github.com/harun/stepwise/pkg/sandbox"
	"github.com/harun/stepwise/pkg/toolexecutor"
)

const defaultHTTPTimeout = 15 * time.Second

// Options configures builtin tool registration.
type Options struct {
	// WorkDir anchors relative file paths and shell commands. Empty means
	// the process working directory.
	WorkDir string

	// Sandbox runs shell.exec. Without it shell.exec is blocked.
	Sandbox sandbox.Sandbox

	// Memory backs memory.store and memory.search. Without it those tools
	// are not registered.
	Memory memory.Store

	// HTTPClient is used by the web tools
	HTTPClient *http.Client

	// SearchURL overrides the DuckDuckGo instant answer endpoint
	SearchURL string
}

// Register adds the builtin tools to catalog.
func Register(catalog *toolexecutor.Catalog, opts Options) error {
	if catalog == nil {
		return errors.New("tool catalog is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if opts.SearchURL == "" {
		opts.SearchURL = duckDuckGoURL
	}

	tools := []toolexecutor.ToolSpec{
		readFileTool(opts),
		writeFileTool(opts),
		listDirTool(opts),
		mkdirTool(opts),
		deleteFileTool(opts),
		webSearchTool(opts),
		webFetchTool(opts),
		codeExecTool(),
		shellExecTool(opts),
		mathCalcTool(),
		summarizeTool(),
		systemInfoTool(),
		weatherInfoTool(),
		stockInfoTool(),
	}
	if opts.Memory != nil {
		tools = append(tools, memoryStoreTool(opts), memorySearchTool(opts))
	}

	for _, tool := range tools {
		if err := catalog.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

// decodeArgs decodes a handler argument map into a request struct.
// JSON numbers arrive as float64 and strings may stand in for numbers.
func decodeArgs(args map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// resolvePath anchors a relative path at the work dir
func resolvePath(opts Options, path string) string {
	if path == "" {
		path = "."
	}
	if filepath.IsAbs(path) || opts.WorkDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(opts.WorkDir, path)
}

// failure is the error-shaped result returned for expected failures, which
// the agent sees as an observation instead of a retried error
func failure(format string, args ...interface{}) map[string]interface{} {
	return map[string]interface{}{"error": fmt.Sprintf(format, args...)}
}
