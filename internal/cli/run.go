package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/stepwise/internal/observability"
	"github.com/harun/stepwise/pkg/agent"
)

var (
	runMaxSteps     int
	runInteractive  bool
	runShowThinking bool
	runQuiet        bool
	runJSON         bool
	runMetricsAddr  string
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Run the agent toward a goal",
	Long: `Run the agent toward a goal. Each step is planned, validated and, when
it writes, deletes or executes something, confirmed with you if interactive
consent is on.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", 0, "maximum planning iterations (default from config)")
	runCmd.Flags().BoolVar(&runInteractive, "interactive", false, "ask before risky operations")
	runCmd.Flags().BoolVar(&runShowThinking, "show-thinking", false, "print the agent's reasoning steps")
	runCmd.Flags().BoolVar(&runQuiet, "quiet", false, "only print the final result")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full run result as JSON")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	if runMetricsAddr != "" {
		srv := serveMetrics(runMetricsAddr, a.log.Component("metrics"))
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	opts := agent.RunOptions{ShowThinking: runShowThinking, Quiet: runQuiet}
	if cmd.Flags().Changed("interactive") {
		opts.Interactive = &runInteractive
	}
	if !runQuiet && !runJSON {
		opts.OnRecord = func(rec agent.StepRecord) {
			printRecord(out, rec, runShowThinking)
		}
	}

	result := a.runner.Run(ctx, goal, runMaxSteps, opts)

	if runJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
	} else {
		fmt.Fprintln(out, renderResult(result))
	}

	if result.Status == agent.StatusRejected {
		return fmt.Errorf("goal rejected: %s", result.Result)
	}
	return nil
}

// serveMetrics exposes /metrics until the returned server is shut down
func serveMetrics(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return srv
}
