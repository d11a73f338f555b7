package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harun/stepwise/pkg/agent"
	"github.com/harun/stepwise/pkg/eval"
)

var (
	evalSuite  string
	evalOutput string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run an evaluation suite against the agent",
	Long: `Run an evaluation suite and save the scored results as JSON.
The suite is "basic", "advanced" or the path of a YAML suite file.`,
	Args: cobra.NoArgs,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalSuite, "suite", "basic", "suite to run: basic, advanced or a YAML file")
	evalCmd.Flags().StringVar(&evalOutput, "output", "", "directory for result files (default from config)")
	rootCmd.AddCommand(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	suite, err := resolveSuite(evalSuite)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Eval runs unattended
	cfg.Consent.EnableInteractiveConsent = false

	a, err := newApp(cfg, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	outputDir := evalOutput
	if outputDir == "" {
		outputDir = cfg.Eval.OutputDir
	}

	evaluator := eval.NewEvaluator(eval.Options{OutputDir: outputDir, Logger: a.log.Component("eval")})
	result, err := evaluator.RunSuite(cmd.Context(), suite, agentFunc(a.runner))
	if result != nil {
		printSuiteResult(cmd.OutOrStdout(), result)
	}
	return err
}

func resolveSuite(name string) (eval.Suite, error) {
	if suite, ok := eval.BuiltinSuite(name); ok {
		return suite, nil
	}
	suite, err := eval.LoadSuite(name)
	if err != nil {
		return eval.Suite{}, fmt.Errorf("unknown suite %q: %w", name, err)
	}
	return suite, nil
}

func agentFunc(runner *agent.Runner) eval.AgentFunc {
	return func(ctx context.Context, goal string, maxSteps int) (*agent.RunResult, error) {
		return runner.Run(ctx, goal, maxSteps, agent.RunOptions{Quiet: true}), nil
	}
}

func printSuiteResult(w io.Writer, r *eval.SuiteResult) {
	fmt.Fprintln(w, titleStyle.Render("Evaluation: "+r.SuiteName))
	for _, res := range r.Results {
		mark := "PASS"
		if !res.Success {
			mark = "FAIL"
		}
		line := fmt.Sprintf("  %s  %-24s %6.2fs", mark, res.TaskID, res.ExecutionTime)
		if res.Error != "" {
			line += "  " + res.Error
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\n  %d/%d passed (%.0f%%), average score %.2f, average time %.2fs\n",
		r.SuccessfulTasks, r.TotalTasks, r.SuccessRate*100, r.AverageScore, r.AverageExecutionTime)
	if r.File != "" {
		fmt.Fprintln(w, dimStyle.Render("  Results saved to "+r.File))
	}
}
