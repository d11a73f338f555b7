package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harun/stepwise/pkg/planner"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <question>",
	Short: "Show how complex a goal looks and which model would plan it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the analysis as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	analysis := planner.Score(goal, "")
	selection := newSelector(cfg).Select(goal, "")
	out := cmd.OutOrStdout()

	if analyzeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{
			"goal":      goal,
			"analysis":  analysis,
			"selection": selection,
		})
	}

	fmt.Fprintln(out, titleStyle.Render("Complexity analysis"))
	fmt.Fprintf(out, "  Goal:       %s\n", goal)
	fmt.Fprintf(out, "  Complex:    %t\n", analysis.IsComplex)
	fmt.Fprintf(out, "  Simple:     %.1f\n", analysis.SimpleScore)
	fmt.Fprintf(out, "  Complexity: %.1f (keywords %.1f, length %.1f, structure %.1f)\n",
		analysis.TotalComplex(), analysis.ComplexScore, analysis.LengthScore, analysis.StructureScore)
	fmt.Fprintf(out, "  Reasoning:  %s\n", analysis.Reasoning)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Provider:   %s\n", cfg.LLM.Provider)
	fmt.Fprintf(out, "  Routing:    %t\n", selection.RoutingEnabled)
	fmt.Fprintf(out, "  Model:      %s\n", selection.Model)
	return nil
}
