package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/stepwise/pkg/memory"
	"github.com/harun/stepwise/pkg/sandbox"
	"github.com/harun/stepwise/pkg/toolexecutor"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the agent can use",
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mem, err := memory.NewManager(memory.Config{DBPath: memory.InMemoryDB, Logger: zerolog.Nop()})
	if err != nil {
		return err
	}
	defer mem.Close()

	sb, err := sandbox.NewHostSandbox(sandboxConfig(cfg))
	if err != nil {
		return err
	}
	catalog, err := newCatalog(cfg, sb, mem)
	if err != nil {
		return err
	}

	printTools(cmd.OutOrStdout(), catalog.List())
	return nil
}

func printTools(w io.Writer, specs []toolexecutor.ToolSpec) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%d tools", len(specs))))
	groups := toolexecutor.GroupByCategory(specs)
	for _, cat := range toolexecutor.AllCategories() {
		group := groups[cat]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", dimStyle.Render("["+string(cat)+"]"))
		for _, spec := range group {
			fmt.Fprintf(w, "%s %s\n", toolStyle.Render(spec.Name), dimStyle.Render("("+spec.Timeout.String()+")"))
			fmt.Fprintf(w, "  %s\n", spec.Description)
			for _, p := range spec.Parameters {
				req := ""
				if p.Required {
					req = ", required"
				}
				fmt.Fprintf(w, "    %s (%s%s): %s\n", p.Name, p.Type, req, p.Description)
			}
		}
	}
}
