package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herculesaleixo/stackform/internal/engine"
	"github.com/herculesaleixo/stackform/internal/eval"
)

var graphParams map[string]string

var graphCmd = &cobra.Command{
	Use:   "graph [template]",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the resource dependency graph
in Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  stackform graph | dot -Tpng > graph.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().StringToStringVarP(&graphParams, "param", "p", nil, "Set template parameters (format: key=value)")
}

func runGraph(cmd *cobra.Command, args []string) error {
	tpl, err := eval.LoadFile(templatePath(args), graphParams)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	dag, err := engine.BuildDAG(tpl.Resources)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	fmt.Print(dag.DOT())
	return nil
}
