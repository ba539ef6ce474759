package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herculesaleixo/stackform/internal/engine"
	"github.com/herculesaleixo/stackform/internal/eval"
	"github.com/herculesaleixo/stackform/internal/provider"
	"github.com/herculesaleixo/stackform/internal/schema"
)

var planParams map[string]string

var planCmd = &cobra.Command{
	Use:   "plan [template]",
	Short: "Generate an execution plan",
	Long: `Generates an execution plan showing what actions Stackform will take
to reach the desired state declared in the template.

The plan shows:
  + resources to be created
  ~ resources to be updated (with diff)
  - resources to be deleted
  -/+ resources to be replaced`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringToStringVarP(&planParams, "param", "p", nil, "Set template parameters (format: key=value)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tpl, err := eval.LoadFile(templatePath(args), planParams)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
	}

	mgr, err := openState(ctx)
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}
	st := mgr.Snapshot()

	schemas := schema.Builtin()
	if err := eval.Validate(tpl, schemas, st.Exports); err != nil {
		return err
	}

	registry := provider.NewRegistry()
	eng := engine.New(registry, schemas)

	plan, err := eng.CreatePlan(ctx, tpl, st)
	if err != nil {
		return fmt.Errorf("plan generation failed: %w", err)
	}

	if plan.Empty() {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("Stackform will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)
	return nil
}
