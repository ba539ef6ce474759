package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herculesaleixo/stackform/internal/engine"
	"github.com/herculesaleixo/stackform/internal/eval"
	"github.com/herculesaleixo/stackform/internal/ir"
	"github.com/herculesaleixo/stackform/internal/provider"
	"github.com/herculesaleixo/stackform/internal/schema"
)

var (
	destroyAutoApprove bool
	destroyParams      map[string]string
)

var destroyCmd = &cobra.Command{
	Use:   "destroy [template]",
	Short: "Destroy all managed infrastructure",
	Long: `Destroys every resource recorded in the state, dependents before
dependencies. This command is the inverse of 'stackform apply'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
	destroyCmd.Flags().StringToStringVarP(&destroyParams, "param", "p", nil, "Set template parameters (format: key=value)")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// the template is optional here: it only contributes preventDestroy
	// markers
	var tpl *ir.Template
	if len(args) > 0 {
		t, err := eval.LoadFile(args[0], destroyParams)
		if err != nil {
			return fmt.Errorf("failed to load template: %w", err)
		}
		tpl = t
	} else if t, err := eval.LoadFile(defaultTemplate, destroyParams); err == nil {
		tpl = t
	}

	mgr, err := openState(ctx)
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}
	if err := mgr.Lock(); err != nil {
		return err
	}
	defer mgr.Unlock()

	st := mgr.Snapshot()
	if len(st.Resources) == 0 {
		fmt.Println("No resources in state. Nothing to destroy.")
		return nil
	}

	registry := provider.NewRegistry()
	if err := loadStateProviders(registry, st); err != nil {
		return err
	}

	eng := engine.New(registry, schema.Builtin())
	plan, err := eng.CreateDestroyPlan(ctx, tpl, st)
	if err != nil {
		return fmt.Errorf("destroy plan generation failed: %w", err)
	}

	fmt.Println("Stackform will destroy the following resources:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove {
		if !confirm("Do you really want to destroy all resources?") {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Printf("\nDestroying %d resources...\n", len(plan.Changes()))

	if _, err := eng.ApplyPlan(ctx, plan, mgr); err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}

	fmt.Println("\nDestroy complete! All resources have been deleted.")
	return nil
}
