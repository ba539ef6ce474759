package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/herculesaleixo/stackform/internal/engine"
	"github.com/herculesaleixo/stackform/internal/eval"
	"github.com/herculesaleixo/stackform/internal/provider"
	"github.com/herculesaleixo/stackform/internal/schema"
)

var (
	applyAutoApprove bool
	applyParams      map[string]string
	applyParallelism int
)

var applyCmd = &cobra.Command{
	Use:   "apply [template]",
	Short: "Apply a template",
	Long:  `Builds or changes infrastructure according to a Stackform template.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
	applyCmd.Flags().StringToStringVarP(&applyParams, "param", "p", nil, "Set template parameters (format: key=value)")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", 0, "Maximum number of concurrent actions (0 = default)")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tpl, err := eval.LoadFile(templatePath(args), applyParams)
	if err != nil {
		return fmt.Errorf("failed to load template: %w", err)
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
	schemas := schema.Builtin()
	if err := eval.Validate(tpl, schemas, st.Exports); err != nil {
		return err
	}

	registry := provider.NewRegistry()
	if err := loadRequiredProviders(registry, tpl); err != nil {
		return err
	}
	if err := loadStateProviders(registry, st); err != nil {
		return err
	}

	eng := engine.New(registry, schemas)
	if applyParallelism > 0 {
		eng.Parallelism = applyParallelism
	}

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

	if !applyAutoApprove {
		if !confirm("Do you want to perform these actions?") {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d changes...\n", len(plan.Changes()))

	report, applyErr := eng.ApplyPlanWithCallback(ctx, plan, mgr, func(ev engine.ApplyEvent) {
		switch ev.Status {
		case "succeeded":
			fmt.Printf("  %s %s: done (%s)\n", ev.Resource, ev.Action, ev.Duration.Round(time.Millisecond))
		case "failed":
			fmt.Printf("  %s %s: failed: %v\n", ev.Resource, ev.Action, ev.Err)
		case "aborted":
			fmt.Printf("  %s %s: aborted (prerequisite failed)\n", ev.Resource, ev.Action)
		}
	})

	// publish outputs for whatever did apply; partial state is the recovery
	// path after a failed run
	outputs, exports := eval.ResolveOutputs(tpl, mgr.Snapshot())
	if err := mgr.PublishOutputs(ctx, tpl.Name, outputs, exports); err != nil {
		return fmt.Errorf("failed to publish outputs: %w", err)
	}

	if applyErr != nil {
		if len(report.Failed) > 0 {
			fmt.Println("\nFailed actions:")
			for _, id := range report.Failed {
				fmt.Printf("  %s: %v\n", id, report.Errors[id])
			}
		}
		return fmt.Errorf("apply failed: %w", applyErr)
	}

	fmt.Printf("\nApply complete! Resources: %d added, %d changed, %d destroyed.\n",
		plan.Summary.Create, plan.Summary.Update+plan.Summary.Replace, plan.Summary.Delete)

	if len(outputs) > 0 {
		fmt.Println("\nOutputs:")
		for _, k := range sortedKeys(outputs) {
			fmt.Printf("  %s = %v\n", k, outputs[k])
		}
	}
	return nil
}
