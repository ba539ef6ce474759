package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/herculesaleixo/stackform/internal/ir"
	"github.com/herculesaleixo/stackform/internal/provider"
	"github.com/herculesaleixo/stackform/internal/state"
)

const defaultTemplate = "stack.yaml"

func templatePath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return defaultTemplate
}

func openState(ctx context.Context) (*state.Manager, error) {
	backend, err := state.NewBackend(backendKind, backendConfig, statePath)
	if err != nil {
		return nil, err
	}
	return state.Open(ctx, backend)
}

// loadRequiredProviders auto-loads the providers referenced by the template.
func loadRequiredProviders(registry *provider.Registry, tpl *ir.Template) error {
	seen := make(map[string]bool)
	for _, res := range tpl.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.Load(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

// loadStateProviders auto-loads the providers referenced by state resources
// (needed for deletes of resources no longer in the template).
func loadStateProviders(registry *provider.Registry, st *ir.State) error {
	seen := make(map[string]bool)
	for _, res := range st.Resources {
		if res.Provider != "" && !seen[res.Provider] {
			seen[res.Provider] = true
			if err := registry.Load(res.Provider); err != nil {
				return fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
			}
		}
	}
	return nil
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(plan *ir.Plan) {
	for _, a := range plan.Changes() {
		symbol := "~"
		switch a.Kind {
		case ir.ActionCreate:
			symbol = "+"
		case ir.ActionDelete:
			symbol = "-"
		case ir.ActionReplace:
			symbol = "-/+"
		}

		color := "\033[0m"
		switch a.Kind {
		case ir.ActionCreate:
			color = "\033[32m"
		case ir.ActionDelete:
			color = "\033[31m"
		case ir.ActionUpdate, ir.ActionReplace:
			color = "\033[33m"
		}

		verb := string(a.Kind)
		if a.Superseded {
			verb = "DELETE (superseded instance)"
		}

		fmt.Printf("\n%s  # %s will be %s%s\n", color, a.Resource, verb, "\033[0m")
		fmt.Printf("%s  %s resource %q %q {\n", color, symbol, a.Type, a.Resource)
		renderPropertyDiff(a.Diff, color)
		fmt.Printf("%s  }%s\n", color, "\033[0m")
	}
}

func renderPropertyDiff(diff map[string]*ir.PropertyDiff, color string) {
	keys := make([]string, 0, len(diff))
	for k := range diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		d := diff[key]
		after := formatValue(d.After)
		if d.Unknown {
			after = "(known after apply)"
		}
		switch d.Op {
		case "create":
			fmt.Printf("\033[32m      + %s = %s\033[0m\n", key, after)
		case "delete":
			fmt.Printf("\033[31m      - %s = %s\033[0m\n", key, formatValue(d.Before))
		case "update":
			suffix := ""
			if d.ForcesReplacement {
				suffix = " # forces replacement"
			}
			fmt.Printf("\033[33m      ~ %s = %s -> %s%s\033[0m\n", key, formatValue(d.Before), after, suffix)
		default:
			fmt.Printf("%s        %s = %s\n", color, key, after)
		}
	}
}

func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", plan.Summary.Create)
	fmt.Printf("  Update:  %d\n", plan.Summary.Update)
	fmt.Printf("  Delete:  %d\n", plan.Summary.Delete)
	fmt.Printf("  Replace: %d\n", plan.Summary.Replace)
	fmt.Printf("  NoOp:    %d\n", plan.Summary.NoOp)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func confirm(prompt string) bool {
	fmt.Printf("\n%s (y/n): ", prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}
