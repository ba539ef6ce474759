package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage Stackform state",
	Long:  `Commands for inspecting and modifying the applied state.`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show attributes of a single resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a resource from state (does not destroy)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	mgr, err := openState(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}

	resources := mgr.List()
	if len(resources) == 0 {
		fmt.Println("No resources in state.")
		return nil
	}

	s := mgr.Snapshot()
	fmt.Printf("State version: %d, serial: %d, lineage: %s\n\n", s.Version, s.Serial, s.Lineage)
	for _, res := range resources {
		fmt.Printf("  %s (%s, provider: %s)\n", res.Name, res.Type, res.Provider)
	}
	fmt.Printf("\nTotal: %d resource(s)\n", len(resources))
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	mgr, err := openState(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}

	res, ok := mgr.Get(args[0])
	if !ok {
		return fmt.Errorf("resource %s not found in state", args[0])
	}

	fmt.Printf("# %s\n", res.Name)
	fmt.Printf("  type     = %s\n", res.Type)
	fmt.Printf("  provider = %s\n", res.Provider)
	fmt.Printf("  id       = %s\n", res.RemoteID)

	if len(res.Inputs) > 0 {
		fmt.Println("\n  Inputs:")
		for _, k := range sortedKeys(res.Inputs) {
			fmt.Printf("    %s = %v\n", k, res.Inputs[k])
		}
	}
	if len(res.Outputs) > 0 {
		fmt.Println("\n  Outputs:")
		for _, k := range sortedKeys(res.Outputs) {
			fmt.Printf("    %s = %v\n", k, res.Outputs[k])
		}
	}
	if len(res.Dependencies) > 0 {
		fmt.Printf("\n  dependencies = %v\n", res.Dependencies)
	}
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	mgr, err := openState(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}

	if err := mgr.Lock(); err != nil {
		return err
	}
	defer mgr.Unlock()

	if _, ok := mgr.Get(args[0]); !ok {
		return fmt.Errorf("resource %s not found in state", args[0])
	}
	if err := mgr.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("Removed %s from state (resource was NOT destroyed)\n", args[0])
	return nil
}
