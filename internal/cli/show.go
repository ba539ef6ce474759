package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current state",
	Long:  `Displays a human-readable view of the applied state.`,
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
}

func runShow(cmd *cobra.Command, args []string) error {
	mgr, err := openState(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}
	s := mgr.Snapshot()

	if showJSON {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal state: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("State: version=%d serial=%d lineage=%s\n", s.Version, s.Serial, s.Lineage)
	fmt.Printf("Resources: %d\n\n", len(s.Resources))

	for _, res := range mgr.List() {
		fmt.Printf("# %s\n", res.Name)
		fmt.Printf("  type     = %s\n", res.Type)
		fmt.Printf("  provider = %s\n", res.Provider)
		fmt.Printf("  id       = %s\n", res.RemoteID)
		for _, k := range sortedKeys(res.Outputs) {
			fmt.Printf("  %s = %v\n", k, res.Outputs[k])
		}
		fmt.Println()
	}

	if len(s.Outputs) > 0 {
		fmt.Println("Outputs:")
		for _, k := range sortedKeys(s.Outputs) {
			fmt.Printf("  %s = %v\n", k, s.Outputs[k])
		}
	}
	return nil
}
