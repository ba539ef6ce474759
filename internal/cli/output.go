package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var outputJSON bool

var outputCmd = &cobra.Command{
	Use:   "output [name]",
	Short: "Show output values from state",
	Long: `Reads output values from the applied state.

If no name is given, all outputs are displayed. If a name is given,
only that output's value is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOutput,
}

func init() {
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
}

func runOutput(cmd *cobra.Command, args []string) error {
	mgr, err := openState(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}
	s := mgr.Snapshot()

	if len(args) > 0 {
		name := args[0]
		val, ok := s.Outputs[name]
		if !ok {
			return fmt.Errorf("output %q not found", name)
		}
		if outputJSON {
			data, _ := json.Marshal(val)
			fmt.Println(string(data))
		} else {
			fmt.Println(val)
		}
		return nil
	}

	if len(s.Outputs) == 0 {
		fmt.Println("No outputs defined.")
		return nil
	}

	if outputJSON {
		data, _ := json.MarshalIndent(s.Outputs, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	for _, k := range sortedKeys(s.Outputs) {
		fmt.Printf("%s = %v\n", k, s.Outputs[k])
	}
	return nil
}
