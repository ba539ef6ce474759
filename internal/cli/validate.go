package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herculesaleixo/stackform/internal/eval"
	"github.com/herculesaleixo/stackform/internal/schema"
)

var validateParams map[string]string

var validateCmd = &cobra.Command{
	Use:   "validate [template]",
	Short: "Validate a template",
	Long: `Checks the template for schema violations, unresolved references and
parameter constraint failures without touching any remote resources.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringToStringVarP(&validateParams, "param", "p", nil, "Set template parameters (format: key=value)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := templatePath(args)
	fmt.Printf("Checking %s... ", path)

	tpl, err := eval.LoadFile(path, validateParams)
	if err != nil {
		fmt.Println("FAILED")
		return err
	}

	mgr, err := openState(cmd.Context())
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to open state: %w", err)
	}

	if err := eval.Validate(tpl, schema.Builtin(), mgr.Snapshot().Exports); err != nil {
		fmt.Println("FAILED")
		return err
	}
	fmt.Println("OK")

	fmt.Printf("\nTemplate is valid: %d resources, %d parameters, %d outputs.\n",
		len(tpl.Resources), len(tpl.Parameters), len(tpl.Outputs))
	return nil
}
