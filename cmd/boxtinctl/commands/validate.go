package commands

import (
	"fmt"
	"os"

	"github.com/cojen/boxtin/boxtincfg"
	"github.com/cojen/boxtin/policy"
	"github.com/cojen/boxtin/stdlib"
	"github.com/spf13/cobra"
)

var validateUseStdlib bool

var validateCmd = &cobra.Command{
	Use:   "validate <policy.yaml>",
	Short: "Load and validate a policy rule file",
	Long: `Parses a YAML policy rule file and builds it the same way the agent does
at activation time, reporting every validation failure found rather than
stopping at the first one.

Examples:
  boxtinctl validate policy.yaml
  boxtinctl validate --stdlib policy.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateUseStdlib, "stdlib", false,
		"validate class/member references against the built-in standard-library catalog")
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	var catalog policy.Catalog
	if validateUseStdlib {
		catalog = stdlib.Catalog()
	}

	rules, err := boxtincfg.LoadRules(data, catalog)
	if err != nil {
		return err
	}
	_ = rules

	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
	return nil
}
