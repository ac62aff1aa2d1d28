package commands

import (
	"fmt"
	"os"

	"github.com/cojen/boxtin/boxtincfg"
	"github.com/cojen/boxtin/policy"
	"github.com/cojen/boxtin/stdlib"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var dumpUseStdlib bool

var dumpCmd = &cobra.Command{
	Use:   "dump <policy.yaml>",
	Short: "Parse a policy rule file and print it back in canonical form",
	Long: `Parses a YAML policy rule file, validates it, and re-emits it in
canonical YAML — useful for diffing a hand-edited file against what
boxtinctl actually understood, or for spotting a typo'd field name that
YAML silently dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().BoolVar(&dumpUseStdlib, "stdlib", false,
		"validate class/member references against the built-in standard-library catalog")
}

func runDump(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	doc, err := boxtincfg.ParseDoc(data)
	if err != nil {
		return err
	}

	var catalog policy.Catalog
	if dumpUseStdlib {
		catalog = stdlib.Catalog()
	}
	if _, err := boxtincfg.BuildRules(doc, catalog); err != nil {
		return err
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("re-marshaling policy document: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
