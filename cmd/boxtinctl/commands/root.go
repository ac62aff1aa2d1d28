// Package commands implements boxtinctl's CLI commands.
package commands

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "boxtinctl",
	Short: "Inspect and validate boxtin policy rule files",
	Long: `boxtinctl loads a YAML policy rule file the same way the agent does at
activation time, so mistakes surface before a host process ever loads one.

Use "boxtinctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(dumpCmd)
}
