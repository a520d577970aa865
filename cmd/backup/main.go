// Command backup provides the CLI front end for the repository engine:
// backup, verify, purge, distill, and clone.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCommand = &cobra.Command{
	Use:   "backup",
	Short: "backup manages content-deduplicating local backup repositories",
	Run: func(command *cobra.Command, arguments []string) {
		command.Help()
	},
}

var rootConfiguration struct {
	help bool
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")

	cobra.EnableCommandSorting = false

	rootCommand.AddCommand(
		backupCommand,
		verifyCommand,
		purgeCommand,
		distillCommand,
		cloneCommand,
	)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
