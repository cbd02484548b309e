package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "cvet",
	Short: "cvet - Concurrency and memory-safety analysis for C",
	Long: `cvet statically analyzes C source trees for concurrency and memory-safety
defects: lock discipline violations, cross-function deadlock cycles, unsafe
buffer copies, overflow-prone allocations, format string injection, and
check-then-use filesystem races.

Commands:
  analyze     Analyze a source tree and report findings
  cfg         Print the control flow graph of a function
  calls       Print the resolved call graph of a source tree
  locks       Report lock discipline findings only
  init        Create a configuration file interactively

Use "cvet [command] --help" for more information about a command.`,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}
