package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quarle/cvet/internal/config"
	"github.com/quarle/cvet/internal/report"
	"github.com/quarle/cvet/pkg/engine"
	"github.com/quarle/cvet/pkg/findings"
)

var lockKinds = []string{
	string(findings.DoubleAcquire),
	string(findings.UnbalancedRelease),
	string(findings.InconsistentLockState),
	string(findings.LockLeak),
	string(findings.BlockingWhileHeld),
	string(findings.DeadlockCycle),
}

// locksCmd represents the locks command
var locksCmd = &cobra.Command{
	Use:   "locks [path]",
	Short: "Report lock discipline findings only",
	Long: `Runs the full analysis but reports only lock discipline findings:
double acquisitions, unbalanced releases, inconsistent lock state at joins,
lock leaks, blocking calls under a lock, and cross-function deadlock cycles.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		prog, fileCount, err := loadProgram(root, cfg, true)
		if err != nil {
			return err
		}

		result, err := engine.Analyze(cmd.Context(), prog, engine.Options{
			Workers: cfg.Workers,
			Catalog: cfg.Catalog(),
		})
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}

		fs := report.Filter(result.Findings, findings.SeverityLow, lockKinds)

		format := "text"
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			format = "json"
		}
		writer, err := report.ForFormat(format)
		if err != nil {
			return err
		}
		return writer.Write(os.Stdout, fs, nil, report.Summary{
			FilesAnalyzed: fileCount,
			Functions:     len(prog.Functions),
			Root:          root,
		})
	},
}

func init() {
	locksCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(locksCmd)
}
