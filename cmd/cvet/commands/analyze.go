package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarle/cvet/internal/config"
	"github.com/quarle/cvet/internal/log"
	"github.com/quarle/cvet/internal/report"
	"github.com/quarle/cvet/pkg/engine"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a C source tree and report findings",
	Long: `Analyzes every C source file under the given path (default: current
directory) and reports concurrency and memory-safety findings.

The report format, minimum severity, and enabled rules come from the
configuration file and can be overridden with flags.`,
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
		applyAnalyzeFlags(cmd, cfg)

		if cfg.Verbose {
			log.Default().SetLevel(log.DebugLevel)
		}

		noCache, _ := cmd.Flags().GetBool("no-cache")
		exitCode, _ := cmd.Flags().GetBool("exit-code")

		start := time.Now()
		prog, fileCount, err := loadProgram(root, cfg, noCache)
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

		fs := report.Filter(result.Findings, cfg.Severity(), cfg.Rules)
		sum := report.Summary{
			FilesAnalyzed: fileCount,
			Functions:     len(prog.Functions),
			Duration:      time.Since(start),
			Root:          root,
		}

		writer, err := report.ForFormat(cfg.Format)
		if err != nil {
			return err
		}

		out := os.Stdout
		if path, _ := cmd.Flags().GetString("output"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}

		if err := writer.Write(out, fs, result.Diagnostics, sum); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}

		if exitCode && len(fs) > 0 {
			return fmt.Errorf("analysis reported %d findings", len(fs))
		}
		return nil
	},
}

// applyAnalyzeFlags overlays explicitly set flags onto the loaded config.
func applyAnalyzeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("format") {
		cfg.Format, _ = cmd.Flags().GetString("format")
	}
	if cmd.Flags().Changed("min-severity") {
		cfg.MinSeverity, _ = cmd.Flags().GetString("min-severity")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("rules") {
		cfg.Rules, _ = cmd.Flags().GetStringSlice("rules")
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose, _ = cmd.Flags().GetBool("verbose")
	}
}

func init() {
	analyzeCmd.Flags().StringP("format", "f", "", "Report format: text, json, or sarif")
	analyzeCmd.Flags().String("min-severity", "", "Minimum severity to report: low, medium, or high")
	analyzeCmd.Flags().IntP("workers", "w", 0, "Number of analysis workers (default: one per CPU)")
	analyzeCmd.Flags().StringSlice("rules", nil, "Comma-separated finding kinds to enable (default: all)")
	analyzeCmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	analyzeCmd.Flags().Bool("no-cache", false, "Skip the parse cache")
	analyzeCmd.Flags().Bool("exit-code", false, "Exit non-zero when findings are reported")
	analyzeCmd.Flags().BoolP("verbose", "v", false, "Verbose logging")
	RootCmd.AddCommand(analyzeCmd)
}
