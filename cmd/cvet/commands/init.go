package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/quarle/cvet/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize cvet configuration interactively",
	Long: `Guides you through setting up cvet configuration step by step.
Creates a config file with report format, severity threshold, and worker
pool settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	// === SECTION 1: Report Output ===
	format := "text"
	minSeverity := "low"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Report Format").
				Description("How should findings be rendered?").
				Options(
					huh.NewOption("Text (colored, for terminals)", "text"),
					huh.NewOption("JSON", "json"),
					huh.NewOption("SARIF 2.1.0", "sarif"),
				).
				Value(&format),
			huh.NewSelect[string]().
				Title("Minimum Severity").
				Description("Findings below this tier are dropped").
				Options(
					huh.NewOption("Low (report everything)", "low"),
					huh.NewOption("Medium", "medium"),
					huh.NewOption("High", "high"),
				).
				Value(&minSeverity),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Analysis ===
	workersInput := "0"
	var enableCache bool

	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Analysis workers (0 = one per CPU)").
				Placeholder("0").
				Validate(func(s string) error {
					if s == "" {
						return nil
					}
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 {
						return fmt.Errorf("enter a non-negative number")
					}
					return nil
				}).
				Value(&workersInput),
			huh.NewConfirm().
				Title("Parse Cache").
				Description("Cache parsed files between runs?").
				Affirmative("Enable").
				Negative("Disable").
				Value(&enableCache),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 3: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.cvet/config.yaml)", "global"),
					huh.NewOption("Project (./.cvet/config.yaml)", "project"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	var configPath string
	if saveLocationChoice == "global" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		configPath = filepath.Join(home, ".cvet", "config.yaml")
	} else {
		configPath = config.ProjectConfigPath()
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// === Build config struct ===
	cfg := config.DefaultConfig()
	cfg.Format = format
	cfg.MinSeverity = minSeverity
	if workersInput != "" {
		cfg.Workers, _ = strconv.Atoi(workersInput)
	}
	cfg.NoCache = !enableCache

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Show config preview
	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Format: %s\n", cfg.Format)
	fmt.Printf("Min Severity: %s\n", cfg.MinSeverity)
	if cfg.Workers == 0 {
		fmt.Println("Workers: one per CPU")
	} else {
		fmt.Printf("Workers: %d\n", cfg.Workers)
	}
	if cfg.NoCache {
		fmt.Println("Parse Cache: disabled")
	} else {
		fmt.Printf("Parse Cache: %s\n", cfg.CacheDir)
	}
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
