// Package config loads cvet configuration from YAML files and environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/quarle/cvet/pkg/findings"
	"github.com/quarle/cvet/pkg/program"
)

// PrimitiveSpec is a user-supplied primitive catalog extension. Argument
// positions are zero-based; leave one unset when the primitive has no such
// argument.
type PrimitiveSpec struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	LockArg  *int   `yaml:"lock_arg,omitempty"`
	PathArg  *int   `yaml:"path_arg,omitempty"`
	DestArg  *int   `yaml:"dest_arg,omitempty"`
	LenArg   *int   `yaml:"len_arg,omitempty"`
	FmtArg   *int   `yaml:"fmt_arg,omitempty"`
	SizeArg  *int   `yaml:"size_arg,omitempty"`
}

// Config holds all configuration for cvet
type Config struct {
	// Workers bounds the analysis worker pool; 0 means one per CPU.
	Workers int `yaml:"workers" env:"CVET_WORKERS"`

	// Format selects the report writer: text, json, or sarif.
	Format string `yaml:"format" env:"CVET_FORMAT"`

	// MinSeverity filters reported findings: low, medium, or high.
	MinSeverity string `yaml:"min_severity" env:"CVET_MIN_SEVERITY"`

	// Rules enables a subset of finding kinds; empty means all.
	Rules []string `yaml:"rules" env:"CVET_RULES"`

	// Primitives extends the built-in primitive catalog.
	Primitives []PrimitiveSpec `yaml:"primitives"`

	// CacheDir holds the parse cache; empty disables persistence.
	CacheDir string `yaml:"cache_dir" env:"CVET_CACHE_DIR"`

	// NoCache disables the parse cache entirely.
	NoCache bool `yaml:"no_cache" env:"CVET_NO_CACHE"`

	// Logging
	Verbose bool `yaml:"verbose" env:"CVET_VERBOSE"`
}

var validCategories = map[string]bool{
	string(program.PrimLockAcquire):  true,
	string(program.PrimLockRelease):  true,
	string(program.PrimBlocking):     true,
	string(program.PrimFsCheck):      true,
	string(program.PrimFsOpen):       true,
	string(program.PrimFsMutate):     true,
	string(program.PrimFsDescriptor): true,
	string(program.PrimCopy):         true,
	string(program.PrimFormat):       true,
	string(program.PrimAlloc):        true,
}

var validRules = map[string]bool{
	string(findings.DoubleAcquire):         true,
	string(findings.UnbalancedRelease):     true,
	string(findings.InconsistentLockState): true,
	string(findings.LockLeak):              true,
	string(findings.BlockingWhileHeld):     true,
	string(findings.DeadlockCycle):         true,
	string(findings.UnsafeCopy):            true,
	string(findings.IntegerOverflowAlloc):  true,
	string(findings.FormatStringInjection): true,
	string(findings.ToctouRace):            true,
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Workers:     0,
		Format:      "text",
		MinSeverity: "low",
		CacheDir:    defaultCacheDir(),
	}
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cvet/cache"
	}
	return filepath.Join(home, ".cvet", "cache")
}

// globalConfigFilePath returns the global config file path (~/.cvet/config.yaml)
func globalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cvet/config.yaml"
	}
	return filepath.Join(home, ".cvet", "config.yaml")
}

// projectConfigFilePath returns the project-level config file path (./.cvet/config.yaml)
func projectConfigFilePath() string {
	return ".cvet/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.cvet/config.yaml)
// 3. Global config (~/.cvet/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	globalConfigPath := globalConfigFilePath()
	if data, err := os.ReadFile(globalConfigPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", globalConfigPath, err)
		}
	}

	projectConfigPath := projectConfigFilePath()
	if data, err := os.ReadFile(projectConfigPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", projectConfigPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// ProjectConfigPath is where `cvet init` writes its config.
func ProjectConfigPath() string {
	return projectConfigFilePath()
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CVET_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("CVET_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("CVET_MIN_SEVERITY"); v != "" {
		cfg.MinSeverity = v
	}
	if v := os.Getenv("CVET_RULES"); v != "" {
		cfg.Rules = nil
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				cfg.Rules = append(cfg.Rules, r)
			}
		}
	}
	if v := os.Getenv("CVET_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("CVET_NO_CACHE"); v != "" {
		cfg.NoCache = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("CVET_VERBOSE"); v != "" {
		cfg.Verbose = v == "true" || v == "1" || v == "yes"
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}

	switch c.Format {
	case "text", "json", "sarif":
	default:
		return fmt.Errorf("invalid format: %s (must be 'text', 'json', or 'sarif')", c.Format)
	}

	switch c.MinSeverity {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("invalid min_severity: %s (must be 'low', 'medium', or 'high')", c.MinSeverity)
	}

	for _, r := range c.Rules {
		if !validRules[r] {
			return fmt.Errorf("unknown rule: %s", r)
		}
	}

	for _, p := range c.Primitives {
		if p.Name == "" {
			return fmt.Errorf("primitive extension missing a name")
		}
		if !validCategories[p.Category] {
			return fmt.Errorf("primitive %s has invalid category: %s", p.Name, p.Category)
		}
	}

	return nil
}

// Catalog builds the primitive catalog: the defaults plus every configured
// extension.
func (c *Config) Catalog() *program.Catalog {
	cat := program.DefaultCatalog()
	for _, spec := range c.Primitives {
		p := program.Primitive{
			Name:     spec.Name,
			Category: program.PrimCategory(spec.Category),
			LockArg:  argOr(spec.LockArg),
			PathArg:  argOr(spec.PathArg),
			DestArg:  argOr(spec.DestArg),
			LenArg:   argOr(spec.LenArg),
			FmtArg:   argOr(spec.FmtArg),
			SizeArg:  argOr(spec.SizeArg),
		}
		cat.Add(p)
	}
	return cat
}

// RuleEnabled reports whether a finding kind passes the rule filter.
func (c *Config) RuleEnabled(kind findings.Kind) bool {
	if len(c.Rules) == 0 {
		return true
	}
	for _, r := range c.Rules {
		if r == string(kind) {
			return true
		}
	}
	return false
}

// Severity returns the configured minimum severity tier.
func (c *Config) Severity() findings.Severity {
	return findings.Severity(c.MinSeverity)
}

func argOr(v *int) int {
	if v == nil {
		return -1
	}
	return *v
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}
