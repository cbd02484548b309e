// Package commands provides the CLI commands for the cvet tool.
package commands

import (
	"fmt"
	"os"

	"github.com/quarle/cvet/internal/config"
	"github.com/quarle/cvet/internal/log"
	"github.com/quarle/cvet/internal/scanner"
	"github.com/quarle/cvet/pkg/cache"
	"github.com/quarle/cvet/pkg/frontend"
	"github.com/quarle/cvet/pkg/program"
)

// loadProgram discovers, parses, and merges every C source under root. The
// parse cache is consulted per file by content hash; noCache skips it.
func loadProgram(root string, cfg *config.Config, noCache bool) (*program.Program, int, error) {
	logger := log.Default()

	files, err := scanner.Scan(root)
	if err != nil {
		return nil, 0, fmt.Errorf("scanning %s: %w", root, err)
	}
	if len(files) == 0 {
		return nil, 0, fmt.Errorf("no C sources found under %s", root)
	}

	var pc *cache.ParseCache
	if !noCache && !cfg.NoCache {
		pc = cache.New(cache.Options{MaxEntries: 4096, Dir: cfg.CacheDir})
		if err := pc.Restore(); err != nil {
			logger.Warn("parse cache unavailable", "error", err)
			pc = nil
		}
	}

	units := make([]*frontend.File, 0, len(files))
	for _, fi := range files {
		content, err := os.ReadFile(fi.FullPath)
		if err != nil {
			return nil, 0, fmt.Errorf("reading %s: %w", fi.Path, err)
		}

		key := cache.Key(content)
		if pc != nil {
			if unit, ok := pc.Get(key); ok {
				units = append(units, unit)
				continue
			}
		}

		unit, err := frontend.ParseSource(content, fi.Path)
		if err != nil {
			return nil, 0, fmt.Errorf("parsing %s: %w", fi.Path, err)
		}
		units = append(units, unit)
		if pc != nil {
			pc.Put(key, unit)
		}
	}

	if pc != nil {
		if err := pc.Persist(); err != nil {
			logger.Warn("failed to persist parse cache", "error", err)
		}
	}

	logger.Debug("loaded program", "files", len(units))
	return frontend.Load(units...), len(units), nil
}
