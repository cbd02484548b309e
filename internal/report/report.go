// Package report renders analysis results for humans and machines. The text
// writer targets terminals, the json writer emits the findings verbatim, and
// the sarif writer produces SARIF 2.1.0 for code-scanning integrations.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/quarle/cvet/pkg/findings"
)

// Summary carries run statistics alongside the findings.
type Summary struct {
	FilesAnalyzed int           `json:"files_analyzed"`
	Functions     int           `json:"functions"`
	Duration      time.Duration `json:"-"`
	Root          string        `json:"root,omitempty"`
}

// Writer renders one report format.
type Writer interface {
	Write(w io.Writer, fs []findings.Finding, ds []findings.Diagnostic, sum Summary) error
}

// ForFormat returns the writer for a format name: text, json, or sarif.
func ForFormat(format string) (Writer, error) {
	switch format {
	case "text":
		return TextWriter{}, nil
	case "json":
		return JSONWriter{}, nil
	case "sarif":
		return SARIFWriter{}, nil
	}
	return nil, fmt.Errorf("unknown report format: %s", format)
}

// Filter drops findings below the minimum severity or outside the enabled
// rule set. A nil or empty rules slice enables every rule.
func Filter(fs []findings.Finding, min findings.Severity, rules []string) []findings.Finding {
	enabled := map[string]bool{}
	for _, r := range rules {
		enabled[r] = true
	}
	out := fs[:0:0]
	for _, f := range fs {
		if !f.Severity.AtLeast(min) {
			continue
		}
		if len(enabled) > 0 && !enabled[string(f.Kind)] {
			continue
		}
		out = append(out, f)
	}
	return out
}
