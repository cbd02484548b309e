package report

import (
	"encoding/json"
	"io"

	"github.com/quarle/cvet/pkg/findings"
)

// JSONWriter emits findings and diagnostics as a single JSON document.
type JSONWriter struct{}

type jsonReport struct {
	Summary     Summary               `json:"summary"`
	Findings    []findings.Finding    `json:"findings"`
	Diagnostics []findings.Diagnostic `json:"diagnostics,omitempty"`
}

func (JSONWriter) Write(w io.Writer, fs []findings.Finding, ds []findings.Diagnostic, sum Summary) error {
	if fs == nil {
		fs = []findings.Finding{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{Summary: sum, Findings: fs, Diagnostics: ds})
}
