package report

import (
	"encoding/json"
	"io"
	"sort"

	"github.com/quarle/cvet/pkg/findings"
)

// SARIFWriter produces a SARIF 2.1.0 document with one run and one rule per
// finding kind.
type SARIFWriter struct{}

const toolVersion = "0.3.0"

var ruleDescriptions = map[findings.Kind]string{
	findings.DoubleAcquire:         "A lock is acquired while already held on the same path.",
	findings.UnbalancedRelease:     "A lock is released without a matching acquisition on some path.",
	findings.InconsistentLockState: "Paths merge with the lock held on some but not all of them.",
	findings.LockLeak:              "A function can return while still holding a lock.",
	findings.BlockingWhileHeld:     "A blocking primitive is invoked while a lock is held.",
	findings.DeadlockCycle:         "Lock acquisition order forms a cycle across functions.",
	findings.UnsafeCopy:            "An unbounded copy can overflow a fixed-size buffer.",
	findings.IntegerOverflowAlloc:  "An allocation size product can overflow before allocation.",
	findings.FormatStringInjection: "A non-constant format string reaches a format interpreter.",
	findings.ToctouRace:            "A path is checked and then used, racing against concurrent change.",
}

type sarifDoc struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ShortDescription sarifText `json:"shortDescription"`
}

type sarifText struct {
	Text string `json:"text"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	RuleIndex int             `json:"ruleIndex"`
	Level     string          `json:"level"`
	Message   sarifText       `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysical `json:"physicalLocation"`
}

type sarifPhysical struct {
	ArtifactLocation sarifArtifact `json:"artifactLocation"`
	Region           sarifRegion   `json:"region"`
}

type sarifArtifact struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

func (SARIFWriter) Write(w io.Writer, fs []findings.Finding, ds []findings.Diagnostic, sum Summary) error {
	// Rules are emitted in sorted kind order so repeated runs produce
	// byte-identical documents.
	seen := map[findings.Kind]bool{}
	for _, f := range fs {
		seen[f.Kind] = true
	}
	kinds := make([]string, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	rules := make([]sarifRule, 0, len(kinds))
	index := map[string]int{}
	for i, k := range kinds {
		index[k] = i
		rules = append(rules, sarifRule{
			ID:               k,
			Name:             string(k),
			ShortDescription: sarifText{Text: ruleDescriptions[findings.Kind(k)]},
		})
	}

	results := make([]sarifResult, 0, len(fs))
	for _, f := range fs {
		results = append(results, sarifResult{
			RuleID:    string(f.Kind),
			RuleIndex: index[string(f.Kind)],
			Level:     sarifLevel(f.Severity),
			Message:   sarifText{Text: f.Message},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysical{
					ArtifactLocation: sarifArtifact{URI: f.File},
					Region:           sarifRegion{StartLine: f.Line},
				},
			}},
		})
	}

	doc := sarifDoc{
		Version: "2.1.0",
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:    "cvet",
				Version: toolVersion,
				Rules:   rules,
			}},
			Results: results,
		}},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func sarifLevel(sev findings.Severity) string {
	switch sev {
	case findings.SeverityHigh:
		return "error"
	case findings.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
