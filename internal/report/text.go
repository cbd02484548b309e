package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/quarle/cvet/pkg/findings"
)

var (
	bold      = color.New(color.Bold)
	red       = color.New(color.FgRed, color.Bold)
	yellow    = color.New(color.FgYellow, color.Bold)
	cyan      = color.New(color.FgCyan)
	green     = color.New(color.FgGreen)
	dim       = color.New(color.Faint)
	separator = strings.Repeat("━", 40)
)

// TextWriter writes a human-readable colored report.
type TextWriter struct{}

func (TextWriter) Write(w io.Writer, fs []findings.Finding, ds []findings.Diagnostic, sum Summary) error {
	high := countSeverity(fs, findings.SeverityHigh)
	medium := countSeverity(fs, findings.SeverityMedium)
	low := countSeverity(fs, findings.SeverityLow)

	bold.Fprintln(w, "\ncvet Analysis")
	fmt.Fprintln(w, separator)
	fmt.Fprintln(w)

	printCount(w, red, high, "high severity finding")
	printCount(w, yellow, medium, "medium severity finding")
	printCount(w, yellow, low, "low severity finding")

	if len(fs) == 0 {
		fmt.Fprintln(w)
		green.Fprintln(w, "  No defects detected.")
	}

	for _, f := range fs {
		fmt.Fprintln(w)
		printFinding(w, f)
	}

	if len(ds) > 0 {
		fmt.Fprintln(w)
		bold.Fprintln(w, "  Diagnostics")
		fmt.Fprintln(w)
		for _, d := range ds {
			printDiagnostic(w, d)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, separator)
	dim.Fprintf(w, "  Analyzed %d functions in %d files · %v\n",
		sum.Functions, sum.FilesAnalyzed, sum.Duration.Round(1000000))
	fmt.Fprintln(w)
	return nil
}

func printCount(w io.Writer, hot *color.Color, n int, noun string) {
	if n > 0 {
		hot.Fprintf(w, "  %s\n", pluralize(n, noun))
	} else {
		green.Fprintf(w, "  %s\n", pluralize(n, noun))
	}
}

func printFinding(w io.Writer, f findings.Finding) {
	switch f.Severity {
	case findings.SeverityHigh:
		red.Fprintf(w, "● %s", kindLabel(f.Kind))
	case findings.SeverityMedium:
		yellow.Fprintf(w, "● %s", kindLabel(f.Kind))
	default:
		cyan.Fprintf(w, "● %s", kindLabel(f.Kind))
	}
	dim.Fprintf(w, "  (%s)\n", f.Severity)

	fmt.Fprintf(w, "  %s:%d in ", f.File, f.Line)
	cyan.Fprintf(w, "%s\n", f.Function)
	fmt.Fprintf(w, "  %s\n", f.Message)

	if f.Lock != "" {
		fmt.Fprintf(w, "  Lock: ")
		cyan.Fprintf(w, "%s\n", f.Lock)
	}
	if len(f.LockCycle) > 0 {
		fmt.Fprintf(w, "  Cycle: ")
		cyan.Fprintf(w, "%s\n", strings.Join(f.LockCycle, " -> "))
	}
	if len(f.Cycle) > 0 {
		dim.Fprintf(w, "  Via: %s\n", strings.Join(f.Cycle, ", "))
	}
	if len(f.Candidates) > 0 {
		dim.Fprintf(w, "  Candidates: %s\n", strings.Join(f.Candidates, ", "))
	}
}

func printDiagnostic(w io.Writer, d findings.Diagnostic) {
	yellow.Fprintf(w, "  ▲ %s", d.Kind)
	fmt.Fprintf(w, "  %s:%d", d.File, d.Line)
	if d.Function != "" {
		fmt.Fprintf(w, " in %s", d.Function)
	}
	fmt.Fprintln(w)
	dim.Fprintf(w, "    %s\n", d.Message)
}

// kindLabel turns a finding kind into its display heading.
func kindLabel(k findings.Kind) string {
	return strings.ToUpper(strings.ReplaceAll(string(k), "_", " "))
}

func countSeverity(fs []findings.Finding, sev findings.Severity) int {
	n := 0
	for _, f := range fs {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
