// Package findings defines the structured output of an analysis run: defect
// findings, their severities, and the non-finding diagnostics (builder
// failures and resolution gaps). Findings are immutable once emitted and
// carry enough structure for a reporter to render a message without
// re-deriving analysis state.
package findings

import "sort"

// Kind enumerates the defect kinds the analyzers produce.
type Kind string

const (
	DoubleAcquire         Kind = "double_acquire"
	UnbalancedRelease     Kind = "unbalanced_release"
	InconsistentLockState Kind = "inconsistent_lock_state"
	LockLeak              Kind = "lock_leak"
	BlockingWhileHeld     Kind = "blocking_while_held"
	DeadlockCycle         Kind = "deadlock_cycle"
	UnsafeCopy            Kind = "unsafe_copy"
	IntegerOverflowAlloc  Kind = "integer_overflow_alloc"
	FormatStringInjection Kind = "format_string_injection"
	ToctouRace            Kind = "toctou_race"
)

// Severity is the reporting tier of a finding.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

var severityRank = map[Severity]int{SeverityLow: 0, SeverityMedium: 1, SeverityHigh: 2}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Finding is one reported defect.
type Finding struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Function string   `json:"function"`
	File     string   `json:"file,omitempty"`
	Line     int      `json:"line"`
	Node     int      `json:"node"` // CFG node ID within the function
	Message  string   `json:"message"`

	// Structured detail, populated per kind.
	Lock       string   `json:"lock,omitempty"`       // lock discipline kinds
	Callee     string   `json:"callee,omitempty"`     // call-site kinds
	Candidates []string `json:"candidates,omitempty"` // ambiguous-call context
	Cycle      []string `json:"cycle,omitempty"`      // deadlock: function cycle
	LockCycle  []string `json:"lock_cycle,omitempty"` // deadlock: lock cycle
}

// DiagnosticKind enumerates non-finding diagnostics.
type DiagnosticKind string

const (
	MalformedProgram     DiagnosticKind = "malformed_program"
	UnsupportedConstruct DiagnosticKind = "unsupported_construct"
	UnresolvedCall       DiagnosticKind = "unresolved_call"
	AmbiguousCall        DiagnosticKind = "ambiguous_call"
)

// Diagnostic records a builder failure or a resolution gap. Builder failures
// exclude their function from further passes; resolution gaps are metadata
// that downstream passes consult conservatively. Neither is ever a Finding.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	Function string         `json:"function"`
	File     string         `json:"file,omitempty"`
	Line     int            `json:"line"`
	Message  string         `json:"message"`
}

// Fatal reports whether the diagnostic excluded its function from analysis.
func (d Diagnostic) Fatal() bool {
	return d.Kind == MalformedProgram || d.Kind == UnsupportedConstruct
}

// Sort orders findings deterministically: file, function, line, kind, lock.
// Repeated runs over unchanged input produce byte-identical sequences.
func Sort(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Function != b.Function {
			return a.Function < b.Function
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Lock < b.Lock
	})
}

// SortDiagnostics orders diagnostics the same way findings are ordered.
func SortDiagnostics(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Function != b.Function {
			return a.Function < b.Function
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Kind < b.Kind
	})
}
