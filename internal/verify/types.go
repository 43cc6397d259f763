// Package verify parses verifier transcripts and maps their diagnostics
// onto the functions that produced them.
package verify

import (
	"errors"

	"verimap/internal/graph"
)

// ErrEmptyTranscript is returned when there is nothing to analyze.
var ErrEmptyTranscript = errors.New("empty verification transcript")

// Kind classifies a diagnostic.
type Kind string

const (
	KindCompilationError   Kind = "compilation_error"
	KindCompilationWarning Kind = "compilation_warning"

	KindAssertionFailed        Kind = "assertion_failed"
	KindPostconditionFailed    Kind = "postcondition_not_satisfied"
	KindPreconditionFailed     Kind = "precondition_not_satisfied"
	KindInvariantNotPreserved  Kind = "loop_invariant_not_preserved"
	KindInvariantFailedOnEntry Kind = "loop_invariant_not_satisfied_on_entry"
	KindAssertionNotSatisfied  Kind = "assertion_not_satisfied"
)

// failureVocabulary maps the verifier's failure phrases to kinds.
var failureVocabulary = []struct {
	phrase string
	kind   Kind
}{
	{"assertion failed", KindAssertionFailed},
	{"postcondition not satisfied", KindPostconditionFailed},
	{"precondition not satisfied", KindPreconditionFailed},
	{"loop invariant not preserved", KindInvariantNotPreserved},
	{"loop invariant not satisfied on entry", KindInvariantFailedOnEntry},
	{"assertion not satisfied", KindAssertionNotSatisfied},
}

// IsFailure reports whether k is a verification-failure subtype.
func (k Kind) IsFailure() bool {
	return k != KindCompilationError && k != KindCompilationWarning && k != ""
}

// VerificationError is one diagnostic extracted from a transcript.
type VerificationError struct {
	Kind    Kind     `json:"kind"`
	File    string   `json:"file,omitempty"`
	Line    int      `json:"line,omitempty"`
	Column  int      `json:"column,omitempty"`
	Message string   `json:"message"`
	Context []string `json:"context,omitempty"`

	// Function is the display name of the innermost function whose span
	// contains the location, and FunctionFile its indexed file.
	Function     string `json:"function,omitempty"`
	FunctionFile string `json:"function-file,omitempty"`
	FunctionLine int    `json:"function-line,omitempty"`
}

// Located reports whether the diagnostic carries a source location.
func (e *VerificationError) Located() bool {
	return e.File != "" && e.Line > 0
}

// Status is the overall outcome of a verifier run.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusVerificationFailed Status = "verification_failed"
	StatusCompilationFailed  Status = "compilation_failed"
)

// Category is the verdict for one specified function.
type Category string

const (
	CategoryVerified   Category = "verified"
	CategoryFailed     Category = "failed"
	CategoryUnverified Category = "unverified"
)

// FunctionVerdict is the categorization of one function carrying a
// precondition or postcondition, with the errors mapped into its span.
type FunctionVerdict struct {
	DisplayName string              `json:"display-name"`
	CodeName    string              `json:"code-name,omitempty"`
	CodePath    string              `json:"code-path"`
	CodeModule  string              `json:"code-module"`
	CodeText    graph.CodeText      `json:"code-text"`
	Category    Category            `json:"category"`
	Errors      []VerificationError `json:"errors,omitempty"`
}

// Tally is the verifier's own pass/fail count, summed over every summary
// line of the transcript.
type Tally struct {
	Verified int `json:"verified"`
	Errors   int `json:"errors"`
}

// Summary holds the counts of an AnalysisResult.
type Summary struct {
	TotalFunctions      int    `json:"total_functions"`
	VerifiedFunctions   int    `json:"verified_functions"`
	FailedFunctions     int    `json:"failed_functions"`
	UnverifiedFunctions int    `json:"unverified_functions"`
	VerificationErrors  int    `json:"verification_errors"`
	CompilationErrors   int    `json:"compilation_errors"`
	CompilationWarnings int    `json:"compilation_warnings"`
	UnattributedErrors  int    `json:"unattributed_errors"`
	Reported            *Tally `json:"verification_results,omitempty"`
}

// AnalysisResult is the structured outcome of analyzing one transcript.
type AnalysisResult struct {
	Status              Status              `json:"status"`
	Summary             Summary             `json:"summary"`
	CompilationErrors   []VerificationError `json:"compilation_errors"`
	CompilationWarnings []VerificationError `json:"compilation_warnings"`
	VerificationErrors  []VerificationError `json:"verification_errors"`
	Verified            []FunctionVerdict   `json:"verified_functions"`
	Failed              []FunctionVerdict   `json:"failed_functions"`
	Unverified          []FunctionVerdict   `json:"unverified_functions"`
	UnattributedErrors  []VerificationError `json:"unattributed_errors"`
}

// Verdicts returns every verdict: failed, unverified, then verified.
func (r *AnalysisResult) Verdicts() []FunctionVerdict {
	out := make([]FunctionVerdict, 0, len(r.Failed)+len(r.Unverified)+len(r.Verified))
	out = append(out, r.Failed...)
	out = append(out, r.Unverified...)
	out = append(out, r.Verified...)
	return out
}
