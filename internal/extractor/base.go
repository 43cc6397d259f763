package extractor

// Kind is the declared flavor of a function-like item.
type Kind string

const (
	KindOrdinary Kind = "ordinary"
	KindSpec     Kind = "spec"
	KindProof    Kind = "proof"
	KindExec     Kind = "exec"
	KindConst    Kind = "const"
)

// Mode maps the kind onto the verifier's three modes.
func (k Kind) Mode() string {
	switch k {
	case KindSpec:
		return "spec"
	case KindProof:
		return "proof"
	default:
		return "exec"
	}
}

// Context records where a function is declared.
type Context string

const (
	ContextStandalone Context = "standalone"
	ContextImpl       Context = "impl"
	ContextTrait      Context = "trait"
)

// Position is a source position: 1-based line, 0-based byte column.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Before reports whether p sorts strictly before o.
func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Column < o.Column
}

// ClauseSpan is the source range of a requires or ensures clause, keyword
// included. End is exclusive.
type ClauseSpan struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Contains reports whether pos lies inside the clause.
func (c *ClauseSpan) Contains(pos Position) bool {
	if c == nil {
		return false
	}
	return !pos.Before(c.Start) && pos.Before(c.End)
}

// CallRef is a call found inside a specification clause.
type CallRef struct {
	Name     string `json:"name"`
	FullPath string `json:"full-path"`
	Method   bool   `json:"method,omitempty"`
}

// FunctionEntity is one function-like definition found in the source tree.
// Entities are created once per indexing pass and never mutated afterwards.
type FunctionEntity struct {
	QualifiedPath string  `json:"qualified-path"`
	Name          string  `json:"display-name"`
	Kind          Kind    `json:"kind"`
	Visibility    string  `json:"visibility"`
	File          string  `json:"file"`
	ModulePath    string  `json:"module-path"`
	StartLine     int     `json:"start-line"`
	EndLine       int     `json:"end-line"`
	Context       Context `json:"context"`
	SelfType      string  `json:"self-type,omitempty"`
	TraitName     string  `json:"trait,omitempty"`

	Signature   string `json:"signature,omitempty"`
	Description string `json:"description,omitempty"`
	ContentHash string `json:"content-hash"`

	HasRequires          bool `json:"has-requires"`
	HasEnsures           bool `json:"has-ensures"`
	HasDecreases         bool `json:"has-decreases,omitempty"`
	HasTrustedAssumption bool `json:"has-trusted-assumption,omitempty"`

	Requires      *ClauseSpan `json:"requires-span,omitempty"`
	Ensures       *ClauseSpan `json:"ensures-span,omitempty"`
	RequiresText  string      `json:"requires-text,omitempty"`
	EnsuresText   string      `json:"ensures-text,omitempty"`
	RequiresCalls []CallRef   `json:"requires-calls,omitempty"`
	EnsuresCalls  []CallRef   `json:"ensures-calls,omitempty"`
}

// Specified reports whether the function carries a precondition or a
// postcondition.
func (e *FunctionEntity) Specified() bool {
	return e.HasRequires || e.HasEnsures
}

// Contains reports whether line falls inside the entity's span.
func (e *FunctionEntity) Contains(line int) bool {
	return e.StartLine <= line && line <= e.EndLine
}

// Mode is shorthand for e.Kind.Mode().
func (e *FunctionEntity) Mode() string {
	return e.Kind.Mode()
}

// Clause classifies a position inside the function as falling in the
// requires clause, the ensures clause, or neither ("").
func (e *FunctionEntity) Clause(pos Position) string {
	switch {
	case e.Requires.Contains(pos):
		return "requires"
	case e.Ensures.Contains(pos):
		return "ensures"
	}
	return ""
}
