// Package taxonomy labels specified functions with rules read from TOML.
package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"verimap/internal/extractor"
)

//go:embed default.toml
var defaultRules string

// Config is the top-level document; rules live under `[taxonomy]`.
type Config struct {
	Taxonomy Root `toml:"taxonomy"`
}

// Root holds the rule set.
type Root struct {
	Version string `toml:"version"`
	// StopWords are call names dropped from the clause call lists before
	// any rule is evaluated.
	StopWords []string `toml:"stop_words"`
	Rules     []Rule   `toml:"rules"`
}

// Rule labels every function matching all of its criteria.
type Rule struct {
	Label       string   `toml:"label"`
	Description string   `toml:"description"`
	Trust       string   `toml:"trust"`
	Match       Criteria `toml:"match"`
}

// Criteria are ANDed together; within a list any element may match.
// Unset criteria are not checked.
type Criteria struct {
	Mode                       []string `toml:"mode"`
	Context                    []string `toml:"context"`
	NameContains               []string `toml:"name_contains"`
	PathContains               []string `toml:"path_contains"`
	EnsuresCallsContain        []string `toml:"ensures_calls_contain"`
	RequiresCallsContain       []string `toml:"requires_calls_contain"`
	EnsuresCallsFullContain    []string `toml:"ensures_calls_full_contain"`
	RequiresCallsFullContain   []string `toml:"requires_calls_full_contain"`
	EnsuresFnCallsContain      []string `toml:"ensures_fn_calls_contain"`
	EnsuresMethodCallsContain  []string `toml:"ensures_method_calls_contain"`
	RequiresFnCallsContain     []string `toml:"requires_fn_calls_contain"`
	RequiresMethodCallsContain []string `toml:"requires_method_calls_contain"`

	HasEnsures           *bool `toml:"has_ensures"`
	HasRequires          *bool `toml:"has_requires"`
	HasDecreases         *bool `toml:"has_decreases"`
	HasTrustedAssumption *bool `toml:"has_trusted_assumption"`
	EnsuresCallsEmpty    *bool `toml:"ensures_calls_empty"`
	RequiresCallsEmpty   *bool `toml:"requires_calls_empty"`
}

// Taxonomy is a loaded, validated rule set.
type Taxonomy struct {
	Version string
	Rules   []Rule
	stop    map[string]bool
}

// Load reads a rule set from a TOML file.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy config: %w", err)
	}
	t, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Default returns the built-in rule set.
func Default() *Taxonomy {
	t, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("taxonomy: built-in rules: %v", err))
	}
	return t
}

// Parse decodes a rule set. Unknown keys are rejected so that a misspelt
// criterion does not silently match everything.
func Parse(doc string) (*Taxonomy, error) {
	var cfg Config
	md, err := toml.Decode(doc, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse taxonomy config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown taxonomy keys: %s", strings.Join(keys, ", "))
	}
	seen := make(map[string]bool)
	for i, r := range cfg.Taxonomy.Rules {
		if r.Label == "" {
			return nil, fmt.Errorf("taxonomy rule %d has no label", i+1)
		}
		if seen[r.Label] {
			return nil, fmt.Errorf("duplicate taxonomy label %q", r.Label)
		}
		seen[r.Label] = true
	}

	t := &Taxonomy{
		Version: cfg.Taxonomy.Version,
		Rules:   cfg.Taxonomy.Rules,
		stop:    make(map[string]bool),
	}
	for _, w := range cfg.Taxonomy.StopWords {
		t.stop[w] = true
	}
	return t, nil
}

// Check is the outcome of one criterion.
type Check struct {
	Criterion string
	Passed    bool
}

// Explanation reports every criterion of one rule against one function.
type Explanation struct {
	Label   string
	Matched bool
	Checks  []Check
}

// Failed returns the criteria that did not pass.
func (e Explanation) Failed() []string {
	var out []string
	for _, c := range e.Checks {
		if !c.Passed {
			out = append(out, c.Criterion)
		}
	}
	return out
}

// Classify returns the labels of every rule the function matches, in rule
// order.
func (t *Taxonomy) Classify(e *extractor.FunctionEntity) []string {
	var labels []string
	for _, ex := range t.Explain(e) {
		if ex.Matched {
			labels = append(labels, ex.Label)
		}
	}
	return labels
}

// Explain evaluates every rule against the function.
func (t *Taxonomy) Explain(e *extractor.FunctionEntity) []Explanation {
	f := t.factsOf(e)
	out := make([]Explanation, 0, len(t.Rules))
	for _, r := range t.Rules {
		checks := r.Match.evaluate(f)
		matched := true
		for _, c := range checks {
			matched = matched && c.Passed
		}
		out = append(out, Explanation{Label: r.Label, Matched: matched, Checks: checks})
	}
	return out
}

// facts is the view of a function the criteria read.
type facts struct {
	mode, context, name, path string

	ensures, requires []extractor.CallRef

	hasEnsures, hasRequires, hasDecreases, hasTrusted bool
}

func (t *Taxonomy) factsOf(e *extractor.FunctionEntity) facts {
	return facts{
		mode:         e.Mode(),
		context:      string(e.Context),
		name:         e.Name,
		path:         e.File,
		ensures:      t.dropStopWords(e.EnsuresCalls),
		requires:     t.dropStopWords(e.RequiresCalls),
		hasEnsures:   e.HasEnsures,
		hasRequires:  e.HasRequires,
		hasDecreases: e.HasDecreases,
		hasTrusted:   e.HasTrustedAssumption,
	}
}

func (t *Taxonomy) dropStopWords(calls []extractor.CallRef) []extractor.CallRef {
	if len(t.stop) == 0 {
		return calls
	}
	var out []extractor.CallRef
	for _, c := range calls {
		if !t.stop[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

func callNames(calls []extractor.CallRef, full bool, keep func(extractor.CallRef) bool) []string {
	var out []string
	for _, c := range calls {
		if keep != nil && !keep(c) {
			continue
		}
		if full {
			out = append(out, c.FullPath)
		} else {
			out = append(out, c.Name)
		}
	}
	return out
}

func isMethod(c extractor.CallRef) bool   { return c.Method }
func isFunction(c extractor.CallRef) bool { return !c.Method }

func anyContains(values, patterns []string) bool {
	for _, v := range values {
		for _, p := range patterns {
			if strings.Contains(v, p) {
				return true
			}
		}
	}
	return false
}

func oneOf(value string, options []string) bool {
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}

// evaluate runs every set criterion in declaration order.
func (c *Criteria) evaluate(f facts) []Check {
	var out []Check
	list := func(key string, patterns []string, pass func([]string) bool) {
		if patterns != nil {
			out = append(out, Check{Criterion: fmt.Sprintf("%s=%q", key, patterns), Passed: pass(patterns)})
		}
	}
	flag := func(key string, want *bool, got bool) {
		if want != nil {
			out = append(out, Check{Criterion: fmt.Sprintf("%s=%t", key, *want), Passed: got == *want})
		}
	}
	contains := func(values []string) func([]string) bool {
		return func(p []string) bool { return anyContains(values, p) }
	}

	list("mode", c.Mode, func(p []string) bool { return oneOf(f.mode, p) })
	list("context", c.Context, func(p []string) bool { return oneOf(f.context, p) })
	list("name_contains", c.NameContains, contains([]string{f.name}))
	list("path_contains", c.PathContains, contains([]string{f.path}))
	list("ensures_calls_contain", c.EnsuresCallsContain, contains(callNames(f.ensures, false, nil)))
	list("requires_calls_contain", c.RequiresCallsContain, contains(callNames(f.requires, false, nil)))
	list("ensures_calls_full_contain", c.EnsuresCallsFullContain, contains(callNames(f.ensures, true, nil)))
	list("requires_calls_full_contain", c.RequiresCallsFullContain, contains(callNames(f.requires, true, nil)))
	list("ensures_fn_calls_contain", c.EnsuresFnCallsContain, contains(callNames(f.ensures, false, isFunction)))
	list("ensures_method_calls_contain", c.EnsuresMethodCallsContain, contains(callNames(f.ensures, false, isMethod)))
	list("requires_fn_calls_contain", c.RequiresFnCallsContain, contains(callNames(f.requires, false, isFunction)))
	list("requires_method_calls_contain", c.RequiresMethodCallsContain, contains(callNames(f.requires, false, isMethod)))

	flag("has_ensures", c.HasEnsures, f.hasEnsures)
	flag("has_requires", c.HasRequires, f.hasRequires)
	flag("has_decreases", c.HasDecreases, f.hasDecreases)
	flag("has_trusted_assumption", c.HasTrustedAssumption, f.hasTrusted)
	flag("ensures_calls_empty", c.EnsuresCallsEmpty, len(f.ensures) == 0)
	flag("requires_calls_empty", c.RequiresCallsEmpty, len(f.requires) == 0)
	return out
}

// Labels returns the rule labels in sorted order.
func (t *Taxonomy) Labels() []string {
	out := make([]string, 0, len(t.Rules))
	for _, r := range t.Rules {
		out = append(out, r.Label)
	}
	sort.Strings(out)
	return out
}
