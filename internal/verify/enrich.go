package verify

import "verimap/internal/graph"

// Enrich sets CodeName on every verdict that matches an atom and returns
// how many did.
func Enrich(res *AnalysisResult, m *graph.AtomMatcher) int {
	n := 0
	for _, list := range [][]FunctionVerdict{res.Failed, res.Verified, res.Unverified} {
		for k := range list {
			v := &list[k]
			if atom, ok := m.Match(v.CodePath, v.DisplayName, v.CodeText.LinesStart); ok {
				v.CodeName = atom
				n++
			}
		}
	}
	return n
}

// ProofStatus is the per-atom outcome in the proofs output.
type ProofStatus string

const (
	ProofSuccess ProofStatus = "success"
	ProofFailure ProofStatus = "failure"
	ProofSorries ProofStatus = "sorries"
)

// ProofEntry is one value of the proofs output.
type ProofEntry struct {
	CodePath string      `json:"code-path"`
	CodeLine int         `json:"code-line"`
	Verified bool        `json:"verified"`
	Status   ProofStatus `json:"status"`
}

// ProofsOutput keys every matched verdict by its atom. Verdicts without a
// matching atom are left out.
func ProofsOutput(res *AnalysisResult, m *graph.AtomMatcher) map[string]ProofEntry {
	out := make(map[string]ProofEntry)
	add := func(list []FunctionVerdict, status ProofStatus) {
		for _, v := range list {
			atom, ok := m.Match(v.CodePath, v.DisplayName, v.CodeText.LinesStart)
			if !ok {
				continue
			}
			out[atom] = ProofEntry{
				CodePath: v.CodePath,
				CodeLine: v.CodeText.LinesStart,
				Verified: status == ProofSuccess,
				Status:   status,
			}
		}
	}
	add(res.Verified, ProofSuccess)
	add(res.Failed, ProofFailure)
	add(res.Unverified, ProofSorries)
	return out
}
