package verify

import (
	"strconv"
	"strings"
)

// scanFailures finds verifier failure diagnostics. A failure header names
// one of the failure phrases; its location is the first `-->` annotation
// among the next contextLines lines that resolves back to the header
// within lookback lines.
func scanFailures(lines []string, lookback, contextLines int) []VerificationError {
	var out []VerificationError
	for i, raw := range lines {
		header := strings.TrimSpace(raw)
		if !isErrorHeader(header) {
			continue
		}
		kind, ok := failureKind(header)
		if !ok {
			continue
		}

		f := VerificationError{Kind: kind, Message: header}
		end := min(i+contextLines, len(lines))
		locAt := -1
		for j := i; j < end; j++ {
			if j > i && isErrorHeader(strings.TrimSpace(lines[j])) {
				break
			}
			if locAt >= 0 && j > locAt+1 && closesDiagnostic(lines, j) {
				break
			}
			f.Context = append(f.Context, strings.TrimRight(lines[j], " \t"))
			if locAt >= 0 || j == i {
				continue
			}
			m := locationPattern.FindStringSubmatch(lines[j])
			if m == nil || headerFor(lines, j, lookback) != i {
				continue
			}
			locAt = j
			f.File = strings.TrimSpace(m[1])
			f.Line, _ = strconv.Atoi(m[2])
			f.Column, _ = strconv.Atoi(m[3])
		}
		f.Context = trimBlank(f.Context)
		out = append(out, f)
	}
	return out
}

// headerFor walks back from the location annotation at loc and returns the
// index of the error header it belongs to, or -1. A warning header, a
// timing note, or running out of the window rejects the annotation;
// ordinary notes and help lines are skipped.
func headerFor(lines []string, loc, lookback int) int {
	for j := loc - 1; j >= 0 && j >= loc-lookback; j-- {
		prev := strings.TrimSpace(lines[j])
		switch {
		case isErrorHeader(prev):
			return j
		case strings.HasPrefix(prev, "warning:"), isTimingNote(prev):
			return -1
		}
	}
	return -1
}

// closesDiagnostic reports a blank line followed by the start of another
// diagnostic or the results summary.
func closesDiagnostic(lines []string, j int) bool {
	if strings.TrimSpace(lines[j]) != "" || j+1 >= len(lines) {
		return false
	}
	next := strings.TrimSpace(lines[j+1])
	return strings.HasPrefix(next, "error") ||
		strings.HasPrefix(next, "warning:") ||
		strings.HasPrefix(next, "verification results") ||
		strings.HasPrefix(next, "note:")
}

func trimBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
