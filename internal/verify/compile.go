package verify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	errorHeaderPattern  = regexp.MustCompile(`error(?:\[E\d+\])?: (.+)`)
	cargoErrorPattern   = regexp.MustCompile("error: could not compile `([^`]+)`")
	warningPattern      = regexp.MustCompile(`warning: (.+)`)
	locationPattern     = regexp.MustCompile(`-->\s+([^:]+):(\d+):(\d+)`)
	processErrorPattern = regexp.MustCompile(`process didn't exit successfully: (.+)`)
	memoryErrorPattern  = regexp.MustCompile(`memory allocation of \d+ bytes failed`)
	exitStatusPattern   = regexp.MustCompile(`\(exit status: (\d+)\)`)
	verusExitPattern    = regexp.MustCompile(`Verus command completed with exit code: (\d+)`)
	resultsPattern      = regexp.MustCompile(`verification results::\s*(\d+)\s+verified,\s*(\d+)\s+errors?`)
	ansiEscapePattern   = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	timingNoteFragments = []string{"has been running for", "finished in", "check has been running", "check finished in"}
)

// splitLines strips color codes and splits text into lines without their
// terminators.
func splitLines(text string) []string {
	text = ansiEscapePattern.ReplaceAllString(text, "")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// parseTally sums every verification results line. It returns nil when
// the transcript has none.
func parseTally(lines []string) *Tally {
	var t *Tally
	for _, l := range lines {
		m := resultsPattern.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		if t == nil {
			t = &Tally{}
		}
		v, _ := strconv.Atoi(m[1])
		e, _ := strconv.Atoi(m[2])
		t.Verified += v
		t.Errors += e
	}
	return t
}

// failureKind returns the failure subtype named by a diagnostic header.
func failureKind(line string) (Kind, bool) {
	for _, f := range failureVocabulary {
		if strings.Contains(line, f.phrase) {
			return f.kind, true
		}
	}
	return "", false
}

func isErrorHeader(trimmed string) bool {
	return strings.HasPrefix(trimmed, "error:") || strings.HasPrefix(trimmed, "error[")
}

func isTimingNote(trimmed string) bool {
	if !strings.HasPrefix(trimmed, "note:") {
		return false
	}
	for _, f := range timingNoteFragments {
		if strings.Contains(trimmed, f) {
			return true
		}
	}
	return false
}

func isContinuation(trimmed string) bool {
	return strings.HasPrefix(trimmed, "|") ||
		strings.HasPrefix(trimmed, "^") ||
		strings.HasPrefix(trimmed, "=") ||
		strings.HasPrefix(trimmed, "Caused by:") ||
		strings.HasPrefix(trimmed, "(signal:") ||
		strings.Contains(trimmed, "process didn't exit successfully:") ||
		exitStatusPattern.MatchString(trimmed)
}

// compileParser accumulates compiler diagnostics line by line. At most one
// error and one warning are open at a time; a blank line closes both.
type compileParser struct {
	haveResults bool

	errors   []VerificationError
	warnings []VerificationError
	curErr   *VerificationError
	curWarn  *VerificationError
}

// parseCompilation extracts compiler errors and warnings. Verifier failure
// headers are left to the failure scanner.
func parseCompilation(lines []string, haveResults bool) (errs, warns []VerificationError) {
	p := &compileParser{haveResults: haveResults}
	for _, l := range lines {
		p.feed(strings.TrimSpace(l))
	}
	p.closeError()
	p.closeWarning()
	return p.errors, p.warnings
}

func newDiagnostic(kind Kind, message, line string) *VerificationError {
	return &VerificationError{Kind: kind, Message: message, Context: []string{line}}
}

func (p *compileParser) closeError() {
	if p.curErr != nil {
		p.errors = append(p.errors, *p.curErr)
		p.curErr = nil
	}
}

func (p *compileParser) closeWarning() {
	if p.curWarn != nil {
		p.warnings = append(p.warnings, *p.curWarn)
		p.curWarn = nil
	}
}

// extend appends line to the open error, or opens a new one with message.
func (p *compileParser) extend(line, suffix, message string) {
	if p.curErr != nil {
		p.curErr.Context = append(p.curErr.Context, line)
		p.curErr.Message += suffix
		return
	}
	p.curErr = newDiagnostic(KindCompilationError, message, line)
}

func (p *compileParser) feed(line string) {
	if resultsPattern.MatchString(line) {
		return
	}

	if m := cargoErrorPattern.FindStringSubmatch(line); m != nil {
		if p.haveResults {
			return
		}
		p.closeError()
		p.curErr = newDiagnostic(KindCompilationError, "compilation failed for crate: "+m[1], line)
		return
	}

	if memoryErrorPattern.MatchString(line) {
		if p.curErr != nil {
			p.extend(line, " - "+line, "")
			return
		}
		p.errors = append(p.errors, *newDiagnostic(KindCompilationError, line, line))
		return
	}

	if m := verusExitPattern.FindStringSubmatch(line); m != nil {
		p.extend(line, fmt.Sprintf(" (exit code: %s)", m[1]), "verus command failed with exit code "+m[1])
		return
	}

	if m := processErrorPattern.FindStringSubmatch(line); m != nil {
		p.extend(line, " - "+m[1], "process execution failed: "+m[1])
		return
	}

	if m := errorHeaderPattern.FindStringSubmatch(line); m != nil {
		if _, ok := failureKind(line); ok || strings.HasPrefix(m[1], "aborting due to") {
			p.closeError()
			p.closeWarning()
			return
		}
		p.closeError()
		p.curErr = newDiagnostic(KindCompilationError, strings.TrimSpace(m[1]), line)
		return
	}

	if m := warningPattern.FindStringSubmatch(line); m != nil {
		p.closeWarning()
		p.curWarn = newDiagnostic(KindCompilationWarning, strings.TrimSpace(m[1]), line)
		return
	}

	if m := locationPattern.FindStringSubmatch(line); m != nil {
		target := p.curErr
		if target == nil {
			target = p.curWarn
		}
		if target == nil {
			return
		}
		if target.File == "" {
			target.File = strings.TrimSpace(m[1])
			target.Line, _ = strconv.Atoi(m[2])
			target.Column, _ = strconv.Atoi(m[3])
		}
		target.Context = append(target.Context, line)
		return
	}

	switch {
	case isContinuation(line):
		if p.curErr != nil {
			p.curErr.Context = append(p.curErr.Context, line)
			if strings.HasPrefix(line, "Caused by:") || strings.Contains(line, "(signal:") {
				p.curErr.Message += " - " + line
			}
			if m := exitStatusPattern.FindStringSubmatch(line); m != nil {
				p.curErr.Message += " (exit status: " + m[1] + ")"
			}
		} else if p.curWarn != nil {
			p.curWarn.Context = append(p.curWarn.Context, line)
		}
	case line == "":
		p.closeError()
		p.closeWarning()
	}
}
