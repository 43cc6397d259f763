package analysis

import (
	"fmt"
	"sort"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// ChangedFile is one file touched by a diff. Lines are new-side line
// numbers: added lines plus, for every run of removed lines, the line that
// now sits where the removal happened.
type ChangedFile struct {
	Path    string
	Lines   []int
	New     bool
	Deleted bool
}

// ParseDiff reads a unified multi-file diff.
func ParseDiff(data []byte) ([]ChangedFile, error) {
	fds, err := godiff.ParseMultiFileDiff(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	var out []ChangedFile
	for _, fd := range fds {
		oldPath, newPath := cleanPath(fd.OrigName), cleanPath(fd.NewName)
		cf := ChangedFile{Path: newPath}
		switch {
		case newPath == "":
			cf.Path = oldPath
			cf.Deleted = true
		case oldPath == "":
			cf.New = true
		}
		if cf.Path == "" {
			continue
		}

		lines := make(map[int]bool)
		for _, h := range fd.Hunks {
			walkHunk(h, lines)
		}
		for l := range lines {
			cf.Lines = append(cf.Lines, l)
		}
		sort.Ints(cf.Lines)
		out = append(out, cf)
	}
	return out, nil
}

func walkHunk(h *godiff.Hunk, lines map[int]bool) {
	newLine := int(h.NewStartLine)
	// A pure removal hunk reports the line before the removal.
	if h.NewLines == 0 {
		newLine++
	}
	removing := false
	for _, l := range strings.Split(string(h.Body), "\n") {
		if l == "" {
			continue
		}
		switch l[0] {
		case '+':
			lines[newLine] = true
			newLine++
			removing = false
		case '-':
			if !removing {
				lines[newLine] = true
			}
			removing = true
		case ' ':
			newLine++
			removing = false
		}
	}
}

// cleanPath strips the a/ and b/ prefixes git adds. /dev/null yields "".
func cleanPath(p string) string {
	if p == "/dev/null" {
		return ""
	}
	if i := strings.IndexByte(p, '\t'); i >= 0 {
		p = p[:i]
	}
	if strings.HasPrefix(p, "a/") || strings.HasPrefix(p, "b/") {
		return p[2:]
	}
	return p
}
