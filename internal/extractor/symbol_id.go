package extractor

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"verimap/internal/locate"
	"verimap/internal/rusttype"
)

// ModulePathFromFile derives the crate-relative module path of a source
// file: `src/backend/serial/mod.rs` becomes `backend::serial`. Files under
// several `src/` directories use the innermost one.
func ModulePathFromFile(rel string) string {
	rel = locate.Clean(rel)
	if i := strings.LastIndex(rel, "src/"); i >= 0 && (i == 0 || rel[i-1] == '/') {
		rel = rel[i+len("src/"):]
	}
	rel = strings.TrimSuffix(rel, ".rs")
	parts := strings.Split(rel, "/")
	switch parts[len(parts)-1] {
	case "lib", "main", "mod":
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, "::")
}

// joinPath joins non-empty path segments with "::".
func joinPath(segments ...string) string {
	var kept []string
	for _, s := range segments {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "::")
}

// qualifiedPath builds module::Owner::name, where Owner is the bare self
// type for impl items and the trait name for trait items.
func qualifiedPath(sc scope, name string) string {
	owner := ""
	switch sc.ctx {
	case ContextImpl:
		owner = rusttype.Base(sc.selfType)
	case ContextTrait:
		owner = rusttype.Base(sc.trait)
	}
	return joinPath(sc.module, owner, name)
}

// contentHash fingerprints the full item text.
func contentHash(src []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(src))
}

func isDocComment(text string) bool {
	switch {
	case strings.HasPrefix(text, "////"):
		return false
	case strings.HasPrefix(text, "///"):
		return true
	case strings.HasPrefix(text, "/**") && text != "/**/":
		return true
	}
	return false
}

func cleanDocComment(lines []string) string {
	var cleaned []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "///")
		l = strings.TrimPrefix(l, "/**")
		l = strings.TrimSuffix(l, "*/")
		cleaned = append(cleaned, strings.TrimSpace(l))
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// lastPathSegment returns the final `::` segment of a macro or type path.
func lastPathSegment(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.LastIndex(p, "::"); i >= 0 {
		return p[i+2:]
	}
	return p
}
