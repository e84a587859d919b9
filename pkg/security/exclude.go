package security

import (
	"path/filepath"
	"strings"
)

// defaultExclusionPatterns are matched conservatively: when in doubt, skip
// the file rather than risk sending it to an LLM.
var defaultExclusionPatterns = []string{
	".env", ".env.*", "*.env",
	"*secret*", "*credential*", "*password*", "*token*",
	"*.key", "*.pem", "*.p12", "*.pfx", "*.jks",
	"node_modules/", ".git/", "venv/", ".venv/", "__pycache__/",
	"tests/", "test/", "**/test_*.", "**/*_test.",
	"fixtures/", "mocks/", "dist/", "build/", "*.egg-info/",
}

// Excluder decides whether a file path should be excluded from capture.
type Excluder struct {
	patterns []string
}

// NewExcluder builds an Excluder from the default pattern list.
func NewExcluder() *Excluder {
	return &Excluder{patterns: append([]string(nil), defaultExclusionPatterns...)}
}

// NewExcluderWithPatterns builds an Excluder from a caller-supplied pattern
// list, replacing the defaults entirely.
func NewExcluderWithPatterns(patterns []string) *Excluder {
	return &Excluder{patterns: append([]string(nil), patterns...)}
}

// CheckExcluded resolves symlinks (a resolution failure is treated as
// excluded) and matches the resolved path against the pattern list.
// Directory patterns (trailing "/") match if any path component equals the
// pattern name; file patterns are glob-matched against the base name.
func (e *Excluder) CheckExcluded(path string, resolver SymlinkResolver) (bool, string) {
	resolved, err := resolver.Resolve(path)
	if err != nil {
		return true, ""
	}

	for _, pattern := range e.patterns {
		if strings.HasSuffix(pattern, "/") {
			dirName := strings.TrimSuffix(pattern, "/")
			if matchesAnyComponent(resolved, dirName) {
				return true, pattern
			}

			continue
		}

		if matchesGlobPattern(resolved, pattern) {
			return true, pattern
		}
	}

	return false, ""
}

// SymlinkResolver resolves a path to its final target. Production code
// passes filepath.EvalSymlinks; tests can stub failure/resolution behavior.
type SymlinkResolver interface {
	Resolve(path string) (string, error)
}

// EvalSymlinksResolver resolves via filepath.EvalSymlinks.
type EvalSymlinksResolver struct{}

// Resolve implements SymlinkResolver.
func (EvalSymlinksResolver) Resolve(path string) (string, error) {
	return filepath.EvalSymlinks(path)
}

func matchesAnyComponent(path, name string) bool {
	for _, component := range strings.Split(filepath.ToSlash(path), "/") {
		if component == name {
			return true
		}
	}

	return false
}

func matchesGlobPattern(path, pattern string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(pattern, "**/") {
		pattern = strings.TrimPrefix(pattern, "**/")
	}

	matched, err := filepath.Match(pattern, base)
	if err == nil && matched {
		return true
	}

	// filepath.Match does not support a trailing "." meaning "any suffix",
	// which the "**/test_*." / "**/*_test." patterns rely on (they mean
	// "starts/ends with this stem, any extension").
	if strings.HasSuffix(pattern, ".") {
		stem := strings.TrimSuffix(pattern, ".")
		if ok, _ := filepath.Match(stem+"*", base); ok {
			return true
		}
	}

	return false
}
