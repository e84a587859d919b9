package gitcapture

import "strings"

// excludePatterns are substrings that, if found in a commit message
// (case-insensitively), disqualify it regardless of keyword matches.
var excludePatterns = []string{
	"fixup!", "wip", "typo", "format", "ran tests", "run tests",
	"updated readme", "update readme", "squash", "lint",
	"formatting", "temporary", "experiment", "debugging", "debug trace",
}

// DefaultCategories is the spec's default keyword category set. A category
// name maps to the set of case-insensitive keywords that, if any appears in
// the commit message, make the commit relevant for that category.
var DefaultCategories = map[string][]string{
	"decisions": {
		"decided", "chose", "selected", "alternative", "option",
		"rejected", "tradeoff", "instead of", "rather than",
	},
	"architecture": {
		"design", "structure", "pattern", "component", "interface",
		"layer", "module", "refactor", "architecture",
	},
	"bugs": {
		"fix", "bug", "error", "issue", "crash", "regression",
		"root cause", "workaround", "patch",
	},
	"dependencies": {
		"add", "install", "upgrade", "remove", "dependency",
		"library", "package", "version", "migrate",
	},
}

// Filter decides commit-message relevance per 4.E: not excluded, and
// matching at least one keyword from the enabled categories. An empty or
// nil enabledCategories set falls back to DefaultCategories, as does a set
// that names no category present in DefaultCategories ("misconfigured
// category sets silently fall back to defaults").
type Filter struct {
	categories map[string][]string
}

// NewFilter builds a Filter restricted to enabledCategories (keys of
// DefaultCategories). Pass nil or empty to enable all default categories.
func NewFilter(enabledCategories []string) Filter {
	if len(enabledCategories) == 0 {
		return Filter{categories: DefaultCategories}
	}

	selected := make(map[string][]string, len(enabledCategories))

	for _, name := range enabledCategories {
		if keywords, ok := DefaultCategories[name]; ok {
			selected[name] = keywords
		}
	}

	if len(selected) == 0 {
		return Filter{categories: DefaultCategories}
	}

	return Filter{categories: selected}
}

// IsRelevant reports whether message passes the exclude-pattern gate and
// matches at least one keyword from the filter's enabled categories.
func (f Filter) IsRelevant(message string) bool {
	lower := strings.ToLower(message)

	for _, pattern := range excludePatterns {
		if strings.Contains(lower, pattern) {
			return false
		}
	}

	for _, keywords := range f.categories {
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				return true
			}
		}
	}

	return false
}
