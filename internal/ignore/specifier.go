package ignore

import (
	"path"
	"strings"
)

// DefaultSpecifiers are import specifiers that never take part in
// evaluation: assets a bundler loads, not code.
var DefaultSpecifiers = []string{
	"*.css", "*.scss", "*.sass", "*.less",
	"*.svg", "*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.avif", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.eot",
}

// Specifiers decides which import specifiers are replaced by an empty
// module instead of being resolved and evaluated.
type Specifiers struct {
	rules []rule
}

// NewSpecifiers builds a specifier matcher. Rules follow the same syntax as
// file rules; "!" re-includes and the last matching rule wins.
func NewSpecifiers(userRules []string) *Specifiers {
	all := make([]string, 0, len(DefaultSpecifiers)+len(userRules))
	all = append(all, DefaultSpecifiers...)
	all = append(all, userRules...)

	rules := make([]rule, 0, len(all))
	for _, line := range all {
		if parsed, ok := parseSpecifierRule(line); ok {
			rules = append(rules, parsed)
		}
	}
	return &Specifiers{rules: rules}
}

// ShouldIgnore reports whether specifier is stubbed.
func (s *Specifiers) ShouldIgnore(specifier string) bool {
	specifier = strings.TrimSpace(specifier)
	if specifier == "" {
		return false
	}
	if idx := strings.IndexAny(specifier, "?#"); idx > 0 {
		specifier = specifier[:idx]
	}
	base := path.Base(specifier)

	ignored := false
	for _, rule := range s.rules {
		if matchPathPattern(rule.pattern, specifier) || (!strings.Contains(rule.pattern, "/") && matchPathPattern(rule.pattern, base)) {
			ignored = !rule.negated
		}
	}
	return ignored
}

func parseSpecifierRule(line string) (rule, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return rule{}, false
	}
	parsed := rule{}
	if strings.HasPrefix(line, "!") {
		parsed.negated = true
		line = strings.TrimSpace(strings.TrimPrefix(line, "!"))
	}
	if line == "" {
		return rule{}, false
	}
	parsed.pattern = line
	return parsed, true
}
