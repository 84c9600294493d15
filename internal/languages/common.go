package languages

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

func splitQualifiedName(raw string) (qualifier, name string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	if idx := strings.LastIndex(raw, "."); idx != -1 {
		qualifier = strings.TrimSpace(raw[:idx])
		name = strings.TrimSpace(raw[idx+1:])
		return qualifier, name
	}
	return "", raw
}

// unquote strips JS string quotes; raw identifiers pass through unchanged.
func unquote(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 {
		return raw
	}
	first, last := raw[0], raw[len(raw)-1]
	if (first != '"' && first != '\'' && first != '`') || first != last {
		return raw
	}
	if first == '"' {
		if s, err := strconv.Unquote(raw); err == nil {
			return s
		}
	}
	return raw[1 : len(raw)-1]
}

func clip(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}

func hasChildOfType(node *sitter.Node, kind string) bool {
	return firstChildOfType(node, kind) != nil
}

func firstChildOfType(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if child := node.Child(i); child.Type() == kind {
			return child
		}
	}
	return nil
}

func lastNamedOfType(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
		if child := node.NamedChild(i); child.Type() == kind {
			return child
		}
	}
	return nil
}

func lastNamedChild(node *sitter.Node) *sitter.Node {
	if node == nil || node.NamedChildCount() == 0 {
		return nil
	}
	return node.NamedChild(int(node.NamedChildCount()) - 1)
}
