package shaker

import (
	"strconv"
	"strings"

	"github.com/morozRed/husk/internal/parser"
)

func renderImport(bindings []parser.Binding, source string) string {
	var def, namespace string
	named := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		switch binding.Remote {
		case "default":
			def = binding.Local
		case "*":
			namespace = "* as " + binding.Local
		default:
			named = append(named, specifier(binding.Remote, binding.Local))
		}
	}

	clauses := make([]string, 0, 2)
	if def != "" {
		clauses = append(clauses, def)
	}
	if namespace != "" {
		clauses = append(clauses, namespace)
	}
	if len(named) > 0 {
		clauses = append(clauses, "{ "+strings.Join(named, ", ")+" }")
	}
	return "import " + strings.Join(clauses, ", ") + " from " + source + ";"
}

func renderExportClause(bindings []parser.Binding) string {
	specs := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		specs = append(specs, specifier(binding.Local, binding.Remote))
	}
	return "export { " + strings.Join(specs, ", ") + " };"
}

func renderReexport(bindings []parser.Binding, source string) string {
	specs := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		if binding.Remote == "*" {
			// namespace re-exports cannot share a clause
			return "export * as " + exportName(binding.Local) + " from " + source + ";"
		}
		specs = append(specs, specifier(binding.Remote, binding.Local))
	}
	return "export { " + strings.Join(specs, ", ") + " } from " + source + ";"
}

// RenderImport writes an import declaration for bindings. source is the
// quoted specifier as written in the module.
func RenderImport(bindings []parser.Binding, source string) string {
	return renderImport(bindings, source)
}

// RenderReexports writes named re-exports of source in canonical form.
func RenderReexports(names []string, source string) string {
	if len(names) == 0 {
		return "export {} from " + strconv.Quote(source) + ";"
	}
	bindings := make([]parser.Binding, 0, len(names))
	for _, name := range names {
		bindings = append(bindings, parser.Binding{Remote: name, Local: name})
	}
	return renderReexport(bindings, strconv.Quote(source))
}

func specifier(name, alias string) string {
	if name == alias {
		return exportName(name)
	}
	return exportName(name) + " as " + exportName(alias)
}

func exportName(name string) string {
	if isIdentifier(name) {
		return name
	}
	return strconv.Quote(name)
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		case r > 127:
		default:
			return false
		}
	}
	return true
}

func terminate(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasSuffix(text, ";") || strings.HasSuffix(text, "}") {
		return text
	}
	return text + ";"
}

func unquoteSource(raw string) string {
	if s, err := strconv.Unquote(raw); err == nil {
		return s
	}
	if len(raw) >= 2 && raw[0] == '\'' && raw[len(raw)-1] == '\'' {
		return raw[1 : len(raw)-1]
	}
	return raw
}
