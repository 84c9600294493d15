package parser

import "strconv"

// StatementKind classifies a top-level module statement.
type StatementKind int

const (
	StatementOther StatementKind = iota
	StatementImport
	StatementExport
	StatementReexport
	StatementDeclaration
	StatementExpression
	StatementType
)

func (k StatementKind) String() string {
	switch k {
	case StatementImport:
		return "import"
	case StatementExport:
		return "export"
	case StatementReexport:
		return "reexport"
	case StatementDeclaration:
		return "declaration"
	case StatementExpression:
		return "expression"
	case StatementType:
		return "type"
	default:
		return "other"
	}
}

// Binding is one specifier of an import, export clause or re-export.
//
// Remote is the name on the far side of the module boundary and Local the
// name on this side. For imports Remote is the imported name ("default", "*"
// or a named export). For local export clauses Remote is the exported name.
// For re-exports Remote is the name in the source module and Local the name
// this module exports it as.
type Binding struct {
	Remote string
	Local  string
}

// Statement is one top-level statement of a module.
type Statement struct {
	Index      int
	Kind       StatementKind
	Start      uint32 // byte offset in Module.Source
	End        uint32
	Line       int
	Declares   []string // top-level bindings introduced by the statement
	References []string // identifiers read in value positions
	Bindings   []Binding
	SourceRaw  string // quoted module specifier for import/re-export statements
	Wildcard   bool   // export * from "..."
	Default    bool   // export default ...
	Exported   bool   // export <declaration>
	SideEffect bool   // may mutate state outside its own bindings when executed
	Unsafe     string // reason the statement defeats static reduction
}

// Text returns the statement source.
func (s Statement) Text(src []byte) string {
	return string(src[s.Start:s.End])
}

// Import is a single imported binding.
type Import struct {
	Stmt     int
	Source   string // unquoted specifier
	Imported string // "default", "*" or the exported name
	Local    string
}

// Export is a name exported from a local binding or expression.
type Export struct {
	Stmt     int
	Exported string
	Local    string // empty for `export default <expression>`
}

// Reexport forwards a name (or everything) from another module.
type Reexport struct {
	Stmt     int
	Source   string
	Imported string // "*" for wildcard and namespace forms
	Exported string // "*" for `export * from`
}

// DynamicImport is an `import("...")` or `require("...")` call with a
// literal specifier.
type DynamicImport struct {
	Stmt    int
	Source  string
	Require bool
}

// CallForm distinguishes tagged templates from call expressions.
type CallForm int

const (
	FormTemplate CallForm = iota
	FormCall
)

func (f CallForm) String() string {
	if f == FormCall {
		return "call"
	}
	return "template"
}

// Span is a byte range in Module.Source.
type Span struct {
	Start uint32
	End   uint32
}

// TagSite is a tagged template or call whose callee is an imported binding.
type TagSite struct {
	Stmt        int
	Span        Span
	Callee      string // local name of the imported tag
	Member      string // property for member callees such as styled.div
	Form        CallForm
	Quasis      []string // raw template chunks, len(Args)+1 for templates
	Args        []Span   // interpolations (templates) or call arguments
	ArgRefs     [][]string
	LocalRefs   []string // identifiers in Args bound by an enclosing non-module scope
	DisplayName string
	Line        int
}

// Module holds the static facts extracted from one source file.
type Module struct {
	Path           string
	Language       string
	Source         []byte
	Hash           string
	Statements     []Statement
	Imports        []Import
	Exports        []Export
	Reexports      []Reexport
	DynamicImports []DynamicImport
	Tags           []TagSite
	Identifiers    map[string]bool // every identifier spelled in the file
	CommonJS       bool            // reads module, exports or require
}

// Declarers returns the indexes of statements that declare each top-level binding.
func (m *Module) Declarers() map[string][]int {
	out := make(map[string][]int)
	for _, stmt := range m.Statements {
		for _, name := range stmt.Declares {
			out[name] = append(out[name], stmt.Index)
		}
	}
	return out
}

// ExportNames lists explicitly exported names, excluding wildcard re-exports.
func (m *Module) ExportNames() []string {
	names := make([]string, 0, len(m.Exports)+len(m.Reexports))
	for _, exp := range m.Exports {
		names = append(names, exp.Exported)
	}
	for _, re := range m.Reexports {
		if re.Exported == "*" {
			continue
		}
		names = append(names, re.Exported)
	}
	return normalizeStrings(names)
}

// ImportsFor returns the imports bound by one statement.
func (m *Module) ImportsFor(stmt int) []Import {
	out := make([]Import, 0)
	for _, imp := range m.Imports {
		if imp.Stmt == stmt {
			out = append(out, imp)
		}
	}
	return out
}

// FreshName returns base, or base with a numeric suffix, that is not spelled
// anywhere in the module and not in taken.
func (m *Module) FreshName(base string, taken map[string]bool) string {
	name := base
	for i := 2; m.Identifiers[name] || taken[name]; i++ {
		name = base + strconv.Itoa(i)
	}
	return name
}

// ParseIssue captures a syntax problem found while parsing a file.
type ParseIssue struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}
