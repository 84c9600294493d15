package languages

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/morozRed/husk/internal/parser"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TypeScriptParser implements module analysis for TypeScript/JavaScript source files
type TypeScriptParser struct {
	mu        sync.Mutex
	tsParser  *sitter.Parser
	tsxParser *sitter.Parser
	jsParser  *sitter.Parser
}

// NewTypeScriptParser creates a new TypeScript/JavaScript parser
func NewTypeScriptParser() *TypeScriptParser {
	ts := sitter.NewParser()
	ts.SetLanguage(typescript.GetLanguage())

	tsxp := sitter.NewParser()
	tsxp.SetLanguage(tsx.GetLanguage())

	js := sitter.NewParser()
	js.SetLanguage(javascript.GetLanguage())

	return &TypeScriptParser{
		tsParser:  ts,
		tsxParser: tsxp,
		jsParser:  js,
	}
}

func (t *TypeScriptParser) Language() string {
	return "typescript"
}

func (t *TypeScriptParser) Extensions() []string {
	return []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs"}
}

func (t *TypeScriptParser) Parse(filename string, content []byte) (*parser.Module, error) {
	// Choose parser based on extension
	var p *sitter.Parser
	lang := "typescript"
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		p = t.jsParser
		lang = "javascript"
	case ".tsx":
		p = t.tsxParser
	default:
		p = t.tsParser
	}

	// tree-sitter parsers are not safe for concurrent use
	t.mu.Lock()
	tree, err := p.ParseCtx(context.Background(), nil, content)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if bad := firstErrorNode(root); bad != nil {
			return nil, fmt.Errorf("%s:%d: syntax error near %q", filename, bad.StartPoint().Row+1, clip(bad.Content(content), 40))
		}
		return nil, fmt.Errorf("%s: syntax error", filename)
	}

	a := &moduleAnalyzer{
		src: content,
		module: &parser.Module{
			Path:        filename,
			Language:    lang,
			Identifiers: make(map[string]bool),
		},
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "comment", "hash_bang_line":
			continue
		}
		a.statement(child)
	}
	a.finish()

	return a.module, nil
}

type moduleAnalyzer struct {
	src        []byte
	module     *parser.Module
	candidates []parser.TagSite
}

func (a *moduleAnalyzer) statement(node *sitter.Node) {
	stmt := parser.Statement{
		Index: len(a.module.Statements),
		Kind:  parser.StatementOther,
		Start: node.StartByte(),
		End:   node.EndByte(),
		Line:  int(node.StartPoint().Row) + 1,
	}

	switch node.Type() {
	case "import_statement":
		a.importStatement(node, &stmt)

	case "export_statement":
		a.exportStatement(node, &stmt)

	case "lexical_declaration", "variable_declaration",
		"function_declaration", "generator_function_declaration",
		"class_declaration", "abstract_class_declaration", "enum_declaration":
		stmt.Kind = parser.StatementDeclaration
		a.declaration(node, &stmt)

	case "interface_declaration", "type_alias_declaration", "ambient_declaration":
		stmt.Kind = parser.StatementType

	case "expression_statement":
		if inner := node.NamedChild(0); inner != nil && (inner.Type() == "internal_module" || inner.Type() == "module") {
			stmt.Kind = parser.StatementDeclaration
			if name := inner.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
				stmt.Declares = append(stmt.Declares, name.Content(a.src))
			}
			collectRefs(inner.ChildByFieldName("body"), a.src, &stmt.References)
			break
		}
		stmt.Kind = parser.StatementExpression
		stmt.SideEffect = !isDirective(node)
		collectRefs(node, a.src, &stmt.References)

	case "empty_statement":
		stmt.Kind = parser.StatementOther

	default:
		// if/for/try/blocks and friends run unconditionally
		stmt.SideEffect = true
		collectRefs(node, a.src, &stmt.References)
	}

	if stmt.Kind != parser.StatementType {
		a.scan(node, stmt.Index, &stmt)
	}
	a.module.Statements = append(a.module.Statements, stmt)
}

func (a *moduleAnalyzer) importStatement(node *sitter.Node, stmt *parser.Statement) {
	stmt.Kind = parser.StatementImport
	source := node.ChildByFieldName("source")
	if source == nil {
		stmt.Kind = parser.StatementOther
		stmt.SideEffect = true
		return
	}
	stmt.SourceRaw = source.Content(a.src)
	specifier := unquote(stmt.SourceRaw)

	var clause *sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "type", "typeof":
			// import type { X } from "..."
			stmt.Kind = parser.StatementType
			return
		case "import_clause":
			clause = child
		}
	}
	if clause == nil {
		stmt.SideEffect = true
		return
	}

	add := func(imported, local string) {
		stmt.Bindings = append(stmt.Bindings, parser.Binding{Remote: imported, Local: local})
		stmt.Declares = append(stmt.Declares, local)
		a.module.Imports = append(a.module.Imports, parser.Import{
			Stmt:     stmt.Index,
			Source:   specifier,
			Imported: imported,
			Local:    local,
		})
	}

	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "identifier":
			add("default", child.Content(a.src))
		case "namespace_import":
			if id := lastNamedOfType(child, "identifier"); id != nil {
				add("*", id.Content(a.src))
			}
		case "named_imports":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != "import_specifier" || hasChildOfType(spec, "type") {
					continue
				}
				name := spec.ChildByFieldName("name")
				if name == nil {
					continue
				}
				imported := unquote(name.Content(a.src))
				local := imported
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					local = alias.Content(a.src)
				}
				add(imported, local)
			}
		}
	}
}

func (a *moduleAnalyzer) exportStatement(node *sitter.Node, stmt *parser.Statement) {
	if hasChildOfType(node, "type") {
		stmt.Kind = parser.StatementType
		return
	}

	decl := node.ChildByFieldName("declaration")
	value := node.ChildByFieldName("value")
	source := node.ChildByFieldName("source")
	stmt.Default = hasChildOfType(node, "default")

	switch {
	case source != nil:
		stmt.Kind = parser.StatementReexport
		stmt.SourceRaw = source.Content(a.src)
		specifier := unquote(stmt.SourceRaw)
		addReexport := func(imported, exported string) {
			stmt.Bindings = append(stmt.Bindings, parser.Binding{Remote: imported, Local: exported})
			a.module.Reexports = append(a.module.Reexports, parser.Reexport{
				Stmt:     stmt.Index,
				Source:   specifier,
				Imported: imported,
				Exported: exported,
			})
		}
		if ns := firstChildOfType(node, "namespace_export"); ns != nil {
			if nsName := lastNamedChild(ns); nsName != nil {
				addReexport("*", unquote(nsName.Content(a.src)))
			}
			return
		}
		if clause := firstChildOfType(node, "export_clause"); clause != nil {
			for _, spec := range exportSpecifiers(clause) {
				name, alias := specifierNames(spec, a.src)
				if name == "" {
					continue
				}
				addReexport(name, alias)
			}
			return
		}
		if hasChildOfType(node, "*") {
			stmt.Wildcard = true
			addReexport("*", "*")
		}

	case decl != nil:
		switch decl.Type() {
		case "interface_declaration", "type_alias_declaration", "ambient_declaration":
			stmt.Kind = parser.StatementType
			return
		}
		stmt.Kind = parser.StatementExport
		stmt.Exported = true
		a.declaration(decl, stmt)
		if stmt.Default {
			local := ""
			if len(stmt.Declares) > 0 {
				local = stmt.Declares[0]
			}
			a.module.Exports = append(a.module.Exports, parser.Export{Stmt: stmt.Index, Exported: "default", Local: local})
			return
		}
		for _, name := range stmt.Declares {
			a.module.Exports = append(a.module.Exports, parser.Export{Stmt: stmt.Index, Exported: name, Local: name})
		}

	case value != nil:
		stmt.Kind = parser.StatementExport
		stmt.Default = true
		collectRefs(value, a.src, &stmt.References)
		local := ""
		if value.Type() == "identifier" {
			local = value.Content(a.src)
		}
		a.module.Exports = append(a.module.Exports, parser.Export{Stmt: stmt.Index, Exported: "default", Local: local})

	default:
		clause := firstChildOfType(node, "export_clause")
		if clause == nil {
			stmt.SideEffect = true
			return
		}
		stmt.Kind = parser.StatementExport
		for _, spec := range exportSpecifiers(clause) {
			local, exported := specifierNames(spec, a.src)
			if local == "" {
				continue
			}
			stmt.Bindings = append(stmt.Bindings, parser.Binding{Remote: exported, Local: local})
			stmt.References = append(stmt.References, local)
			a.module.Exports = append(a.module.Exports, parser.Export{Stmt: stmt.Index, Exported: exported, Local: local})
		}
	}
}

func (a *moduleAnalyzer) declaration(node *sitter.Node, stmt *parser.Statement) {
	switch node.Type() {
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			declarator := node.NamedChild(i)
			if declarator.Type() != "variable_declarator" {
				continue
			}
			if name := declarator.ChildByFieldName("name"); name != nil {
				patternNames(name, a.src, &stmt.Declares)
				patternRefs(name, a.src, &stmt.References)
			}
			collectRefs(declarator.ChildByFieldName("value"), a.src, &stmt.References)
		}
	case "function_declaration", "generator_function_declaration", "function", "function_expression",
		"class_declaration", "abstract_class_declaration", "class", "enum_declaration":
		if name := node.ChildByFieldName("name"); name != nil && (name.Type() == "identifier" || name.Type() == "type_identifier") {
			stmt.Declares = append(stmt.Declares, name.Content(a.src))
		}
		collectRefs(node, a.src, &stmt.References)
	default:
		collectRefs(node, a.src, &stmt.References)
	}
}

// scan walks a statement subtree once, recording identifiers, dynamic
// imports, constructs that defeat reduction and tagged-expression candidates.
func (a *moduleAnalyzer) scan(node *sitter.Node, stmtIndex int, stmt *parser.Statement) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "identifier", "property_identifier", "shorthand_property_identifier",
		"shorthand_property_identifier_pattern", "type_identifier":
		a.module.Identifiers[node.Content(a.src)] = true
	case "with_statement":
		markUnsafe(stmt, "with statement")
	case "new_expression":
		if ctor := node.ChildByFieldName("constructor"); ctor != nil && ctor.Type() == "identifier" && ctor.Content(a.src) == "Function" {
			markUnsafe(stmt, "Function constructor")
		}
	case "call_expression":
		fn := node.ChildByFieldName("function")
		args := node.ChildByFieldName("arguments")
		if fn != nil {
			switch {
			case fn.Type() == "import":
				a.dynamicImport(args, stmtIndex, stmt)
			case fn.Type() == "identifier" && fn.Content(a.src) == "require":
				a.requireCall(args, stmtIndex)
			case fn.Type() == "identifier" && fn.Content(a.src) == "eval":
				markUnsafe(stmt, "eval call")
			}
		}
		if site, ok := a.tagCandidate(node, fn, args, stmtIndex); ok {
			a.candidates = append(a.candidates, site)
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		a.scan(node.Child(i), stmtIndex, stmt)
	}
}

func (a *moduleAnalyzer) dynamicImport(args *sitter.Node, stmtIndex int, stmt *parser.Statement) {
	if args == nil || args.NamedChildCount() == 0 {
		markUnsafe(stmt, "dynamic import without specifier")
		return
	}
	first := args.NamedChild(0)
	if first.Type() != "string" {
		markUnsafe(stmt, "dynamic import with computed specifier")
		return
	}
	a.module.DynamicImports = append(a.module.DynamicImports, parser.DynamicImport{
		Stmt:   stmtIndex,
		Source: unquote(first.Content(a.src)),
	})
}

// requireCall records `require("x")` like a dynamic import so the module
// it loads is part of the evaluated graph.
func (a *moduleAnalyzer) requireCall(args *sitter.Node, stmtIndex int) {
	if args == nil || args.NamedChildCount() != 1 || args.NamedChild(0).Type() != "string" {
		return
	}
	a.module.DynamicImports = append(a.module.DynamicImports, parser.DynamicImport{
		Stmt:    stmtIndex,
		Source:  unquote(args.NamedChild(0).Content(a.src)),
		Require: true,
	})
}

func (a *moduleAnalyzer) tagCandidate(call, fn, args *sitter.Node, stmtIndex int) (parser.TagSite, bool) {
	if fn == nil || args == nil {
		return parser.TagSite{}, false
	}

	site := parser.TagSite{
		Stmt: stmtIndex,
		Span: parser.Span{Start: call.StartByte(), End: call.EndByte()},
		Line: int(call.StartPoint().Row) + 1,
	}
	switch fn.Type() {
	case "identifier":
		site.Callee = fn.Content(a.src)
	case "member_expression":
		object := fn.ChildByFieldName("object")
		property := fn.ChildByFieldName("property")
		if object == nil || property == nil || object.Type() != "identifier" {
			return parser.TagSite{}, false
		}
		site.Callee = object.Content(a.src)
		site.Member = property.Content(a.src)
	default:
		return parser.TagSite{}, false
	}

	argNodes := make([]*sitter.Node, 0)
	switch args.Type() {
	case "template_string":
		site.Form = parser.FormTemplate
		cursor := args.StartByte() + 1
		for i := 0; i < int(args.NamedChildCount()); i++ {
			sub := args.NamedChild(i)
			if sub.Type() != "template_substitution" {
				continue
			}
			site.Quasis = append(site.Quasis, string(a.src[cursor:sub.StartByte()]))
			cursor = sub.EndByte()
			if expr := sub.NamedChild(0); expr != nil {
				argNodes = append(argNodes, expr)
			}
		}
		site.Quasis = append(site.Quasis, string(a.src[cursor:args.EndByte()-1]))
	case "arguments":
		site.Form = parser.FormCall
		for i := 0; i < int(args.NamedChildCount()); i++ {
			arg := args.NamedChild(i)
			if arg.Type() == "comment" {
				continue
			}
			argNodes = append(argNodes, arg)
		}
	default:
		return parser.TagSite{}, false
	}

	locals := enclosingLocals(call, a.src)
	seenLocal := make(map[string]bool)
	for _, arg := range argNodes {
		site.Args = append(site.Args, parser.Span{Start: arg.StartByte(), End: arg.EndByte()})
		refs := make([]string, 0)
		collectRefs(arg, a.src, &refs)
		site.ArgRefs = append(site.ArgRefs, dedupe(refs))
		for _, ref := range refs {
			if locals[ref] && !seenLocal[ref] {
				seenLocal[ref] = true
				site.LocalRefs = append(site.LocalRefs, ref)
			}
		}
	}
	site.DisplayName = displayName(call, a.src)
	return site, true
}

// finish resolves facts that need the whole module: tag candidates bound to
// imports and CommonJS globals that are not declared at module scope.
func (a *moduleAnalyzer) finish() {
	imported := make(map[string]bool, len(a.module.Imports))
	for _, imp := range a.module.Imports {
		imported[imp.Local] = true
	}
	for _, site := range a.candidates {
		if imported[site.Callee] {
			a.module.Tags = append(a.module.Tags, site)
		}
	}

	declared := make(map[string]bool)
	for _, stmt := range a.module.Statements {
		for _, name := range stmt.Declares {
			declared[name] = true
		}
	}
	if declared["require"] {
		calls := a.module.DynamicImports[:0]
		for _, dyn := range a.module.DynamicImports {
			if !dyn.Require {
				calls = append(calls, dyn)
			}
		}
		a.module.DynamicImports = calls
	}
	for i := range a.module.Statements {
		stmt := &a.module.Statements[i]
		for _, ref := range stmt.References {
			switch ref {
			case "module", "exports", "require":
				if !declared[ref] {
					a.module.CommonJS = true
					markUnsafe(stmt, parser.UnsafeCommonJS+" "+ref+" access")
				}
			}
		}
	}
}

func markUnsafe(stmt *parser.Statement, reason string) {
	if stmt.Unsafe == "" {
		stmt.Unsafe = reason
	}
}

// collectRefs appends identifiers read in value positions below node.
// Type positions are skipped so type-only uses never keep a binding alive.
func collectRefs(node *sitter.Node, src []byte, out *[]string) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "identifier", "shorthand_property_identifier":
		*out = append(*out, node.Content(src))
		return
	case "type_annotation", "type_arguments", "type_parameters", "implements_clause",
		"type_alias_declaration", "interface_declaration", "type_predicate_annotation",
		"asserts_annotation", "opting_type_annotation", "omitting_type_annotation", "ambient_declaration":
		return
	case "as_expression", "satisfies_expression":
		collectRefs(node.NamedChild(0), src, out)
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectRefs(node.Child(i), src, out)
	}
}

// patternNames appends the binding names introduced by a declaration pattern.
func patternNames(node *sitter.Node, src []byte, out *[]string) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		*out = append(*out, node.Content(src))
	case "pair_pattern":
		patternNames(node.ChildByFieldName("value"), src, out)
	case "assignment_pattern", "object_assignment_pattern":
		patternNames(node.ChildByFieldName("left"), src, out)
	case "required_parameter", "optional_parameter":
		patternNames(node.ChildByFieldName("pattern"), src, out)
	case "object_pattern", "array_pattern", "rest_pattern", "formal_parameters":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			patternNames(node.NamedChild(i), src, out)
		}
	}
}

// patternRefs appends identifiers read by a pattern: defaults and computed keys.
func patternRefs(node *sitter.Node, src []byte, out *[]string) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "assignment_pattern", "object_assignment_pattern":
		patternRefs(node.ChildByFieldName("left"), src, out)
		collectRefs(node.ChildByFieldName("right"), src, out)
	case "pair_pattern":
		if key := node.ChildByFieldName("key"); key != nil && key.Type() == "computed_property_name" {
			collectRefs(key, src, out)
		}
		patternRefs(node.ChildByFieldName("value"), src, out)
	case "object_pattern", "array_pattern", "rest_pattern":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			patternRefs(node.NamedChild(i), src, out)
		}
	}
}

// enclosingLocals collects names bound by every non-module scope around node.
func enclosingLocals(node *sitter.Node, src []byte) map[string]bool {
	locals := make(map[string]bool)
	add := func(names []string) {
		for _, name := range names {
			locals[name] = true
		}
	}
	for anc := node.Parent(); anc != nil && anc.Type() != "program"; anc = anc.Parent() {
		names := make([]string, 0)
		switch anc.Type() {
		case "function_declaration", "generator_function_declaration", "function", "function_expression",
			"generator_function", "arrow_function", "method_definition":
			if params := anc.ChildByFieldName("parameters"); params != nil {
				patternNames(params, src, &names)
			}
			if param := anc.ChildByFieldName("parameter"); param != nil {
				patternNames(param, src, &names)
			}
		case "statement_block", "switch_body":
			names = append(names, blockDeclarations(anc, src)...)
		case "for_statement":
			if init := anc.ChildByFieldName("initializer"); init != nil {
				names = append(names, blockDeclarations(init, src)...)
				for i := 0; i < int(init.NamedChildCount()); i++ {
					if d := init.NamedChild(i); d.Type() == "variable_declarator" {
						patternNames(d.ChildByFieldName("name"), src, &names)
					}
				}
			}
		case "for_in_statement":
			patternNames(anc.ChildByFieldName("left"), src, &names)
		case "catch_clause":
			patternNames(anc.ChildByFieldName("parameter"), src, &names)
		}
		add(names)
	}
	return locals
}

func blockDeclarations(block *sitter.Node, src []byte) []string {
	names := make([]string, 0)
	for i := 0; i < int(block.NamedChildCount()); i++ {
		child := block.NamedChild(i)
		switch child.Type() {
		case "lexical_declaration", "variable_declaration":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if d := child.NamedChild(j); d.Type() == "variable_declarator" {
					patternNames(d.ChildByFieldName("name"), src, &names)
				}
			}
		case "function_declaration", "generator_function_declaration", "class_declaration":
			if name := child.ChildByFieldName("name"); name != nil {
				names = append(names, name.Content(src))
			}
		}
	}
	return names
}

// displayName finds the nearest name a tagged expression is assigned to.
func displayName(node *sitter.Node, src []byte) string {
	for anc := node.Parent(); anc != nil && anc.Type() != "program"; anc = anc.Parent() {
		switch anc.Type() {
		case "variable_declarator":
			if name := anc.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
				return name.Content(src)
			}
			return ""
		case "pair":
			if key := anc.ChildByFieldName("key"); key != nil {
				return unquote(key.Content(src))
			}
		case "assignment_expression":
			if left := anc.ChildByFieldName("left"); left != nil {
				_, name := splitQualifiedName(left.Content(src))
				return name
			}
		case "public_field_definition", "field_definition":
			if name := anc.ChildByFieldName("name"); name != nil {
				return name.Content(src)
			}
		case "statement_block", "class_body":
			return ""
		}
	}
	return ""
}

func isDirective(stmt *sitter.Node) bool {
	expr := stmt.NamedChild(0)
	return expr != nil && stmt.NamedChildCount() == 1 && expr.Type() == "string"
}

func exportSpecifiers(clause *sitter.Node) []*sitter.Node {
	out := make([]*sitter.Node, 0)
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		spec := clause.NamedChild(i)
		if spec.Type() == "export_specifier" && !hasChildOfType(spec, "type") {
			out = append(out, spec)
		}
	}
	return out
}

// specifierNames returns (name, alias-or-name) for an export specifier.
func specifierNames(spec *sitter.Node, src []byte) (string, string) {
	name := spec.ChildByFieldName("name")
	if name == nil {
		return "", ""
	}
	value := unquote(name.Content(src))
	alias := value
	if aliasNode := spec.ChildByFieldName("alias"); aliasNode != nil {
		alias = unquote(aliasNode.Content(src))
	}
	return value, alias
}

func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.Type() == "ERROR" || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.HasError() || child.IsMissing() {
			if bad := firstErrorNode(child); bad != nil {
				return bad
			}
		}
	}
	return nil
}
