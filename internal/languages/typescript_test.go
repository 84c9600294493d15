package languages

import (
	"strings"
	"testing"

	"github.com/morozRed/husk/internal/parser"
)

func parseTS(t *testing.T, name, src string) *parser.Module {
	t.Helper()
	module, err := NewDefaultRegistry().Parse(name, []byte(src))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return module
}

func importByLocal(module *parser.Module, local string) (parser.Import, bool) {
	for _, imp := range module.Imports {
		if imp.Local == local {
			return imp, true
		}
	}
	return parser.Import{}, false
}

func TestImportForms(t *testing.T) {
	module := parseTS(t, "a.ts", `import def, { a, b as c } from "./dep";
import * as ns from './ns';
import "./side-effect";
import type { T } from "./types";
`)

	cases := map[string]parser.Import{
		"def": {Source: "./dep", Imported: "default", Local: "def"},
		"a":   {Source: "./dep", Imported: "a", Local: "a"},
		"c":   {Source: "./dep", Imported: "b", Local: "c"},
		"ns":  {Source: "./ns", Imported: "*", Local: "ns"},
	}
	for local, want := range cases {
		got, ok := importByLocal(module, local)
		if !ok {
			t.Fatalf("expected import bound to %s", local)
		}
		if got.Source != want.Source || got.Imported != want.Imported {
			t.Fatalf("import %s: expected %+v, got %+v", local, want, got)
		}
	}
	if _, ok := importByLocal(module, "T"); ok {
		t.Fatalf("type-only imports must not create value bindings")
	}

	if len(module.Statements) != 4 {
		t.Fatalf("expected 4 statements, got %d", len(module.Statements))
	}
	if !module.Statements[2].SideEffect || module.Statements[2].SourceRaw != `"./side-effect"` {
		t.Fatalf("bare import must be a side effect, got %+v", module.Statements[2])
	}
	if module.Statements[3].Kind != parser.StatementType {
		t.Fatalf("expected type kind for import type, got %s", module.Statements[3].Kind)
	}
}

func TestExportForms(t *testing.T) {
	module := parseTS(t, "a.ts", `const x = 1, y = 2;
export const a = x;
export function f() { return y; }
export { x as renamed, y };
export default a;
export * from "./all";
export * as space from "./space";
export { z as zed } from "./zed";
export interface Shape { n: number }
`)

	got := strings.Join(module.ExportNames(), ",")
	if got != "a,default,f,renamed,space,y,zed" {
		t.Fatalf("unexpected export names %s", got)
	}

	var wildcard, named int
	for _, re := range module.Reexports {
		switch {
		case re.Exported == "*":
			wildcard++
			if re.Source != "./all" {
				t.Fatalf("unexpected wildcard source %s", re.Source)
			}
		case re.Exported == "zed":
			named++
			if re.Imported != "z" || re.Source != "./zed" {
				t.Fatalf("unexpected named re-export %+v", re)
			}
		case re.Exported == "space":
			if re.Imported != "*" {
				t.Fatalf("namespace re-export must import *, got %+v", re)
			}
		}
	}
	if wildcard != 1 || named != 1 {
		t.Fatalf("expected one wildcard and one named re-export, got %+v", module.Reexports)
	}

	last := module.Statements[len(module.Statements)-1]
	if last.Kind != parser.StatementType {
		t.Fatalf("exported interface must be a type statement, got %s", last.Kind)
	}

	exportA := module.Statements[1]
	if exportA.Kind != parser.StatementExport || len(exportA.Declares) != 1 || exportA.Declares[0] != "a" {
		t.Fatalf("unexpected export statement %+v", exportA)
	}
	if len(exportA.References) != 1 || exportA.References[0] != "x" {
		t.Fatalf("expected export a to reference x, got %v", exportA.References)
	}
}

func TestReferencesSkipTypePositions(t *testing.T) {
	module := parseTS(t, "a.ts", `import { Kind, value } from "./dep";
export const a: Kind = value as Kind;
`)
	refs := module.Statements[1].References
	if len(refs) != 1 || refs[0] != "value" {
		t.Fatalf("expected only value reference, got %v", refs)
	}
}

func TestSideEffectClassification(t *testing.T) {
	module := parseTS(t, "a.js", `"use strict";
window.flag = true;
if (ready) { start(); }
function pure() {}
`)
	if module.Language != "javascript" {
		t.Fatalf("expected javascript dialect, got %s", module.Language)
	}
	if module.Statements[0].SideEffect {
		t.Fatalf("directives are not side effects")
	}
	if !module.Statements[1].SideEffect || !module.Statements[2].SideEffect {
		t.Fatalf("expression and control statements are side effects")
	}
	if module.Statements[3].SideEffect || module.Statements[3].Kind != parser.StatementDeclaration {
		t.Fatalf("function declaration must be a pure declaration")
	}
}

func TestUnsafeConstructs(t *testing.T) {
	module := parseTS(t, "a.js", `export const a = eval("1");
module.exports.b = 2;
export const c = new Function("return 1");
export const d = 4;
`)
	wants := []string{"eval call", "CommonJS module access", "Function constructor", ""}
	for i, want := range wants {
		if got := module.Statements[i].Unsafe; got != want {
			t.Fatalf("statement %d: expected unsafe %q, got %q", i, want, got)
		}
	}
}

func TestDeclaredRequireIsNotUnsafe(t *testing.T) {
	module := parseTS(t, "a.js", `const require = (x) => x;
export const a = require("y");
`)
	if module.Statements[1].Unsafe != "" {
		t.Fatalf("locally declared require is plain code, got %q", module.Statements[1].Unsafe)
	}
}

func TestDynamicImports(t *testing.T) {
	module := parseTS(t, "a.ts", `export const load = () => import("./lazy");`)
	if len(module.DynamicImports) != 1 || module.DynamicImports[0].Source != "./lazy" {
		t.Fatalf("expected dynamic import of ./lazy, got %+v", module.DynamicImports)
	}
}

func TestTagSites(t *testing.T) {
	src := "import { css } from \"husk\";\n" +
		"import { fn } from \"./fn\";\n" +
		"const other = (x) => x;\n" +
		"export const title = css`color: ${fn('x')}; margin: ${2}px;`;\n" +
		"export const box = css({ color: fn('y') });\n" +
		"export const skip = other`ignored`;\n"
	module := parseTS(t, "a.ts", src)

	// every call of an imported binding is a site; fn calls included
	sites := make([]parser.TagSite, 0)
	for _, site := range module.Tags {
		if site.Callee == "other" {
			t.Fatalf("calls of local bindings are not tag sites")
		}
		if site.Callee == "css" {
			sites = append(sites, site)
		}
	}
	if len(sites) != 2 || len(module.Tags) != 4 {
		t.Fatalf("expected 2 css sites out of 4, got %d/%d", len(sites), len(module.Tags))
	}

	tpl := sites[0]
	if tpl.Form != parser.FormTemplate || tpl.Callee != "css" || tpl.DisplayName != "title" {
		t.Fatalf("unexpected template site %+v", tpl)
	}
	if len(tpl.Quasis) != 3 || tpl.Quasis[0] != "color: " || tpl.Quasis[1] != "; margin: " || tpl.Quasis[2] != "px;" {
		t.Fatalf("unexpected quasis %q", tpl.Quasis)
	}
	if len(tpl.Args) != 2 {
		t.Fatalf("expected 2 interpolations, got %d", len(tpl.Args))
	}
	if got := src[tpl.Args[0].Start:tpl.Args[0].End]; got != "fn('x')" {
		t.Fatalf("unexpected interpolation %q", got)
	}
	if len(tpl.ArgRefs[0]) != 1 || tpl.ArgRefs[0][0] != "fn" {
		t.Fatalf("expected interpolation to reference fn, got %v", tpl.ArgRefs[0])
	}
	if tpl.Line != 4 {
		t.Fatalf("expected line 4, got %d", tpl.Line)
	}

	call := sites[1]
	if call.Form != parser.FormCall || call.DisplayName != "box" || len(call.Args) != 1 {
		t.Fatalf("unexpected call site %+v", call)
	}
}

func TestTagSiteLocalReferences(t *testing.T) {
	module := parseTS(t, "a.ts", "import { css } from \"husk\";\n"+
		"export function make(size) {\n"+
		"  const unit = 'px';\n"+
		"  return css`width: ${size}${unit}; color: ${globalColor};`;\n"+
		"}\n")
	if len(module.Tags) != 1 {
		t.Fatalf("expected a tag site, got %d", len(module.Tags))
	}
	got := strings.Join(module.Tags[0].LocalRefs, ",")
	if got != "size,unit" {
		t.Fatalf("expected local refs size,unit, got %q", got)
	}
}

func TestMemberTagCallee(t *testing.T) {
	module := parseTS(t, "a.tsx", "import styled from \"husk\";\nexport const Box = styled.div`color: red;`;\n")
	if len(module.Tags) != 1 {
		t.Fatalf("expected a tag site, got %d", len(module.Tags))
	}
	if module.Tags[0].Callee != "styled" || module.Tags[0].Member != "div" {
		t.Fatalf("unexpected member callee %+v", module.Tags[0])
	}
}

func TestSyntaxErrorReportsLine(t *testing.T) {
	_, err := NewTypeScriptParser().Parse("broken.ts", []byte("const a = 1;\nconst = ;\n"))
	if err == nil {
		t.Fatalf("expected syntax error")
	}
	if !strings.Contains(err.Error(), "broken.ts:2") {
		t.Fatalf("expected error to point at line 2, got %v", err)
	}
}

func TestIdentifiersCollected(t *testing.T) {
	module := parseTS(t, "a.ts", "const __husk_exp = 1; obj.__other = 2;")
	if !module.Identifiers["__husk_exp"] || !module.Identifiers["__other"] {
		t.Fatalf("expected identifiers to be collected, got %v", module.Identifiers)
	}
}
