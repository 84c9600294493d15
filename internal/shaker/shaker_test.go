package shaker

import (
	"strings"
	"testing"

	"github.com/morozRed/husk/internal/languages"
	"github.com/morozRed/husk/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entrySource = `import { a, b } from "./dep";
import "./side";
const unused = b();
const x = a + 1;
export const y = x * 2;
export const z = 3;
window.init();
`

func mustParse(t *testing.T, name, src string) *parser.Module {
	t.Helper()
	module, err := languages.NewDefaultRegistry().Parse(name, []byte(src))
	require.NoError(t, err)
	return module
}

func TestShakeKeepsReachableStatements(t *testing.T) {
	result, err := Shake(mustParse(t, "/src/entry.ts", entrySource), parser.NewExportSet("y"), Options{})
	require.NoError(t, err)

	assert.Equal(t, strings.Join([]string{
		`import { a } from "./dep";`,
		`import "./side";`,
		`const x = a + 1;`,
		`export const y = x * 2;`,
		`window.init();`,
	}, "\n"), result.Code)
	assert.Equal(t, 2, result.Removed)

	require.Len(t, result.Dependencies, 2)
	assert.Equal(t, "./dep", result.Dependencies[0].Source)
	assert.Equal(t, "a", result.Dependencies[0].Only.Key())
	assert.Equal(t, "./side", result.Dependencies[1].Source)
	assert.Equal(t, parser.SideEffectsOnly, result.Dependencies[1].Only.Key())
}

func TestShakeSideEffectRemoval(t *testing.T) {
	result, err := Shake(mustParse(t, "/src/entry.ts", entrySource), parser.NewExportSet("y"), Options{SideEffectRemoval: true})
	require.NoError(t, err)

	assert.Equal(t, "import { a } from \"./dep\";\nconst x = a + 1;\nexport const y = x * 2;", result.Code)
	require.Len(t, result.Dependencies, 1)
}

func TestShakeDangerousCodeRemover(t *testing.T) {
	result, err := Shake(mustParse(t, "/src/entry.ts", entrySource), parser.NewExportSet("y"), Options{DangerousCodeRemover: true})
	require.NoError(t, err)

	assert.Contains(t, result.Code, `import "./side";`)
	assert.NotContains(t, result.Code, "window")
}

func TestShakeCustomGlobals(t *testing.T) {
	src := "export const a = 1;\n$jq.ready();\ntrack();\n"
	result, err := Shake(mustParse(t, "/src/a.js", src), parser.NewExportSet("a"), Options{
		DangerousCodeRemover: true,
		Globals:              []string{"$*"},
	})
	require.NoError(t, err)
	assert.Equal(t, "export const a = 1;\ntrack();", result.Code)
}

func TestShakeEmptyRequestKeepsNothing(t *testing.T) {
	result, err := Shake(mustParse(t, "/src/entry.ts", entrySource), parser.ExportSet{}, Options{})
	require.NoError(t, err)

	assert.Empty(t, result.Code)
	assert.Empty(t, result.Kept)
	assert.Empty(t, result.Dependencies)
}

func TestShakeIsIdempotent(t *testing.T) {
	for _, only := range []parser.ExportSet{parser.NewExportSet("y"), parser.NewExportSet("z"), parser.All()} {
		first, err := Shake(mustParse(t, "/src/entry.ts", entrySource), only, Options{})
		require.NoError(t, err)

		second, err := Shake(mustParse(t, "/src/entry.ts", first.Code), only, Options{})
		require.NoError(t, err)
		assert.Equal(t, first.Code, second.Code, "only=%s", only)
	}
}

func TestShakeIsMonotonic(t *testing.T) {
	module := mustParse(t, "/src/entry.ts", entrySource)
	small, err := Shake(module, parser.NewExportSet("z"), Options{})
	require.NoError(t, err)
	large, err := Shake(module, parser.NewExportSet("y", "z"), Options{})
	require.NoError(t, err)

	assert.Subset(t, large.Kept, small.Kept)
}

func TestShakeExportClauseSubset(t *testing.T) {
	src := "const a = 1, b = 2;\nexport { a, b as c };\n"
	result, err := Shake(mustParse(t, "/src/a.js", src), parser.NewExportSet("c"), Options{})
	require.NoError(t, err)

	assert.Equal(t, "const a = 1, b = 2;\nexport { b as c };", result.Code)
}

func TestShakeReexports(t *testing.T) {
	src := "export * from \"./all\";\nexport { q as r, s } from './named';\nexport const a = 1;\n"
	module := mustParse(t, "/src/a.js", src)

	own, err := Shake(module, parser.NewExportSet("a"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "export const a = 1;", own.Code)

	forwarded, err := Shake(module, parser.NewExportSet("r"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "export { q as r } from './named';", forwarded.Code)
	require.Len(t, forwarded.Dependencies, 1)
	assert.Equal(t, "q", forwarded.Dependencies[0].Only.Key())

	unknown, err := Shake(module, parser.NewExportSet("other"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "export * from \"./all\";", unknown.Code)
	require.Len(t, unknown.Dependencies, 1)
	assert.True(t, unknown.Dependencies[0].Only.IsAll())
}

func TestShakeKeepsTypes(t *testing.T) {
	src := "interface Props { size: number }\nexport const a: Props = { size: 1 };\nexport const b = 2;\n"
	result, err := Shake(mustParse(t, "/src/a.ts", src), parser.NewExportSet("b"), Options{})
	require.NoError(t, err)

	assert.Equal(t, "interface Props { size: number }\nexport const b = 2;", result.Code)
}

func TestShakeMutationFixpoint(t *testing.T) {
	src := "const obj = {};\nobj.x = 1;\nexport const y = obj;\nother.z = 2;\n"
	result, err := Shake(mustParse(t, "/src/a.js", src), parser.NewExportSet("y"), Options{SideEffectRemoval: true})
	require.NoError(t, err)

	assert.Equal(t, "const obj = {};\nobj.x = 1;\nexport const y = obj;", result.Code)
}

func TestShakeUnsafeConstructs(t *testing.T) {
	src := "const a = eval(\"1\");\nexport const b = a;\nexport const c = 2;\n"
	module := mustParse(t, "/src/a.js", src)

	_, err := Shake(module, parser.NewExportSet("b"), Options{})
	require.ErrorIs(t, err, parser.ErrUnsafeReduction)

	var unsafe *parser.UnsafeError
	require.ErrorAs(t, err, &unsafe)
	assert.Equal(t, 1, unsafe.Line)

	soft, err := Shake(module, parser.NewExportSet("b"), Options{SoftErrors: true})
	require.NoError(t, err)
	assert.Equal(t, src, soft.Code)
	assert.NotEmpty(t, soft.Fallback)

	// the eval is unreachable from c
	clean, err := Shake(module, parser.NewExportSet("c"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "export const c = 2;", clean.Code)
}

func TestShakeKeepsCommonJSModulesWhole(t *testing.T) {
	src := "const shade = require(\"./shade\");\nexports.a = shade(1);\nexports.b = 2;\n"
	result, err := Shake(mustParse(t, "/src/a.js", src), parser.NewExportSet("a"), Options{SideEffectRemoval: true})
	require.NoError(t, err)
	assert.Equal(t, src, result.Code)
	assert.Empty(t, result.Fallback)
	assert.Len(t, result.Kept, 3)
	require.Len(t, result.Dependencies, 1)
	assert.Equal(t, "./shade", result.Dependencies[0].Source)
	assert.True(t, result.Dependencies[0].Only.IsAll())
}

func TestShakeCommonJSStillRejectsEval(t *testing.T) {
	src := "exports.a = eval(\"1\");\n"
	_, err := Shake(mustParse(t, "/src/a.js", src), parser.NewExportSet("a"), Options{})
	require.ErrorIs(t, err, parser.ErrUnsafeReduction)
}

func TestShakeSideEffectsOnly(t *testing.T) {
	src := "export const a = 1;\nsetup();\n"
	result, err := Shake(mustParse(t, "/src/a.js", src), parser.NewExportSet(parser.SideEffectsOnly), Options{})
	require.NoError(t, err)
	assert.Equal(t, "setup();", result.Code)
}

func TestRenderReexports(t *testing.T) {
	assert.Equal(t, `export { a, b } from "./x";`, RenderReexports([]string{"a", "b"}, "./x"))
	assert.Equal(t, `import def, { a, b as c } from "./y";`, renderImport([]parser.Binding{
		{Remote: "default", Local: "def"},
		{Remote: "a", Local: "a"},
		{Remote: "b", Local: "c"},
	}, `"./y"`))
}
