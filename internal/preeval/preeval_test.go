package preeval

import (
	"testing"

	"github.com/morozRed/husk/internal/languages"
	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/processor"
	"github.com/morozRed/husk/internal/processors/css"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *parser.Module {
	t.Helper()
	module, err := languages.NewDefaultRegistry().Parse("/src/entry.ts", []byte(src))
	require.NoError(t, err)
	return module
}

func registry() *processor.Registry {
	r := processor.NewRegistry()
	css.Register(r, "husk", "css")
	return r
}

func TestRunHoistsInterpolations(t *testing.T) {
	module := mustParse(t, "import { css } from \"husk\";\n"+
		"import { fn } from \"./fn\";\n"+
		"export const title = css`color: ${fn('x')};`;\n")

	result, err := Run(module, registry(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Usages, 1)

	usage := result.Usages[0]
	assert.Equal(t, []string{"__husk_exp_0"}, usage.Bindings)
	assert.Equal(t, "husk", usage.Source)
	assert.Equal(t, "css", usage.Imported)

	assert.Equal(t, "import { css } from \"husk\";\n"+
		"import { fn } from \"./fn\";\n"+
		"const __husk_exp_0 = () => (fn('x'));\n"+
		"export const title = \""+usage.Processor.ClassName()+"\";\n"+
		"export const __huskPreval = { __husk_exp_0 };\n", result.Code)
}

func TestRunPassesRootRelativePath(t *testing.T) {
	module := mustParse(t, "import { css } from \"husk\";\nexport const a = css`color: red;`;\n")

	capture := processor.NewRegistry()
	var seen processor.Usage
	capture.Register("husk", "css", func(usage processor.Usage) (processor.Processor, error) {
		seen = usage
		return css.New(usage)
	})

	_, err := Run(module, capture, Options{Root: "/"})
	require.NoError(t, err)
	assert.Equal(t, "src/entry.ts", seen.RelPath)
	assert.Equal(t, "/src/entry.ts", seen.File)
}

func TestRunIdenticalUsagesStayDistinct(t *testing.T) {
	module := mustParse(t, "import { css } from \"husk\";\n"+
		"export const a = css`color: ${'red'};`;\n"+
		"export const b = css`color: ${'red'};`;\n")

	result, err := Run(module, registry(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Usages, 2)

	first, second := result.Usages[0], result.Usages[1]
	assert.NotEqual(t, first.Processor.ClassName(), second.Processor.ClassName())
	assert.NotEqual(t, first.Bindings, second.Bindings)
	assert.Contains(t, result.Code, "export const __huskPreval = { __husk_exp_0, __husk_exp_1 };")
}

func TestRunWithoutUsagesKeepsSource(t *testing.T) {
	src := "import { fn } from \"./fn\";\nexport const a = fn`x`;\n"
	result, err := Run(mustParse(t, src), registry(), Options{})
	require.NoError(t, err)

	assert.False(t, result.HasUsages())
	assert.Equal(t, src, result.Code)
}

func TestRunAvoidsTakenNames(t *testing.T) {
	module := mustParse(t, "import { css } from \"husk\";\n"+
		"const __husk_exp_0 = 1;\n"+
		"export const a = css`width: ${__husk_exp_0}px;`;\n")

	result, err := Run(module, registry(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Usages, 1)
	assert.NotEqual(t, "__husk_exp_0", result.Usages[0].Bindings[0])
}

func TestRunNestedUsages(t *testing.T) {
	module := mustParse(t, "import { css } from \"husk\";\n"+
		"export const outer = css`& .x { ${css`color: red;`} }`;\n")

	result, err := Run(module, registry(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Usages, 2)

	outer, inner := result.Usages[0], result.Usages[1]
	assert.Contains(t, result.Code, "const __husk_exp_0 = () => (\""+inner.Processor.ClassName()+"\");")
	assert.Contains(t, result.Code, "export const outer = \""+outer.Processor.ClassName()+"\";")
}

func TestRunRejectsLocalReferences(t *testing.T) {
	module := mustParse(t, "import { css } from \"husk\";\n"+
		"export function make(size) {\n"+
		"  return css`width: ${size}px;`;\n"+
		"}\n")

	_, err := Run(module, registry(), Options{})
	require.ErrorIs(t, err, parser.ErrUnsafeReduction)
}

func TestRunNamespaceMember(t *testing.T) {
	module := mustParse(t, "import * as h from \"husk\";\nexport const a = h.css`color: red;`;\n")

	result, err := Run(module, registry(), Options{ClassNamePrefix: "p-"})
	require.NoError(t, err)
	require.Len(t, result.Usages, 1)
	assert.Regexp(t, `^p-a_`, result.Usages[0].Processor.ClassName())
	assert.Contains(t, result.Code, "export const __huskPreval = {};")
}
