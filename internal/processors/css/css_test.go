package css

import (
	"testing"

	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/processor"
	"github.com/morozRed/husk/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func templateUsage(index int) processor.Usage {
	return processor.Usage{
		File:        "/src/entry.ts",
		Index:       index,
		Source:      "husk",
		Imported:    "css",
		DisplayName: "title",
		Form:        parser.FormTemplate,
		Quasis:      []string{"\n  color: ", ";\n  margin: ", "px;\n"},
		Args:        []string{"fn('x')", "2"},
		Span:        parser.Span{Start: 10, End: 40},
	}
}

func TestClassNameIsDeterministicPerUsage(t *testing.T) {
	first := ClassName(templateUsage(0))
	again := ClassName(templateUsage(0))
	second := ClassName(templateUsage(1))

	assert.Equal(t, first, again)
	assert.NotEqual(t, first, second)
	assert.Regexp(t, `^title_[0-9a-z]{1,7}$`, first)
}

func TestClassNameIgnoresCheckoutLocation(t *testing.T) {
	here := templateUsage(0)
	here.File = "/home/dev/app/src/entry.ts"
	here.RelPath = "src/entry.ts"
	there := templateUsage(0)
	there.File = "/ci/build/app/src/entry.ts"
	there.RelPath = "src/entry.ts"

	assert.Equal(t, ClassName(here), ClassName(there))
}

func TestClassNameFallsBackToFileName(t *testing.T) {
	usage := templateUsage(0)
	usage.DisplayName = ""
	usage.Prefix = "x-"
	assert.Regexp(t, `^x-entry_[0-9a-z]+$`, ClassName(usage))
}

func TestBuildTemplate(t *testing.T) {
	p, err := New(templateUsage(0))
	require.NoError(t, err)

	out, err := p.Build([]any{"red", float64(2)})
	require.NoError(t, err)

	require.Len(t, out.Artifacts, 1)
	assert.Equal(t, ArtifactKind, out.Artifacts[0].Kind)
	assert.Equal(t, "."+p.ClassName()+" { color: red; margin: 2px; }", out.Artifacts[0].Payload)

	require.Len(t, out.Edits, 1)
	assert.Equal(t, uint32(10), out.Edits[0].Start)
	assert.Equal(t, uint32(40), out.Edits[0].End)
	assert.Equal(t, `"`+p.ClassName()+`"`, out.Edits[0].Replacement)
}

func TestBuildObjectCall(t *testing.T) {
	usage := processor.Usage{
		File:        "/src/entry.ts",
		DisplayName: "box",
		Form:        parser.FormCall,
		Args:        []string{"{...}"},
	}
	p, err := New(usage)
	require.NoError(t, err)

	value := &sandbox.Object{
		Keys: []string{"backgroundColor", "zIndex", "padding", "WebkitTransition", "hidden", "&:hover"},
		Fields: map[string]any{
			"backgroundColor":  "blue",
			"zIndex":           float64(3),
			"padding":          float64(4),
			"WebkitTransition": "none",
			"hidden":           nil,
			"&:hover": &sandbox.Object{
				Keys:   []string{"color"},
				Fields: map[string]any{"color": "red"},
			},
		},
	}
	out, err := p.Build([]any{value})
	require.NoError(t, err)

	cls := "." + p.ClassName()
	assert.Equal(t,
		cls+" { background-color: blue; z-index: 3; padding: 4px; -webkit-transition: none; }\n"+
			cls+":hover { color: red; }",
		out.Artifacts[0].Payload)
}

func TestBuildRejectsFunctions(t *testing.T) {
	p, err := New(templateUsage(0))
	require.NoError(t, err)

	_, err = p.Build([]any{sandbox.Function(func(args ...any) (any, error) { return nil, nil }), float64(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "functions cannot be interpolated")
}

func TestCallFormArity(t *testing.T) {
	_, err := New(processor.Usage{File: "/src/a.ts", Form: parser.FormCall})
	require.Error(t, err)
}

func TestRegister(t *testing.T) {
	r := processor.NewRegistry()
	Register(r, "husk", "css")

	ctor, status := r.Lookup("husk", "css")
	require.Equal(t, processor.Registered, status)
	p, err := ctor(templateUsage(0))
	require.NoError(t, err)
	assert.Equal(t, Name, p.Name())
}
