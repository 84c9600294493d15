package languages

import "github.com/morozRed/husk/internal/parser"

// NewDefaultRegistry creates a registry with all supported source dialects
func NewDefaultRegistry() *parser.Registry {
	r := parser.NewRegistry()

	r.Register(NewTypeScriptParser())

	return r
}
