// Package processors builds the processor registry from configuration.
package processors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/morozRed/husk/internal/config"
	"github.com/morozRed/husk/internal/processor"
	"github.com/morozRed/husk/internal/processors/css"
)

// IgnoreName marks a configured tag as recognised but left untouched.
const IgnoreName = "ignore"

var builtin = map[string]processor.Constructor{
	css.Name: css.New,
}

// Names lists the built-in processor names.
func Names() []string {
	names := make([]string, 0, len(builtin)+1)
	for name := range builtin {
		names = append(names, name)
	}
	names = append(names, IgnoreName)
	sort.Strings(names)
	return names
}

// NewRegistry creates a registry with one entry per configured tag.
func NewRegistry(tags []config.TagConfig) (*processor.Registry, error) {
	r := processor.NewRegistry()
	for i, tag := range tags {
		if tag.Processor == IgnoreName {
			r.Ignore(tag.Module, tag.Import)
			continue
		}
		ctor, ok := builtin[tag.Processor]
		if !ok {
			return nil, fmt.Errorf("tags[%d]: unknown processor %q (known: %s)", i, tag.Processor, strings.Join(Names(), ", "))
		}
		r.Register(tag.Module, tag.Import, ctor)
	}
	return r, nil
}
