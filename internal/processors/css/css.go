// Package css is the built-in processor for css`...` and css({...}) usages.
package css

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/processor"
	"github.com/morozRed/husk/internal/sandbox"
)

// Name is the processor name used in configuration.
const Name = "css"

// ArtifactKind is the kind of every artifact this processor emits.
const ArtifactKind = "css"

var unitless = map[string]bool{
	"animation-iteration-count": true,
	"column-count":              true,
	"flex":                      true,
	"flex-grow":                 true,
	"flex-shrink":               true,
	"font-weight":               true,
	"line-height":               true,
	"opacity":                   true,
	"order":                     true,
	"z-index":                   true,
	"zoom":                      true,
}

// Processor turns one usage into a class name and a rule set.
type Processor struct {
	usage     processor.Usage
	className string
}

// Register binds the css processor to an imported tag.
func Register(r *processor.Registry, source, imported string) {
	r.Register(source, imported, New)
}

// New creates the processor for a usage.
func New(usage processor.Usage) (processor.Processor, error) {
	if usage.Form == parser.FormCall && len(usage.Args) != 1 {
		return nil, fmt.Errorf("%s:%d: css() takes exactly one argument, got %d", usage.File, usage.Line, len(usage.Args))
	}
	return &Processor{usage: usage, className: ClassName(usage)}, nil
}

// ClassName derives the deterministic `[name]_[hash]` class of a usage.
func ClassName(usage processor.Usage) string {
	name := usage.DisplayName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(usage.File), filepath.Ext(usage.File))
	}
	name = sanitize(name)

	file := usage.RelPath
	if file == "" {
		file = usage.File
	}
	sum := xxhash.Sum64String(file + "\x00" + strconv.Itoa(usage.Index) + "\x00" + name)
	hash := strconv.FormatUint(sum, 36)
	if len(hash) > 7 {
		hash = hash[:7]
	}
	return usage.Prefix + name + "_" + hash
}

func (p *Processor) Name() string { return Name }

func (p *Processor) ClassName() string { return p.className }

func (p *Processor) EvalValue() string { return strconv.Quote(p.className) }

func (p *Processor) Build(values []any) (processor.Output, error) {
	if len(values) != len(p.usage.Args) {
		return processor.Output{}, fmt.Errorf("expected %d values, got %d", len(p.usage.Args), len(values))
	}

	selector := "." + p.className
	var rules []string
	var err error
	if p.usage.Form == parser.FormCall {
		rules, err = objectRules(selector, values[0])
	} else {
		rules, err = p.templateRules(selector, values)
	}
	if err != nil {
		return processor.Output{}, err
	}

	return processor.Output{
		Artifacts: []processor.Artifact{{Kind: ArtifactKind, Payload: strings.Join(rules, "\n")}},
		Edits: []processor.Edit{{
			Start:       p.usage.Span.Start,
			End:         p.usage.Span.End,
			Replacement: p.EvalValue(),
		}},
	}, nil
}

func (p *Processor) templateRules(selector string, values []any) ([]string, error) {
	var b strings.Builder
	for i, quasi := range p.usage.Quasis {
		b.WriteString(quasi)
		if i >= len(values) {
			continue
		}
		text, err := interpolate(values[i])
		if err != nil {
			return nil, fmt.Errorf("interpolation %d (%s): %w", i, p.usage.Args[i], err)
		}
		b.WriteString(text)
	}
	return []string{selector + " {" + normalizeBody(b.String()) + "}"}, nil
}

func interpolate(value any) (string, error) {
	switch v := value.(type) {
	case *sandbox.Object:
		decls, nested, err := declarations(v)
		if err != nil {
			return "", err
		}
		if len(nested) > 0 {
			return "", fmt.Errorf("nested selectors cannot be interpolated")
		}
		return strings.Join(decls, " "), nil
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			text, err := interpolate(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, text)
		}
		return strings.Join(parts, " "), nil
	}
	return scalar(value, "")
}

func objectRules(selector string, value any) ([]string, error) {
	obj, ok := value.(*sandbox.Object)
	if !ok {
		return nil, fmt.Errorf("css() expects an object, got %s", describe(value))
	}
	decls, nested, err := declarations(obj)
	if err != nil {
		return nil, err
	}

	rules := []string{selector + " {" + wrapDecls(decls) + "}"}
	for _, key := range nested {
		child := strings.ReplaceAll(key, "&", selector)
		if !strings.Contains(key, "&") {
			child = selector + " " + key
		}
		childRules, err := objectRules(child, obj.Get(key))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		rules = append(rules, childRules...)
	}
	return rules, nil
}

// declarations renders the scalar fields of obj; object fields are
// returned as nested selector keys.
func declarations(obj *sandbox.Object) ([]string, []string, error) {
	decls := make([]string, 0, len(obj.Keys))
	nested := make([]string, 0)
	for _, key := range obj.Keys {
		value := obj.Get(key)
		if _, ok := value.(*sandbox.Object); ok {
			nested = append(nested, key)
			continue
		}
		property := kebab(key)
		text, err := scalar(value, property)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", key, err)
		}
		if text == "" {
			continue
		}
		decls = append(decls, property+": "+text+";")
	}
	return decls, nested, nil
}

func scalar(value any, property string) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		if !v {
			return "", nil
		}
		return "", fmt.Errorf("boolean true is not a css value")
	case float64:
		text := strconv.FormatFloat(v, 'f', -1, 64)
		if property != "" && v != 0 && !unitless[property] && !strings.HasPrefix(property, "--") {
			text += "px"
		}
		return text, nil
	case int, int64:
		return scalar(toFloat(v), property)
	}
	if value != nil && reflect.ValueOf(value).Kind() == reflect.Func {
		return "", fmt.Errorf("functions cannot be interpolated")
	}
	return "", fmt.Errorf("unsupported value %s", describe(value))
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func describe(value any) string {
	if value == nil {
		return "null"
	}
	return reflect.TypeOf(value).String()
}

// kebab converts camelCase property names; vendor prefixes gain a dash.
func kebab(key string) string {
	if strings.HasPrefix(key, "--") || strings.Contains(key, "-") {
		return key
	}
	var b strings.Builder
	for i, r := range key {
		if r >= 'A' && r <= 'Z' {
			if i > 0 || isVendor(key) {
				b.WriteByte('-')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isVendor(key string) bool {
	for _, prefix := range []string{"Webkit", "Moz", "O", "Ms"} {
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) && key[len(prefix)] >= 'A' && key[len(prefix)] <= 'Z' {
			return true
		}
	}
	return false
}

func wrapDecls(decls []string) string {
	if len(decls) == 0 {
		return ""
	}
	return " " + strings.Join(decls, " ") + " "
}

func normalizeBody(body string) string {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return ""
	}
	return " " + strings.Join(fields, " ") + " "
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "_" + out
	}
	return out
}
