package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// LanguageParser defines the interface each source dialect must implement
type LanguageParser interface {
	// Language returns the dialect name (e.g., "typescript", "javascript")
	Language() string

	// Extensions returns file extensions this parser handles
	Extensions() []string

	// Parse extracts the module facts from source code
	Parse(filename string, content []byte) (*Module, error)
}

// Registry holds all registered dialect parsers
type Registry struct {
	parsers   map[string]LanguageParser // language name -> parser
	extToLang map[string]string         // extension -> language name
}

// NewRegistry creates a new parser registry
func NewRegistry() *Registry {
	return &Registry{
		parsers:   make(map[string]LanguageParser),
		extToLang: make(map[string]string),
	}
}

// Register adds a parser to the registry
func (r *Registry) Register(p LanguageParser) {
	lang := p.Language()
	r.parsers[lang] = p
	for _, ext := range p.Extensions() {
		r.extToLang[ext] = lang
	}
}

// GetParserForFile returns the appropriate parser for a file
func (r *Registry) GetParserForFile(filename string) (LanguageParser, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	lang, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	parser, ok := r.parsers[lang]
	return parser, ok
}

// SupportedExtensions returns all supported file extensions, sorted
func (r *Registry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Parse analyses already-loaded content.
func (r *Registry) Parse(path string, content []byte) (*Module, error) {
	parser, ok := r.GetParserForFile(path)
	if !ok {
		return nil, fmt.Errorf("no parser for %s", path)
	}

	module, err := parser.Parse(path, content)
	if err != nil {
		return nil, err
	}

	module.Path = path
	module.Source = content
	module.Hash = HashContent(content)
	for i := range module.Statements {
		module.Statements[i].Declares = normalizeStrings(module.Statements[i].Declares)
		module.Statements[i].References = normalizeStrings(module.Statements[i].References)
	}
	return module, nil
}

// ParseFile reads and parses a single file
func (r *Registry) ParseFile(fs afero.Fs, path string) (*Module, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return r.Parse(path, content)
}

// HashContent returns the short content hash used for incremental checks.
func HashContent(content []byte) string {
	h := sha256.New()
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))[:16] // short hash
}

func normalizeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
