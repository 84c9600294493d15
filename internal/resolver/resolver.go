// Package resolver maps import specifiers to files on disk.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// DefaultExtensions is the probing order for extensionless specifiers.
var DefaultExtensions = []string{".ts", ".tsx", ".mts", ".cts", ".js", ".jsx", ".mjs", ".cjs"}

// Options configures resolution.
type Options struct {
	Root       string            // base directory for alias targets
	Extensions []string          // probing order
	Aliases    map[string]string // specifier prefix -> target path prefix
}

// Resolver resolves relative, absolute, aliased and node_modules specifiers.
type Resolver struct {
	fs      afero.Fs
	opts    Options
	aliases []string // alias keys, longest first

	mu       sync.Mutex
	packages map[string]*packageJSON
}

type packageJSON struct {
	Module string `json:"module"`
	Main   string `json:"main"`
}

// New creates a resolver over fs.
func New(fs afero.Fs, opts Options) *Resolver {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	aliases := make([]string, 0, len(opts.Aliases))
	for prefix := range opts.Aliases {
		aliases = append(aliases, prefix)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	return &Resolver{
		fs:       fs,
		opts:     opts,
		aliases:  aliases,
		packages: make(map[string]*packageJSON),
	}
}

// Resolve returns the absolute path specifier refers to from importer, or
// an empty string when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, specifier, importer string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	specifier = strings.TrimSpace(specifier)
	if idx := strings.IndexAny(specifier, "?#"); idx > 0 {
		specifier = specifier[:idx]
	}
	if specifier == "" {
		return "", nil
	}

	if target, ok := r.alias(specifier); ok {
		specifier = target
	}

	switch {
	case filepath.IsAbs(specifier):
		return r.tryPath(filepath.Clean(specifier), false)
	case strings.HasPrefix(specifier, "./"), strings.HasPrefix(specifier, "../"), specifier == ".", specifier == "..":
		return r.tryPath(filepath.Join(filepath.Dir(importer), specifier), false)
	}
	return r.nodeModules(specifier, filepath.Dir(importer))
}

func (r *Resolver) alias(specifier string) (string, bool) {
	for _, prefix := range r.aliases {
		if specifier != prefix && !strings.HasPrefix(specifier, prefix) {
			continue
		}
		target := r.opts.Aliases[prefix] + strings.TrimPrefix(specifier, prefix)
		// bare targets alias one package to another
		if strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../") {
			target = filepath.Join(r.opts.Root, target)
		}
		return target, true
	}
	return "", false
}

func (r *Resolver) nodeModules(specifier, from string) (string, error) {
	for dir := from; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, "node_modules", filepath.FromSlash(specifier))
		resolved, err := r.tryPath(candidate, true)
		if err != nil || resolved != "" {
			return resolved, err
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
	}
}

// tryPath tries path as a file, with each extension, then as a directory.
func (r *Resolver) tryPath(path string, isPackage bool) (string, error) {
	if ok, err := r.isFile(path); err != nil || ok {
		return okPath(path, ok, err)
	}

	// compiled-output specifiers pointing at TS sources
	ext := filepath.Ext(path)
	if ext == ".js" || ext == ".jsx" || ext == ".mjs" || ext == ".cjs" {
		base := strings.TrimSuffix(path, ext)
		for _, tsExt := range []string{".ts", ".tsx", ".mts", ".cts"} {
			if ok, err := r.isFile(base + tsExt); err != nil || ok {
				return okPath(base+tsExt, ok, err)
			}
		}
	}

	for _, ext := range r.opts.Extensions {
		if ok, err := r.isFile(path + ext); err != nil || ok {
			return okPath(path+ext, ok, err)
		}
	}

	isDir, err := afero.IsDir(r.fs, path)
	if err != nil || !isDir {
		return "", nil
	}

	if isPackage {
		pkg, err := r.packageJSON(path)
		if err != nil {
			return "", err
		}
		if pkg != nil {
			for _, entry := range []string{pkg.Module, pkg.Main} {
				if entry == "" {
					continue
				}
				resolved, err := r.tryPath(filepath.Join(path, filepath.FromSlash(entry)), false)
				if err != nil || resolved != "" {
					return resolved, err
				}
			}
		}
	}

	for _, ext := range r.opts.Extensions {
		index := filepath.Join(path, "index"+ext)
		if ok, err := r.isFile(index); err != nil || ok {
			return okPath(index, ok, err)
		}
	}
	return "", nil
}

func (r *Resolver) isFile(path string) (bool, error) {
	info, err := r.fs.Stat(path)
	if err != nil {
		return false, nil
	}
	return !info.IsDir(), nil
}

func (r *Resolver) packageJSON(dir string) (*packageJSON, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if pkg, ok := r.packages[dir]; ok {
		return pkg, nil
	}

	path := filepath.Join(dir, "package.json")
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		r.packages[dir] = nil
		return nil, nil
	}
	pkg := &packageJSON{}
	if err := json.Unmarshal(data, pkg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	r.packages[dir] = pkg
	return pkg, nil
}

func okPath(path string, ok bool, err error) (string, error) {
	if err != nil || !ok {
		return "", err
	}
	return path, nil
}
