package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/morozRed/husk/internal/config"
	"github.com/morozRed/husk/internal/engine"
	"github.com/morozRed/husk/internal/fileutil"
	"github.com/morozRed/husk/internal/parser"
	"github.com/morozRed/husk/internal/state"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// project is a loaded configuration together with the filesystem and
// logger the commands run against.
type project struct {
	root   string
	cfg    *config.Config
	fs     afero.Fs
	logger zerolog.Logger
}

func loadProject(cmd *cobra.Command) (*project, error) {
	dir, err := OptionalStringFlag(cmd, "dir")
	if err != nil {
		return nil, err
	}
	configFile, err := OptionalStringFlag(cmd, "config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(config.LoadOptions{Dir: dir, ConfigFile: configFile})
	if err != nil {
		return nil, err
	}
	if err := applyConfigLogLevel(cmd, cfg.LogLevel); err != nil {
		return nil, err
	}

	return &project{
		root:   cfg.Root,
		cfg:    cfg,
		fs:     afero.NewOsFs(),
		logger: log.Logger,
	}, nil
}

func (p *project) newSession() (*engine.Session, error) {
	opts, err := engine.OptionsFromConfig(p.cfg, p.fs, p.logger)
	if err != nil {
		return nil, err
	}
	return engine.NewSession(opts), nil
}

// ignoreRules returns the configured rules plus the output directory, so
// a build never reads its own outputs.
func (p *project) ignoreRules() []string {
	rules := append([]string{}, p.cfg.Ignore...)
	if rel, err := filepath.Rel(p.root, p.cfg.OutDir); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
		rules = append(rules, "/"+filepath.ToSlash(rel)+"/")
	}
	return rules
}

func (p *project) abs(rel string) string {
	if filepath.IsAbs(rel) {
		return filepath.Clean(rel)
	}
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

func (p *project) rel(path string) string {
	rel, err := filepath.Rel(p.root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (p *project) loadState() *state.State {
	st, err := state.Load(p.fs, p.root)
	if err != nil {
		if IsCorruptStateError(err) {
			p.logger.Warn().Err(err).Msg("Corrupt state file, treating all files as changed")
		} else {
			p.logger.Warn().Err(err).Msg("Failed to load state, treating all files as changed")
		}
		return state.NewState()
	}
	return st
}

// writeResult writes the rewritten source and one file per artifact kind
// under the output directory. Files without usages produce nothing. It
// returns the content hash of every output, keyed by root-relative path.
func (p *project) writeResult(result *engine.BuildResult) (map[string]string, error) {
	if !result.HasArtifacts() {
		return nil, nil
	}
	rel := p.rel(result.Path)
	target := filepath.Join(p.cfg.OutDir, filepath.FromSlash(rel))
	base := strings.TrimSuffix(target, filepath.Ext(target))

	files := map[string]string{target: result.Code}
	for _, artifact := range result.Artifacts {
		files[base+"."+artifact.Kind] = fileutil.EnsureTrailingNewline(artifact.Payload)
	}

	hashes := make(map[string]string, len(files))
	for _, path := range fileutil.MapKeysSorted(files) {
		data := []byte(files[path])
		if err := fileutil.WriteIfChanged(p.fs, path, data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		hashes[p.rel(path)] = parser.HashContent(data)
	}
	return hashes, nil
}

// removeOutputs deletes outputs recorded for a file that no longer exists
// or no longer has usages.
func (p *project) removeOutputs(outputs []string) {
	for _, rel := range outputs {
		if err := p.fs.Remove(p.abs(rel)); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn().Err(err).Str("file", rel).Msg("Failed to remove stale output")
		}
	}
}

func IsCorruptStateError(err error) bool {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &typeErr)
}

func CountRewrittenOutputs(before, after map[string]string) int {
	rewritten := 0
	seen := make(map[string]bool, len(before)+len(after))
	for file := range before {
		seen[file] = true
	}
	for file := range after {
		seen[file] = true
	}
	for file := range seen {
		if before[file] != after[file] {
			rewritten++
		}
	}
	return rewritten
}
