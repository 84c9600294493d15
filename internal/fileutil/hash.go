package fileutil

import (
	"os"
	"path/filepath"

	"github.com/morozRed/husk/internal/ignore"
	"github.com/morozRed/husk/internal/parser"
	"github.com/spf13/afero"
)

func HashFile(fs afero.Fs, path string) (string, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", err
	}
	return parser.HashContent(content), nil
}

// ScanFileHashes walks rootPath and hashes every file a parser accepts,
// keyed by slash-separated path relative to rootPath.
func ScanFileHashes(fs afero.Fs, rootPath string, registry *parser.Registry, ignoreRules []string) (map[string]string, error) {
	hashes := make(map[string]string)
	ignoreMatcher := ignore.NewMatcher(ignoreRules)

	err := afero.Walk(fs, rootPath, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		relPath, err := filepath.Rel(rootPath, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if ignoreMatcher.ShouldIgnore(relPath, info.IsDir()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			return nil
		}

		if _, ok := registry.GetParserForFile(path); !ok {
			return nil
		}

		hash, err := HashFile(fs, path)
		if err != nil {
			return err
		}
		hashes[relPath] = hash

		return nil
	})

	return hashes, err
}
