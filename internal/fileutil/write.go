package fileutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

func WriteIfChanged(fs afero.Fs, path string, data []byte) error {
	_, err := WriteIfChangedTracked(fs, path, data)
	return err
}

// WriteIfChangedTracked writes data unless path already holds it and
// reports whether it wrote. Missing parent directories are created.
func WriteIfChangedTracked(fs afero.Fs, path string, data []byte) (bool, error) {
	existing, err := afero.ReadFile(fs, path)
	if err == nil && bytes.Equal(existing, data) {
		return false, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func EnsureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// WriteIfMissing writes data only when nothing exists at path. It reports
// whether it wrote.
func WriteIfMissing(fs afero.Fs, path string, data []byte) (bool, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", path, err)
	}
	if exists {
		return false, nil
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	return true, afero.WriteFile(fs, path, data, 0o644)
}
