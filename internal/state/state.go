// Package state persists what the last build saw so the next one only
// rebuilds files whose sources, or whose dependencies, changed.
package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"
)

const (
	Dir                 = ".husk"
	StateFile           = "state.json"
	CurrentStateVersion = "1"
)

// FileState tracks one built source file.
type FileState struct {
	Hash         string    `json:"hash"`
	Dependencies []string  `json:"dependencies,omitempty"`
	Outputs      []string  `json:"outputs,omitempty"`
	Usages       int       `json:"usages,omitempty"`
	Warnings     int       `json:"warnings,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// State tracks every built file for incremental builds.
type State struct {
	Version      string               `json:"version"`
	UpdatedAt    time.Time            `json:"updated_at"`
	Files        map[string]FileState `json:"files"`
	OutputHashes map[string]string    `json:"output_hashes,omitempty"`
}

// NewState creates a new empty state
func NewState() *State {
	return &State{
		Version:      CurrentStateVersion,
		Files:        make(map[string]FileState),
		OutputHashes: make(map[string]string),
	}
}

// Path returns the state file location for a project root.
func Path(root string) string {
	return filepath.Join(root, Dir, StateFile)
}

// Load reads the state of a project. A missing file yields an empty state.
func Load(fs afero.Fs, root string) (*State, error) {
	data, err := afero.ReadFile(fs, Path(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewState(), nil
		}
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}

	migrateState(&state)

	return &state, nil
}

// Save writes the state of a project.
func (s *State) Save(fs afero.Fs, root string) error {
	migrateState(s)
	s.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	path := Path(root)
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0o644)
}

// SetFile records the outcome of building file.
func (s *State) SetFile(file string, entry FileState) {
	entry.UpdatedAt = time.Now()
	sort.Strings(entry.Dependencies)
	s.Files[file] = entry
}

// GetFileHash returns the stored hash for a file
func (s *State) GetFileHash(file string) (string, bool) {
	fs, ok := s.Files[file]
	if !ok {
		return "", false
	}
	return fs.Hash, true
}

// HasChanged returns true if the file hash differs from stored
func (s *State) HasChanged(file, currentHash string) bool {
	storedHash, ok := s.GetFileHash(file)
	if !ok {
		return true // New file
	}
	return storedHash != currentHash
}

// RemoveFile removes a file from state tracking
func (s *State) RemoveFile(file string) {
	delete(s.Files, file)
}

// ChangedFiles returns files that have changed based on provided hashes
func (s *State) ChangedFiles(currentHashes map[string]string) []string {
	changed := make([]string, 0)
	for file, hash := range currentHashes {
		if s.HasChanged(file, hash) {
			changed = append(changed, file)
		}
	}
	sort.Strings(changed)
	return changed
}

// DeletedFiles returns files that no longer exist
func (s *State) DeletedFiles(currentFiles map[string]bool) []string {
	deleted := make([]string, 0)
	for file := range s.Files {
		if !currentFiles[file] {
			deleted = append(deleted, file)
		}
	}
	sort.Strings(deleted)
	return deleted
}

// SetOutputHash records the content hash for a generated output file.
func (s *State) SetOutputHash(path, hash string) {
	if s.OutputHashes == nil {
		s.OutputHashes = make(map[string]string)
	}
	s.OutputHashes[path] = hash
}

func migrateState(s *State) {
	if s.Files == nil {
		s.Files = make(map[string]FileState)
	}
	if s.OutputHashes == nil {
		s.OutputHashes = make(map[string]string)
	}
	if s.Version == "" {
		s.Version = CurrentStateVersion
	}
}
