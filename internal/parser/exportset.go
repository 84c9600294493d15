package parser

import (
	"sort"
	"strings"
)

// AllExports is the sentinel name meaning "every export of the module".
const AllExports = "*"

// SideEffectsOnly requests a module's side effects without any export.
const SideEffectsOnly = "side-effect"

// ExportSet is the set of export names requested from a module.
// The zero value is the empty set.
type ExportSet struct {
	all   bool
	names map[string]bool
}

// NewExportSet builds a set from names; "*" turns it into the all-set.
func NewExportSet(names ...string) ExportSet {
	set := ExportSet{}
	for _, name := range names {
		set = set.with(name)
	}
	return set
}

// All returns the set that requests every export.
func All() ExportSet {
	return ExportSet{all: true}
}

func (s ExportSet) with(name string) ExportSet {
	name = strings.TrimSpace(name)
	if name == "" {
		return s
	}
	if name == AllExports {
		return ExportSet{all: true}
	}
	if s.all {
		return s
	}
	names := make(map[string]bool, len(s.names)+1)
	for existing := range s.names {
		names[existing] = true
	}
	names[name] = true
	return ExportSet{names: names}
}

// IsAll reports whether the set is the "all" sentinel.
func (s ExportSet) IsAll() bool { return s.all }

// IsEmpty reports whether nothing is requested.
func (s ExportSet) IsEmpty() bool { return !s.all && len(s.names) == 0 }

// Has reports whether name is requested.
func (s ExportSet) Has(name string) bool {
	return s.all || s.names[name]
}

// Names returns the requested names sorted; nil for the all-set.
func (s ExportSet) Names() []string {
	if s.all {
		return nil
	}
	out := make([]string, 0, len(s.names))
	for name := range s.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Union returns a set containing the names of both sets.
func (s ExportSet) Union(other ExportSet) ExportSet {
	if s.all || other.all {
		return All()
	}
	out := s
	for name := range other.names {
		out = out.with(name)
	}
	return out
}

// Contains reports whether every name of other is in s.
func (s ExportSet) Contains(other ExportSet) bool {
	if s.all {
		return true
	}
	if other.all {
		return false
	}
	for name := range other.names {
		if !s.names[name] {
			return false
		}
	}
	return true
}

// Exports reports whether the set asks for at least one real export.
func (s ExportSet) Exports() bool {
	if s.all {
		return true
	}
	for name := range s.names {
		if name != SideEffectsOnly {
			return true
		}
	}
	return false
}

// Len is the number of requested names; -1 for the all-set.
func (s ExportSet) Len() int {
	if s.all {
		return -1
	}
	return len(s.names)
}

// Key is a stable string form used in cache keys.
func (s ExportSet) Key() string {
	if s.all {
		return AllExports
	}
	return strings.Join(s.Names(), ",")
}

func (s ExportSet) String() string {
	return "[" + s.Key() + "]"
}
