package fileutil

import (
	"path/filepath"
	"sort"

	"github.com/morozRed/husk/internal/state"
)

// RelativeDependencies converts absolute dependency paths to the
// slash-separated root-relative form stored in state.
func RelativeDependencies(root string, deps []string) []string {
	out := make([]string, 0, len(deps))
	for _, dep := range deps {
		rel, err := filepath.Rel(root, dep)
		if err != nil {
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	sort.Strings(out)
	return DedupeStrings(out)
}

// ImpactedWithReasons returns changed and deleted files plus their reverse
// dependency closure, with the reasons each file was pulled in.
func ImpactedWithReasons(st *state.State, changed, deleted []string) ([]string, map[string][]string) {
	reverseDeps := make(map[string][]string)
	for file, fileState := range st.Files {
		for _, dep := range fileState.Dependencies {
			reverseDeps[dep] = append(reverseDeps[dep], file)
		}
	}
	for file := range reverseDeps {
		sort.Strings(reverseDeps[file])
	}

	reasons := make(map[string][]string)
	seen := make(map[string]bool)
	queue := make([]string, 0, len(changed)+len(deleted))

	for _, file := range changed {
		queue = append(queue, file)
		seen[file] = true
		reasons[file] = appendReason(reasons[file], "changed")
	}
	for _, file := range deleted {
		if !seen[file] {
			queue = append(queue, file)
		}
		seen[file] = true
		reasons[file] = appendReason(reasons[file], "deleted")
	}

	for len(queue) > 0 {
		file := queue[0]
		queue = queue[1:]

		for _, dependent := range reverseDeps[file] {
			reasons[dependent] = appendReason(reasons[dependent], "depends on "+file)
			if seen[dependent] {
				continue
			}
			seen[dependent] = true
			queue = append(queue, dependent)
		}
	}

	impacted := make([]string, 0, len(seen))
	for file := range seen {
		impacted = append(impacted, file)
		sort.Strings(reasons[file])
	}
	sort.Strings(impacted)
	return impacted, reasons
}

func appendReason(existing []string, reason string) []string {
	for _, item := range existing {
		if item == reason {
			return existing
		}
	}
	return append(existing, reason)
}
