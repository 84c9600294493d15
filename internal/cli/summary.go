package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/morozRed/husk/internal/engine"
	"github.com/morozRed/husk/internal/fileutil"
)

// BuildFailure is a file that could not be built.
type BuildFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
	err   error
}

type RunSummary struct {
	Mode          string              `json:"mode"`
	RootPath      string              `json:"root_path"`
	OutputDir     string              `json:"output_dir,omitempty"`
	Scanned       int                 `json:"scanned"`
	Built         int                 `json:"built"`
	Reused        int                 `json:"reused"`
	Rewritten     int                 `json:"rewritten"`
	Changed       int                 `json:"changed"`
	Deleted       int                 `json:"deleted"`
	Impacted      int                 `json:"impacted"`
	Usages        int                 `json:"usages"`
	Failed        int                 `json:"failed"`
	CacheHits     int64               `json:"cache_hits,omitempty"`
	CacheMisses   int64               `json:"cache_misses,omitempty"`
	DurationMS    int64               `json:"duration_ms"`
	ChangedFiles  []string            `json:"changed_files,omitempty"`
	DeletedFiles  []string            `json:"deleted_files,omitempty"`
	ImpactedFiles []string            `json:"impacted_files,omitempty"`
	Reasons       map[string][]string `json:"reasons,omitempty"`
	Warnings      []engine.Warning    `json:"warnings,omitempty"`
	Failures      []BuildFailure      `json:"failures,omitempty"`
}

func PrintRunSummary(w io.Writer, summary RunSummary, asJSON bool) error {
	if asJSON {
		return fileutil.PrintJSON(w, summary)
	}

	fmt.Fprintf(
		w,
		"%s: scanned=%d built=%d reused=%d rewritten=%d usages=%d failed=%d changed=%d deleted=%d impacted=%d duration=%dms\n",
		summary.Mode,
		summary.Scanned,
		summary.Built,
		summary.Reused,
		summary.Rewritten,
		summary.Usages,
		summary.Failed,
		summary.Changed,
		summary.Deleted,
		summary.Impacted,
		summary.DurationMS,
	)
	if summary.OutputDir != "" && summary.Rewritten > 0 {
		fmt.Fprintf(w, "output: %s\n", summary.OutputDir)
	}

	if len(summary.ChangedFiles) > 0 {
		fmt.Fprintf(w, "changed files (%d): %s\n", len(summary.ChangedFiles), SummarizePaths(summary.ChangedFiles, 8))
	}
	if len(summary.DeletedFiles) > 0 {
		fmt.Fprintf(w, "deleted files (%d): %s\n", len(summary.DeletedFiles), SummarizePaths(summary.DeletedFiles, 8))
	}
	if len(summary.ImpactedFiles) > 0 {
		fmt.Fprintf(w, "impacted files (%d): %s\n", len(summary.ImpactedFiles), SummarizePaths(summary.ImpactedFiles, 8))
	}
	if len(summary.Reasons) > 0 {
		for _, file := range summary.ImpactedFiles {
			reasons := summary.Reasons[file]
			if len(reasons) == 0 {
				continue
			}
			fmt.Fprintf(w, "  %s <- %s\n", file, strings.Join(reasons, "; "))
		}
	}
	for _, failure := range summary.Failures {
		fmt.Fprintf(w, "error: %s: %s\n", failure.File, failure.Error)
	}
	for _, warning := range summary.Warnings {
		if warning.Line > 0 {
			fmt.Fprintf(w, "warning: %s:%d: %s\n", warning.File, warning.Line, warning.Message)
			continue
		}
		fmt.Fprintf(w, "warning: %s: %s\n", warning.File, warning.Message)
	}

	return nil
}

func SummarizePaths(paths []string, max int) string {
	if len(paths) <= max {
		return strings.Join(paths, ", ")
	}
	return fmt.Sprintf("%s ... (+%d more)", strings.Join(paths[:max], ", "), len(paths)-max)
}
