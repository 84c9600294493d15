package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func RunStatus(cmd *cobra.Command, args []string) error {
	start := time.Now()
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}

	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	b := &builder{p: p, registry: newRegistry()}
	st := p.loadState()

	hashes, err := b.scan()
	if err != nil {
		return err
	}
	plan, err := b.plan(st, hashes, nil, false)
	if err != nil {
		return err
	}

	summary := RunSummary{
		Mode:          "status",
		RootPath:      p.root,
		Scanned:       len(hashes),
		Reused:        max(len(hashes)-len(plan.Targets), 0),
		Changed:       len(plan.Changed),
		Deleted:       len(plan.Deleted),
		Impacted:      len(plan.Impacted),
		DurationMS:    time.Since(start).Milliseconds(),
		ChangedFiles:  plan.Changed,
		DeletedFiles:  plan.Deleted,
		ImpactedFiles: plan.Impacted,
		Reasons:       plan.Reasons,
	}
	for _, file := range st.Files {
		summary.Usages += file.Usages
	}

	return PrintRunSummary(cmd.OutOrStdout(), summary, asJSON)
}
