// Package cli wires the husk commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "husk",
		Short: "Extract styles from tagged expressions at build time",
		Long: `Husk finds tagged style expressions in JavaScript and TypeScript
sources, evaluates only the code they depend on, and replaces each
usage with a generated class name. The extracted CSS and the
rewritten sources are written to the output directory.

Configuration is read from husk.yaml, .env and HUSK_* variables.`,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}
	rootCmd.PersistentFlags().StringP("dir", "C", "", "Project root (default: working directory)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default: <root>/husk.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace|debug|info|warn|error")

	// Core Commands
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default husk.yaml and the .husk/ state directory",
		RunE:  RunInit,
	}
	initCmd.Flags().Bool("no-build", false, "Create files only, skip the initial build")

	buildCmd := &cobra.Command{
		Use:   "build [files...]",
		Short: "Build changed sources, or the given files",
		RunE:  RunBuild,
	}
	buildCmd.Flags().Bool("force", false, "Rebuild every file regardless of state")
	buildCmd.Flags().Bool("json", false, "Print machine-readable run summary")
	buildCmd.Flags().Bool("jsonl", false, "Print one JSON build result per line instead of writing outputs")
	buildCmd.Flags().Int("concurrency", 0, "Files built in parallel (default: config or CPU count)")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Build, then rebuild impacted files on every change",
		RunE:  RunWatch,
	}
	watchCmd.Flags().Duration("debounce", 0, "Quiet period before a rebuild (default 200ms)")

	// Inspect Commands
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show what changed and what build would rebuild",
		RunE:  RunStatus,
	}
	statusCmd.Flags().Bool("json", false, "Print machine-readable status output")

	exportsCmd := &cobra.Command{
		Use:   "exports <file>",
		Short: "List the exports of a module, following wildcard re-exports",
		Args:  cobra.ExactArgs(1),
		RunE:  RunExports,
	}
	exportsCmd.Flags().Bool("json", false, "Print machine-readable exports")

	shakeCmd := &cobra.Command{
		Use:   "shake <file>",
		Short: "Print the code kept when only some exports are requested",
		Args:  cobra.ExactArgs(1),
		RunE:  RunShake,
	}
	shakeCmd.Flags().StringSlice("only", []string{"*"}, "Exports to keep (comma-separated, * for all)")
	shakeCmd.Flags().Bool("json", false, "Print machine-readable reduction")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "husk %s\n", version)
		},
	}

	rootCmd.AddCommand(
		initCmd,
		buildCmd,
		watchCmd,
		statusCmd,
		exportsCmd,
		shakeCmd,
		versionCmd,
	)

	return rootCmd
}
