package cli

import (
	"fmt"
	"path/filepath"

	"github.com/morozRed/husk/internal/config"
	"github.com/morozRed/husk/internal/fileutil"
	"github.com/morozRed/husk/internal/state"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

const defaultConfig = `# husk configuration. Every key can be overridden by HUSK_<KEY>,
# e.g. HUSK_FEATURES_SOFT_ERRORS=true.
features:
  soft_errors: false
  side_effect_removal: false
  dangerous_code_remover: true
tags:
  - module: husk
    import: css
    processor: css
ignore: []
ignore_imports: []
aliases: {}
class_name_prefix: ""
out_dir: .husk/out
track_dependencies: true
log_level: info
`

func RunInit(cmd *cobra.Command, args []string) error {
	dir, err := OptionalStringFlag(cmd, "dir")
	if err != nil {
		return err
	}
	if dir == "" {
		dir = "."
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	fs := afero.NewOsFs()
	configPath := filepath.Join(root, config.FileName+".yaml")
	wrote, err := fileutil.WriteIfMissing(fs, configPath, []byte(defaultConfig))
	if err != nil {
		return err
	}
	if wrote {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Keeping existing %s\n", configPath)
	}

	if exists, _ := afero.Exists(fs, state.Path(root)); !exists {
		if err := state.NewState().Save(fs, root); err != nil {
			return fmt.Errorf("failed to write initial state: %w", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized state at %s\n", filepath.Join(root, state.Dir))

	noBuild, err := OptionalBoolFlag(cmd, "no-build")
	if err != nil {
		return err
	}
	if noBuild {
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Running initial build...")
	return RunBuild(cmd, nil)
}
