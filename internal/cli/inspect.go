package cli

import (
	"fmt"
	"strings"

	"github.com/morozRed/husk/internal/fileutil"
	"github.com/spf13/cobra"
)

func RunExports(cmd *cobra.Command, args []string) error {
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	session, err := p.newSession()
	if err != nil {
		return err
	}

	path := p.abs(args[0])
	names, err := session.GetExports(commandContext(cmd), path)
	if err != nil {
		return fmt.Errorf("failed to read exports of %s: %w", args[0], err)
	}

	if asJSON {
		return fileutil.PrintJSON(cmd.OutOrStdout(), map[string]any{
			"file":    p.rel(path),
			"exports": names,
		})
	}
	if len(names) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: no exports\n", p.rel(path))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
	return nil
}

func RunShake(cmd *cobra.Command, args []string) error {
	asJSON, err := OptionalBoolFlag(cmd, "json")
	if err != nil {
		return err
	}
	only, err := ParseOnly(cmd)
	if err != nil {
		return err
	}
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	session, err := p.newSession()
	if err != nil {
		return err
	}

	path := p.abs(args[0])
	reduction, err := session.Transform(commandContext(cmd), path, only)
	if err != nil {
		return fmt.Errorf("failed to reduce %s: %w", args[0], err)
	}
	reduction.Path = p.rel(path)
	reduction.Dependencies = fileutil.RelativeDependencies(p.root, reduction.Dependencies)

	if asJSON {
		return fileutil.PrintJSON(cmd.OutOrStdout(), reduction)
	}
	if reduction.Fallback != "" {
		p.logger.Warn().Str("file", reduction.Path).Str("reason", reduction.Fallback).Msg("Module kept as written")
	}
	fmt.Fprint(cmd.OutOrStdout(), fileutil.EnsureTrailingNewline(reduction.Code))
	return nil
}
