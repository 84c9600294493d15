package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func setupLogging(cmd *cobra.Command, args []string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: "15:04:05"})

	level, err := OptionalStringFlag(cmd, "log-level")
	if err != nil {
		return err
	}
	if level == "" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return nil
	}
	return applyLogLevel(level)
}

// applyConfigLogLevel uses the configured level unless --log-level was given.
func applyConfigLogLevel(cmd *cobra.Command, level string) error {
	if flag := cmd.Flags().Lookup("log-level"); flag != nil && flag.Changed {
		return nil
	}
	return applyLogLevel(level)
}

func applyLogLevel(value string) error {
	level, err := zerolog.ParseLevel(value)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", value, err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}
