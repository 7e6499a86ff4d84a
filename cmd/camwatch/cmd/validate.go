package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/camwatch/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration file.",
	Long:  "Loads the configuration with defaults and environment overrides applied and reports every problem found.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		settings, err := config.Load(configPath)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: %d devices, probe %s, storage %s\n",
			configPath,
			len(settings.Devices),
			settings.Probe.Method,
			settings.Storage.Backend,
		)

		return nil
	},
}
