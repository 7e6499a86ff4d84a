package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oshokin/camwatch/internal/domain/liveness"
)

var pingCmd = &cobra.Command{
	Use:   "ping <device>",
	Short: "Probe one camera now.",
	Long: `Asks the running monitor to probe the camera with the given ID or name once.
The result is printed only; it does not change the monitored status.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		client, err := dial(ctx)
		if err != nil {
			return err
		}

		defer func() {
			_ = client.Close()
		}()

		device, reachable, err := client.ProbeDevice(ctx, args[0])
		if err != nil {
			return err
		}

		status := liveness.StatusDown
		if reachable {
			status = liveness.StatusUp
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s): %s\n", status.Emoji(), device.Name, device.Address, status)

		return nil
	},
}
