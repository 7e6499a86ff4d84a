package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/oshokin/camwatch/internal/api/grpc/monitor"
	"github.com/oshokin/camwatch/internal/domain/liveness"
)

// asJSON switches control commands to raw JSON output.
var asJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of every camera.",
	Long:  "Queries the running monitor and prints every camera with its debounced status, counters and timestamps.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		client, err := dial(ctx)
		if err != nil {
			return err
		}

		defer func() {
			_ = client.Close()
		}()

		raw, err := client.GetStatusRaw(ctx)
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(cmd.OutOrStdout(), raw)
		}

		devices, lastCycleAt, err := monitor.FromStatusStruct(raw)
		if err != nil {
			return err
		}

		return printStatus(cmd.OutOrStdout(), devices, lastCycleAt)
	},
}

// printStatus renders the device table.
func printStatus(w io.Writer, devices []liveness.DeviceStatus, lastCycleAt time.Time) error {
	if lastCycleAt.IsZero() {
		_, _ = fmt.Fprintln(w, "No cycle completed yet.")
	} else {
		_, _ = fmt.Fprintf(w, "Last cycle: %s\n\n", lastCycleAt.Local().Format(time.DateTime))
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tSTATUS\tFAILS\tOKS\tSINCE\tCHECKED")

	for _, d := range devices {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%d\t%d\t%s\t%s\n",
			d.Device.ID,
			d.Device.Name,
			d.Device.Address,
			d.Record.Status.Emoji(),
			d.Record.Status,
			d.Record.ConsecutiveFailures,
			d.Record.ConsecutiveSuccesses,
			formatLocal(d.Record.LastChangedAt),
			formatLocal(d.Record.LastCheckedAt),
		)
	}

	return tw.Flush()
}

func formatLocal(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Local().Format(time.DateTime)
}

// printJSON writes a protobuf message as indented JSON.
func printJSON(w io.Writer, message proto.Message) error {
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	statusCmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON document")
}
