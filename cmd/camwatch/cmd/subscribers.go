package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	subscribersCmd = &cobra.Command{
		Use:   "subscribers",
		Short: "Manage notification subscribers.",
		Long:  "Lists, adds and removes the chats that receive camera notifications on the running monitor.",
	}

	subscribersListCmd = &cobra.Command{
		Use:   "list",
		Short: "List subscribers and pending access requests.",
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

			raw, err := client.ListSubscribers(ctx)
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), raw)
			}

			w := cmd.OutOrStdout()
			fields := raw.GetFields()

			_, _ = fmt.Fprintln(w, "Subscribers:")

			for _, s := range fields["subscribers"].GetListValue().GetValues() {
				entry := s.GetStructValue().GetFields()
				_, _ = fmt.Fprintf(w, "  %s (since %s)\n",
					entry["chat_id"].GetStringValue(),
					entry["added_at"].GetStringValue(),
				)
			}

			_, _ = fmt.Fprintln(w, "Pending:")

			for _, p := range fields["pending"].GetListValue().GetValues() {
				entry := p.GetStructValue().GetFields()
				_, _ = fmt.Fprintf(w, "  %s %s (requested %s)\n",
					entry["chat_id"].GetStringValue(),
					entry["display_name"].GetStringValue(),
					entry["requested_at"].GetStringValue(),
				)
			}

			return nil
		},
	}

	subscribersAddCmd = &cobra.Command{
		Use:   "add <chat-id>",
		Short: "Subscribe a chat.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			client, err := dial(ctx)
			if err != nil {
				return err
			}

			defer func() {
				_ = client.Close()
			}()

			result, err := client.AddSubscriber(ctx, chatID)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", chatID, result)

			return nil
		},
	}

	subscribersRemoveCmd = &cobra.Command{
		Use:   "remove <chat-id>",
		Short: "Unsubscribe a chat.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			client, err := dial(ctx)
			if err != nil {
				return err
			}

			defer func() {
				_ = client.Close()
			}()

			result, err := client.RemoveSubscriber(ctx, chatID)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", chatID, result)

			return nil
		},
	}
)

func parseChatID(value string) (int64, error) {
	chatID, err := strconv.ParseInt(value, 10, 64)
	if err != nil || chatID == 0 {
		return 0, fmt.Errorf("invalid chat id %q", value)
	}

	return chatID, nil
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	subscribersListCmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON document")
	subscribersCmd.AddCommand(subscribersListCmd, subscribersAddCmd, subscribersRemoveCmd)
}
