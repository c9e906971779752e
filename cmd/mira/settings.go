package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect or change the persisted session",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved display name and webhook URL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.svc.Start(cmd.Context()); err != nil {
			return err
		}

		session := a.svc.Session()
		name := session.DisplayName
		if name == "" {
			name = "(not set)"
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "name:       %s\n", name)
		fmt.Fprintf(out, "webhook:    %s\n", session.WebhookEndpoint)
		fmt.Fprintf(out, "reply mode: %s\n", a.svc.ReplyMode())
		return nil
	},
}

var settingsSetWebhookCmd = &cobra.Command{
	Use:   "set-webhook URL",
	Short: "Validate and save the webhook URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.svc.Start(cmd.Context()); err != nil {
			return err
		}

		n, err := a.svc.SaveEndpoint(cmd.Context(), "", args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", n.Title, n.Description)
		return nil
	},
}

var settingsResetNameCmd = &cobra.Command{
	Use:   "reset-name",
	Short: "Forget the saved display name",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(os.Stderr)
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.svc.Start(cmd.Context()); err != nil {
			return err
		}
		return a.svc.ResetName(cmd.Context())
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd, settingsSetWebhookCmd, settingsResetNameCmd)
}
