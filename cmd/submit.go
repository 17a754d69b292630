package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quietreach/reach-cli/internal/domain"
)

func newSubmitCmd(app *app) *cobra.Command {
	var accountID string
	var kindRaw string
	var target string
	var message string
	var wait bool
	var asJSON bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue one action and wait for its outcome",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := domain.ParseActionKind(kindRaw)
			if err != nil {
				return err
			}

			handle, err := app.dispatcher.Submit(domain.ActionRequest{
				Kind:            kind,
				AccountID:       domain.AccountID(accountID),
				Target:          target,
				Message:         message,
				WaitForCapacity: wait,
			})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			outcome, err := app.dispatcher.Await(ctx, handle)
			if err != nil {
				app.dispatcher.Cancel(handle)
				return fmt.Errorf("await outcome: %w", err)
			}

			if err := writeOutcome(cmd, outcome, asJSON); err != nil {
				return err
			}

			if outcome.Status != domain.StatusSucceeded {
				return fmt.Errorf("action %s: %s (%s)", outcome.RequestID, outcome.Status, outcome.Reason)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account to act as")
	cmd.Flags().StringVar(&kindRaw, "kind", "", "action kind: connect, message, view_profile or scrape")
	cmd.Flags().StringVar(&target, "target", "", "profile the action applies to")
	cmd.Flags().StringVar(&message, "message", "", "message body (message actions only)")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for rate capacity instead of failing fast")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up waiting after this duration")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}

func writeOutcome(cmd *cobra.Command, outcome domain.ActionOutcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	line := fmt.Sprintf("%s: %s after %d attempt(s)", outcome.RequestID, outcome.Status, outcome.Attempts)
	if outcome.Reason != "" {
		line += ": " + outcome.Reason
	}
	if !outcome.RetryAt.IsZero() {
		line += fmt.Sprintf(" (capacity frees at %s)", outcome.RetryAt.Format("2006-01-02 15:04 MST"))
	}

	_, err := fmt.Fprintln(cmd.OutOrStdout(), line)
	return err
}
