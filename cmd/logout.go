package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quietreach/reach-cli/internal/domain"
)

func newLogoutCmd(app *app) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Drop an account's session and stored cookies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.sessions.Logout(cmd.Context(), domain.AccountID(accountID)); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Logged out %s\n", accountID)
			return err
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account identifier")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}
