package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/quietreach/reach-cli/internal/domain"
)

func newLoginCmd(app *app) *cobra.Command {
	var accountID string
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate an account and store its session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("REACH_PASSWORD")
			}
			if password == "" {
				return errors.New("no password given: pass --password or set REACH_PASSWORD")
			}

			session, resumed, err := app.sessions.Login(cmd.Context(), domain.AccountID(accountID), email, password)
			if err != nil {
				return err
			}

			verb := "Logged in"
			if resumed {
				verb = "Already logged in"
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s: session %s expires %s\n",
				verb, session.AccountID, session.ID, session.ExpiresAt.Format("2006-01-02 15:04 MST"))
			return err
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "account identifier")
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "login password (falls back to REACH_PASSWORD)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}
