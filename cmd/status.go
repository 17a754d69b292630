package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	statusadapter "github.com/quietreach/reach-cli/internal/adapters/render/status"
	"github.com/quietreach/reach-cli/internal/application"
	"github.com/quietreach/reach-cli/internal/domain"
)

func newStatusCmd(app *app) *cobra.Command {
	var accountID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored sessions and their remaining action budgets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var statuses []application.SessionStatus
			if accountID == "" {
				all, err := app.status.Overview(cmd.Context())
				if err != nil {
					return err
				}
				statuses = all
			} else {
				status, err := app.status.ByAccount(cmd.Context(), domain.AccountID(accountID))
				if err != nil {
					return err
				}
				statuses = []application.SessionStatus{status}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}

			rendered, err := app.statusRenderer(statuses, statusadapter.RenderOptions{
				Now:           app.now(),
				ExpiryWarning: app.cfg.Sessions.RefreshMargin,
			})
			if err != nil {
				return fmt.Errorf("render status: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "limit output to one account")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print statuses as JSON")

	return cmd
}
