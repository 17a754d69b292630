package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/quietreach/reach-cli/internal/application"
	"github.com/quietreach/reach-cli/internal/domain"
)

type batchFile struct {
	Actions []batchAction `toml:"actions"`
}

type batchAction struct {
	Account         string `toml:"account"`
	Kind            string `toml:"kind"`
	Target          string `toml:"target"`
	Message         string `toml:"message"`
	WaitForCapacity bool   `toml:"wait_for_capacity"`
}

func newBatchCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Queue every action from a TOML file and wait for all outcomes",
		Long:  "Reads [[actions]] entries from a TOML file and queues them all at once. Actions for the same account run in submission order; actions for different accounts run concurrently.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read batch file: %w", err)
			}

			var file batchFile
			if err := toml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("decode batch file: %w", err)
			}
			if len(file.Actions) == 0 {
				return fmt.Errorf("batch file %q contains no actions", args[0])
			}

			handles := make([]*application.Handle, 0, len(file.Actions))
			outcomes := make([]domain.ActionOutcome, 0, len(file.Actions))
			for i, action := range file.Actions {
				kind, err := domain.ParseActionKind(action.Kind)
				if err != nil {
					return fmt.Errorf("action %d: %w", i+1, err)
				}

				handle, err := app.dispatcher.Submit(domain.ActionRequest{
					Kind:            kind,
					AccountID:       domain.AccountID(action.Account),
					Target:          action.Target,
					Message:         action.Message,
					WaitForCapacity: action.WaitForCapacity,
				})
				if err != nil {
					return fmt.Errorf("action %d: %w", i+1, err)
				}
				handles = append(handles, handle)
			}

			for _, handle := range handles {
				outcome, err := app.dispatcher.Await(cmd.Context(), handle)
				if err != nil {
					return fmt.Errorf("await outcome: %w", err)
				}
				outcomes = append(outcomes, outcome)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(outcomes); err != nil {
					return err
				}
			} else {
				for _, outcome := range outcomes {
					if err := writeOutcome(cmd, outcome, false); err != nil {
						return err
					}
				}
			}

			failed := 0
			for _, outcome := range outcomes {
				if outcome.Status != domain.StatusSucceeded {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d actions did not succeed", failed, len(outcomes))
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "All %d actions succeeded\n", len(outcomes))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print outcomes as JSON")

	return cmd
}
