package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "reach",
		Short:         "reach: queue rate-aware LinkedIn automation actions",
		Long:          "reach manages LinkedIn sessions, enforces per-account action budgets, and executes queued connect/message/profile actions with retry and backoff.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, _ []string) error {
		return app.shutdown(cmd.Context())
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(app),
		newLogoutCmd(app),
		newSubmitCmd(app),
		newBatchCmd(app),
		newStatusCmd(app),
	)

	return rootCmd
}
