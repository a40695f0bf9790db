package cmd

import (
	"github.com/spf13/cobra"

	"github.com/activetigger/atstress/internal/monitor"
	"github.com/activetigger/atstress/internal/testsuite"
)

// Chart the service's ping round trip live. Prints summary statistics on exit.
func monitorCmd(app *testsuite.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Ping the service continuously and chart the response times.",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, err := cmd.Flags().GetDuration("interval")
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return app.Monitor(ctx, interval)
		},
	}
	cmd.Flags().Duration("interval", monitor.DefaultInterval, "interval between two pings")
	return cmd
}
