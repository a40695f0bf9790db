package cmd

import (
	"github.com/spf13/cobra"

	"github.com/activetigger/atstress/internal/common/runcontext"
	"github.com/activetigger/atstress/internal/testsuite"
)

// Smoke checks exercising one resource at a time. Each prints OK/FAIL lines and fails on the first FAIL.
func checkCmd(app *testsuite.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a single-resource smoke check against the service.",
	}
	cmd.AddCommand(
		checkSubCmd(app, "ping", "Ping the service once.", app.CheckPing),
		checkSubCmd(app, "project", "Create, verify and delete a project.", app.CheckProject),
		checkSubCmd(app, "training", "Start, detect and stop a training job in a temporary project.", app.CheckTraining),
		checkSubCmd(app, "user", "Create an account, grant and revoke its access to a temporary project.", app.CheckUser),
	)
	return cmd
}

func checkSubCmd(app *testsuite.App, use, short string, check func(ctx *runcontext.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return check(ctx)
		},
	}
}
