package cmd

import (
	"github.com/spf13/cobra"

	"github.com/activetigger/atstress/internal/testsuite"
	"github.com/activetigger/atstress/pkg/client"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "atstress",
		Short: "atstress load tests an ActiveTigger deployment.",
		Long: `atstress load tests an ActiveTigger deployment by running many concurrent simulated users, each
creating an account and a project and training a model, then removes everything it created.

Persistent config can be saved in a config file so it doesn't have to be specified every command.

Example structure:
url: https://activetigger.example.org/api
username: root
password: secret
stress:
  workers: 10
  duration: 15m

The location of this file can be passed in using the --config argument.
If not provided, $HOME/.atstress.yaml is used.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file (default is $HOME/.atstress.yaml)")
	client.AddApiConnectionCommandlineArgs(cmd)

	cmd.AddCommand(
		versionCmd(testsuite.New()),
		stressCmd(testsuite.New()),
		checkCmd(testsuite.New()),
		monitorCmd(testsuite.New()),
	)

	return cmd
}
