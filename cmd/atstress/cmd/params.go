package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/activetigger/atstress/internal/common/runcontext"
	"github.com/activetigger/atstress/internal/testsuite"
	"github.com/activetigger/atstress/internal/testsuite/configuration"
	"github.com/activetigger/atstress/pkg/client"
)

func initParams(cmd *cobra.Command, app *testsuite.App) error {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if err := client.LoadCommandlineArgsFromConfigFile(configFile); err != nil {
		return err
	}
	details, err := client.ExtractCommandlineApiConnectionDetails()
	if err != nil {
		return err
	}
	configuration.SetDefaults(viper.GetViper())
	config, err := configuration.Load(viper.GetViper())
	if err != nil {
		return err
	}
	app.Params.ApiConnectionDetails = details
	app.Params.Config = *config
	return nil
}

// signalContext returns a context that is cancelled on the first SIGINT/SIGTERM. A second signal terminates the
// process.
func signalContext() (*runcontext.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(stopSignal)
		select {
		case <-ctx.Done():
			return
		case sig := <-stopSignal:
			logrus.Warnf("received %s, stopping", sig)
			cancel()
		}
	}()
	return runcontext.New(ctx, logrus.NewEntry(logrus.StandardLogger())), cancel
}

// bindFlags binds each flag of flags to the config key it maps to.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}
