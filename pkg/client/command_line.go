package client

import (
	"fmt"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func AddApiConnectionCommandlineArgs(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("url", "http://localhost:5000", "specify the annotation service url")
	rootCmd.PersistentFlags().String("username", "", "administrator username")
	rootCmd.PersistentFlags().String("password", "", "administrator password")
	rootCmd.PersistentFlags().Bool("insecureSkipVerify", false, "skip verification of the server's TLS certificate")
	rootCmd.PersistentFlags().Duration("requestTimeout", defaultRequestTimeout, "timeout of a single request")
	for _, name := range []string{"url", "username", "password", "insecureSkipVerify", "requestTimeout"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

// LoadCommandlineArgsFromConfigFile reads cfgFile if given, else $HOME/.atstress.yaml if present.
// Environment variables override both.
func LoadCommandlineArgsFromConfigFile(cfgFile string) error {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error getting user home directory: %s", err)
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".atstress")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	err := viper.MergeInConfig()
	if err != nil {
		switch err.(type) {
		case viper.ConfigFileNotFoundError:
			// Only occurs when looking for the default .atstress file; users don't have to provide one
		default:
			return fmt.Errorf("[LoadCommandlineArgsFromConfigFile] error reading config file %s: %s", viper.ConfigFileUsed(), err)
		}
	}
	return nil
}

func ExtractCommandlineApiConnectionDetails() (*ApiConnectionDetails, error) {
	apiConnectionDetails := &ApiConnectionDetails{}
	if err := viper.Unmarshal(apiConnectionDetails); err != nil {
		return nil, err
	}
	return apiConnectionDetails, nil
}
