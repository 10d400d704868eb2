package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowlens/flowlens/internal/common"
	commonconfig "github.com/flowlens/flowlens/internal/common/config"
	"github.com/flowlens/flowlens/internal/importer/configuration"
)

const (
	CustomConfigLocation string = "config"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "importer",
		SilenceUsage: true,
		Short:        "Imports process data from engines and zeebe brokers",
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	if err := viper.BindPFlag(CustomConfigLocation, cmd.PersistentFlags().Lookup(CustomConfigLocation)); err != nil {
		panic(err)
	}

	cmd.AddCommand(
		runCmd(),
		resetIndexCmd(),
	)

	return cmd
}

func loadConfig() (configuration.ImporterConfiguration, error) {
	var config configuration.ImporterConfiguration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, "./config/importer", userSpecifiedConfigs)

	err := commonconfig.Validate(config)
	if err != nil {
		commonconfig.LogValidationErrors(err)
	}
	return config, err
}
