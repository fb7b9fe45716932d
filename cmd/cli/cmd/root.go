package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pdsactl",
	Short: "pdsactl inspects and monitors pdsa risk assessment campaigns",
	Long: `pdsactl is the operator tool for pdsa, the adaptive Monte-Carlo risk assessment
of a transmission grid.

A campaign enumerates contingencies from a network model, simulates them over many
operating points and protection seeds, and stops once the statistical indicators of
every contingency are below the tolerance. pdsactl works on its inputs and outputs:

  List the contingency catalog of a network:
    pdsactl contingencies network.yaml

  Summarise an analysis document:
    pdsactl report analysis.json --top 20

  Follow a running campaign:
    pdsactl status --results

Configuration:
  Set the controller endpoint via environment variables or a config file:
    PDSA_URL    Controller status API (default: http://localhost:6161)`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".pdsactl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".pdsactl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "PDSA_VARNAME"
	viper.SetEnvPrefix("PDSA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pdsactl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "pdsa controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))
}
