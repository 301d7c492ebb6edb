package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/botdas/internal/cmd/config"
	appconfig "github.com/Iron-Ham/botdas/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "botdas",
	Short: "Automated dependency upgrades for hosted repositories",
	Long: `Botdas upgrades a dependency in a hosted repository. It snapshots the
repository tree, asks a planner, a parser and a codemod agent how to perform
the upgrade, and opens a pull request with the proposed changes and a
migration document.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/botdas/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(dashboardCmd)
	config.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	appconfig.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appconfig.ConfigDir())
		viper.AddConfigPath("$HOME/.config/botdas")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("BOTDAS")
	// Replace dots with underscores for nested keys in env vars
	// e.g., BOTDAS_HOSTING_TOKEN for hosting.token
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
