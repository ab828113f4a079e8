// Package cmd implements the nagochat command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/linanwx/nagochat/config"
	"github.com/linanwx/nagochat/logger"
	"github.com/spf13/cobra"
)

var configDirFlag string

var rootCmd = &cobra.Command{
	Use:   "nagochat",
	Short: "A chat widget that forwards your messages to an LLM",
	Long: `nagochat is a small chat front-end for hosted LLM completion endpoints.

Each message you send is forwarded on its own to the configured provider
(OpenRouter by default) and the reply is appended to the conversation.

Run 'nagochat onboard' first to create a config file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if !cmd.Flags().Changed("config-dir") {
			return nil
		}
		config.SetConfigDir(configDirFlag)
		// Logging was set up from the default location before flags were parsed.
		return InitLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "Config directory (default ~/.nagochat, or $NAGOCHAT_CONFIG_DIR)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logger.Close()
		os.Exit(1)
	}
	logger.Close()
}

// InitLogging configures the logger from the config file, falling back to
// defaults when there is none yet.
func InitLogging() error {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	dir, _ := config.ConfigDir()
	return logger.Init(cfg.BuildLoggerConfig(), dir)
}
