package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keshon/jukebox/internal/config"
	"github.com/keshon/jukebox/internal/logger"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "jukebox-cli",
	Short: "Operator tool for the jukebox bot",
	Long: `jukebox-cli manages the bot's slash commands and reads its history
without starting the gateway connection.

Examples:
  jukebox-cli list --guild 123
  jukebox-cli sync --guild 123 --threshold 0
  jukebox-cli history --guild 123`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		logger.Init(logger.Options{Level: level})
		config.LoadDotEnv()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd, syncCmd, clearCmd, historyCmd)

	rootCmd.PersistentFlags().String("log-level", "warn", "Log level")
	rootCmd.PersistentFlags().StringP("guild", "g", "", "Guild ID")
	_ = rootCmd.MarkPersistentFlagRequired("guild")
}
