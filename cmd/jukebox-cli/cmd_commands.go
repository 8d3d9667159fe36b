package main

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"github.com/keshon/jukebox/internal/command"
	"github.com/keshon/jukebox/internal/config"
	"github.com/keshon/jukebox/internal/discord"
	"github.com/keshon/jukebox/internal/dispatch"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the slash commands registered in a guild",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := guildRegistry(cmd)
		if err != nil {
			return err
		}
		specs, err := reg.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, s := range specs {
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", s.Name, s.Description)
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Register play, skip and stop in a guild",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := guildRegistry(cmd)
		if err != nil {
			return err
		}
		threshold, _ := cmd.Flags().GetInt("threshold")
		if !cmd.Flags().Changed("threshold") {
			cfg, err := config.LoadCLI()
			if err != nil {
				return err
			}
			threshold = cfg.ClearThreshold
		}

		res, err := command.Sync(cmd.Context(), reg, dispatch.Specs(), threshold)
		fmt.Fprintf(cmd.OutOrStdout(), "existing: %d, cleared: %t, registered: %s\n",
			res.Existing, res.Cleared, strings.Join(res.Registered, ", "))
		if command.IsFatal(err) {
			return err
		}
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every slash command registered in a guild",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := guildRegistry(cmd)
		if err != nil {
			return err
		}
		if err := reg.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cleared")
		return nil
	},
}

func init() {
	syncCmd.Flags().Int("threshold", command.DefaultClearThreshold, "Clear the guild first when more commands than this are registered")
}

// guildRegistry opens a REST-only Discord session for the --guild flag.
func guildRegistry(cmd *cobra.Command) (*discord.CommandRegistry, error) {
	cfg, err := config.LoadCLI()
	if err != nil {
		return nil, err
	}
	guildID, _ := cmd.Flags().GetString("guild")

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	self, err := dg.User("@me", discordgo.WithContext(cmd.Context()))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bot user: %w", err)
	}
	return discord.NewCommandRegistry(dg, self.ID, guildID, discord.NewCommandLimiter()), nil
}
