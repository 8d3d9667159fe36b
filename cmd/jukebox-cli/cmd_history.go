package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/keshon/jukebox/internal/config"
	"github.com/keshon/jukebox/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print a guild's command and track history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadCLI()
		if err != nil {
			return err
		}
		store, err := storage.New(cmd.Context(), cfg.StoragePath)
		if err != nil {
			return err
		}
		defer store.Close()

		guildID, _ := cmd.Flags().GetString("guild")
		commands, err := store.FetchCommandHistory(guildID)
		if err != nil {
			return err
		}
		tracks, err := store.FetchTrackHistory(guildID)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tUSER\tCOMMAND\tARGS\tOUTCOME")
		for _, c := range commands {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.Datetime.Format(time.DateTime), c.Username, c.Command, c.Param, c.Outcome)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WHEN\tSOURCE\tTITLE")
		for _, t := range tracks {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.Datetime.Format(time.DateTime), t.Source, t.Title)
		}
		return w.Flush()
	},
}
