package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/radiola/internal/store"
	"github.com/franz/radiola/internal/util"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Inspect and fetch catalogue channels",
}

var channelsLocalCmd = &cobra.Command{
	Use:   "local",
	Short: "List channels in the local cache",
	RunE:  runChannelsLocal,
}

var channelsRemoteCmd = &cobra.Command{
	Use:   "remote <slug>",
	Short: "Fetch a channel from the remote API without caching it",
	Args:  cobra.ExactArgs(1),
	RunE:  runChannelsRemote,
}

var channelsPullCmd = &cobra.Command{
	Use:   "pull <slug>",
	Short: "Resolve a channel into the local cache",
	Long: `Resolve a channel by slug and cache it locally.

Resolution order: local cache, then the remote API, then the frozen v1
archive. A channel found only in the archive is imported once and marked
as a legacy (v1) channel.`,
	Args: cobra.ExactArgs(1),
	RunE: runChannelsPull,
}

func init() {
	rootCmd.AddCommand(channelsCmd)
	channelsCmd.AddCommand(channelsLocalCmd)
	channelsCmd.AddCommand(channelsRemoteCmd)
	channelsCmd.AddCommand(channelsPullCmd)
}

func runChannelsLocal(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	channels, err := db.ListChannels()
	if err != nil {
		return err
	}

	if len(channels) == 0 {
		util.InfoLog("No channels cached. Run 'radiola channels pull <slug>' first.")
		return nil
	}

	util.InfoLog("=== Cached Channels ===")
	for _, ch := range channels {
		printChannel(ch)
	}
	util.InfoLog("")
	util.InfoLog("%d channels cached", len(channels))

	return nil
}

func runChannelsRemote(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	client := newRemoteClient()
	ch, err := client.GetChannel(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to fetch channel: %w", err)
	}

	util.InfoLog("%s (%s)", ch.Name, ch.Slug)
	if ch.Description != "" {
		util.InfoLog("  %s", ch.Description)
	}
	util.InfoLog("  Tracks: %d", ch.TrackCount)
	if ch.UpdatedAt != nil {
		util.InfoLog("  Updated: %s", humanize.Time(*ch.UpdatedAt))
	}

	return nil
}

func runChannelsPull(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	p := newPuller(db, nil)
	ch, err := p.PullChannel(context.Background(), args[0])
	if err != nil {
		return err
	}

	util.SuccessLog("Channel %s cached", ch.Slug)
	printChannel(ch)
	util.InfoLog("")
	util.InfoLog("Next step: radiola tracks pull %s", ch.Slug)

	return nil
}

func printChannel(ch *store.Channel) {
	source := "remote"
	if ch.IsLegacy() {
		source = "legacy"
	}

	util.InfoLog("%s (%s, %s)", ch.Name, ch.Slug, source)
	util.InfoLog("  Tracks: %d", ch.TrackCount)
	if ch.TracksSyncedAt != nil {
		util.InfoLog("  Synced: %s", humanize.Time(*ch.TracksSyncedAt))
	} else {
		util.InfoLog("  Synced: never")
	}
	if ch.Busy {
		util.WarnLog("  A track pull is in progress")
	}
}
