package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/franz/radiola/internal/queue"
	"github.com/franz/radiola/internal/store"
	"github.com/franz/radiola/internal/util"
)

var tracksCmd = &cobra.Command{
	Use:   "tracks",
	Short: "Inspect and fetch channel tracks",
}

var tracksLocalCmd = &cobra.Command{
	Use:   "local <slug>",
	Short: "List cached tracks for a channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracksLocal,
}

var tracksRemoteCmd = &cobra.Command{
	Use:   "remote <slug>",
	Short: "Fetch a channel's tracks from the remote API without caching them",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracksRemote,
}

var tracksPullCmd = &cobra.Command{
	Use:   "pull <slug>",
	Short: "Refresh the cached track set for a channel",
	Long: `Refresh and list the track set of a locally cached channel.

A fresh channel is served straight from the cache. A stale one is
re-fetched from its source: the remote API for current channels, the
frozen v1 archive (append-only) for legacy imports.`,
	Args: cobra.ExactArgs(1),
	RunE: runTracksPull,
}

var tracksDeleteCmd = &cobra.Command{
	Use:   "delete <track-id>",
	Short: "Delete a track locally and queue the remote deletion",
	Long: `Delete a cached track.

The track is removed from the cache immediately; the remote deletion is
queued durably and replayed by 'radiola sync run', so the command works
offline.`,
	Args: cobra.ExactArgs(1),
	RunE: runTracksDelete,
}

func init() {
	rootCmd.AddCommand(tracksCmd)
	tracksCmd.AddCommand(tracksLocalCmd)
	tracksCmd.AddCommand(tracksRemoteCmd)
	tracksCmd.AddCommand(tracksPullCmd)
	tracksCmd.AddCommand(tracksDeleteCmd)

	tracksLocalCmd.Flags().Bool("details", false, "include provider and duration metadata")
}

func runTracksLocal(cmd *cobra.Command, args []string) error {
	applyLogFlags()
	details, _ := cmd.Flags().GetBool("details")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ch, err := db.GetChannelBySlug(util.NormalizeSlug(args[0]))
	if err != nil {
		return err
	}
	if ch == nil {
		return fmt.Errorf("%w: %s", util.ErrChannelNotFound, args[0])
	}

	if details {
		rows, err := db.GetTrackDetails(ch.ID)
		if err != nil {
			return err
		}
		for _, t := range rows {
			line := fmt.Sprintf("%s  %s", t.ID, t.Title)
			if t.Provider != "" {
				line += fmt.Sprintf(" [%s]", t.Provider)
			}
			util.InfoLog("%s", line)
			util.InfoLog("  %s", t.URL)
		}
		util.InfoLog("")
		util.InfoLog("%d tracks cached for %s", len(rows), ch.Slug)
		return nil
	}

	tracks, err := db.GetTracksByChannel(ch.ID)
	if err != nil {
		return err
	}
	printTracks(tracks)
	util.InfoLog("")
	util.InfoLog("%d tracks cached for %s", len(tracks), ch.Slug)

	return nil
}

func runTracksRemote(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	client := newRemoteClient()
	tracks, err := client.AllTracks(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to fetch tracks: %w", err)
	}

	for _, t := range tracks {
		util.InfoLog("%s  %s", t.ID, t.Title)
		util.InfoLog("  %s", t.URL)
	}
	util.InfoLog("")
	util.InfoLog("%d tracks on remote", len(tracks))

	return nil
}

func runTracksPull(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	bar := newPullProgress()
	p := newPuller(db, bar.update)

	tracks, err := p.PullTracks(context.Background(), args[0])
	bar.finish()
	if err != nil {
		if errors.Is(err, util.ErrBusy) {
			util.WarnLog("Another pull is already running for %s, try again shortly", args[0])
			return nil
		}
		return err
	}

	util.SuccessLog("%d tracks for %s", len(tracks), util.NormalizeSlug(args[0]))
	return nil
}

func runTracksDelete(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	track, err := db.GetTrackByID(args[0])
	if err != nil {
		return err
	}
	if track == nil {
		return fmt.Errorf("track %s: %w", args[0], util.ErrNotFound)
	}

	// Enqueue first so a crash between the two steps cannot lose the
	// remote deletion; the replay is idempotent either way.
	q := queue.New(db)
	tx := q.Begin("sync tracks", "tracks", map[string]string{"channel_id": track.ChannelID})
	tx.Delete(track.ID)
	if _, err := tx.Commit(); err != nil {
		return err
	}

	if err := db.DeleteTrack(track.ID); err != nil {
		return err
	}

	util.SuccessLog("Deleted %s (%s)", track.ID, track.Title)
	util.InfoLog("Remote deletion queued. Run 'radiola sync run' to replay it.")
	return nil
}

func printTracks(tracks []*store.Track) {
	for _, t := range tracks {
		util.InfoLog("%s  %s", t.ID, t.Title)
		util.InfoLog("  %s", t.URL)
	}
}
