package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/franz/radiola/internal/util"
)

var pullCmd = &cobra.Command{
	Use:   "pull [slug]",
	Short: "Pull a channel and its tracks into the local cache",
	Long: `Resolve a channel by slug and refresh its full track set.

This is the one-stop sync command: it runs 'channels pull' and
'tracks pull' in sequence. Large channels are imported in batches with
a progress bar.

Without a slug the most recently pulled channel is refreshed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

// prefs is the persisted CLI state shared by every invocation
type prefs struct {
	LastChannel string `json:"last_channel,omitempty"`
}

func runPull(cmd *cobra.Command, args []string) error {
	applyLogFlags()
	ctx := context.Background()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var state prefs
	if err := db.GetAppState(&state); err != nil {
		return err
	}

	var slug string
	if len(args) == 1 {
		slug = args[0]
	} else if state.LastChannel != "" {
		slug = state.LastChannel
		util.InfoLog("Refreshing last pulled channel %s", slug)
	} else {
		return fmt.Errorf("no channel given and none pulled before (usage: radiola pull <slug>)")
	}

	bar := newPullProgress()
	p := newPuller(db, bar.update)

	start := time.Now()

	ch, err := p.PullChannel(ctx, slug)
	if err != nil {
		return err
	}

	tracks, err := p.PullTracks(ctx, ch.Slug)
	bar.finish()
	if err != nil {
		if errors.Is(err, util.ErrBusy) {
			util.WarnLog("Another pull is already running for %s, try again shortly", ch.Slug)
			return nil
		}
		return err
	}

	util.SuccessLog("Pulled %s: %d tracks in %v", ch.Slug, len(tracks), time.Since(start).Round(time.Millisecond))

	state.LastChannel = ch.Slug
	if err := db.SetAppState(&state); err != nil {
		util.WarnLog("Failed to remember last channel: %v", err)
	}

	return nil
}

// pullProgress renders batch progress for bulk track imports. The bar is
// created lazily on the first callback, when the total is known, and only
// when stdout is a terminal.
type pullProgress struct {
	bar *progressbar.ProgressBar
}

func newPullProgress() *pullProgress {
	return &pullProgress{}
}

func (p *pullProgress) update(done, total int) {
	if !util.IsTerminal(os.Stdout.Fd()) || util.IsQuiet() {
		return
	}

	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Importing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("tracks"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	p.bar.Set(done)
}

func (p *pullProgress) finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}
