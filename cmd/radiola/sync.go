package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/radiola/internal/queue"
	"github.com/franz/radiola/internal/util"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect and replay the offline write queue",
	Long: `Manage the durable queue of local writes awaiting remote replay.

'status' shows what is queued. 'run' elects this process as the single
executor and drains the queue in order; with --watch it keeps running
and replays new writes as they are committed.`,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queued writes and executor leadership",
	RunE:  runSyncStatus,
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Drain the write queue against the remote",
	RunE:  runSyncRun,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncRunCmd)

	syncRunCmd.Flags().Bool("watch", false, "keep running and replay new writes as they arrive")
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	q := queue.New(db)
	pending, err := q.Pending()
	if err != nil {
		return err
	}

	if lease, err := db.GetLease(queue.LeaseName); err != nil {
		return err
	} else if lease != nil && lease.ExpiresAt.After(time.Now()) {
		util.InfoLog("Executor lease held by %s, expires %s", lease.Owner, humanize.Time(lease.ExpiresAt))
	} else {
		util.InfoLog("No executor running")
	}

	if len(pending) == 0 {
		util.SuccessLog("Queue is empty")
		return nil
	}

	util.InfoLog("")
	util.InfoLog("=== Queued Writes ===")
	for _, rec := range pending {
		util.InfoLog("%s (%d mutations, key %s)", rec.Name, len(rec.Mutations), rec.Key)
		if rec.Attempts > 0 {
			util.WarnLog("  %d failed attempts, last error: %s", rec.Attempts, rec.LastError)
		}
		util.InfoLog("  Queued %s", humanize.Time(rec.CreatedAt))
	}
	util.InfoLog("")
	util.InfoLog("%d writes queued. Run 'radiola sync run' to replay them.", len(pending))

	return nil
}

func runSyncRun(cmd *cobra.Command, args []string) error {
	applyLogFlags()
	watch, _ := cmd.Flags().GetBool("watch")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	q := queue.New(db)
	client := newRemoteClient()

	// Every queued transaction carries the sync function it was committed
	// under; register the standard ones.
	q.Register("sync tracks", queue.RemoteSyncFunc(client, "tracks"))
	q.Register("sync channels", queue.RemoteSyncFunc(client, "channels"))
	q.OnPermanentFailure(queue.InvalidateOnFailure(db))

	executor := queue.NewExecutor(q)

	if watch {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		util.InfoLog("Watching the write queue (ctrl-c to stop)")
		if err := executor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	applied, err := executor.RunOnce(context.Background())
	if err != nil {
		if errors.Is(err, util.ErrNotLeader) {
			util.WarnLog("Another executor holds the lease, nothing to do")
			return nil
		}
		if applied > 0 {
			util.WarnLog("Applied %d writes before the failure; the rest stay queued", applied)
		}
		return err
	}

	if applied == 0 {
		util.InfoLog("Queue is empty")
		return nil
	}

	util.SuccessLog("Applied %d queued writes", applied)
	return nil
}
