package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/franz/radiola/internal/store"
	"github.com/franz/radiola/internal/util"
)

const (
	// LeaseName is the shared lease that elects the single executor
	LeaseName = "executor"

	// DefaultLeaseTTL bounds how long a crashed executor blocks the next
	// election. The running executor renews well before expiry.
	DefaultLeaseTTL = 30 * time.Second

	// DefaultPollInterval is how often a non-leader retries the election
	// and a leader re-checks the log when no wake signal arrives.
	DefaultPollInterval = 5 * time.Second
)

// Executor drains the mutation log strictly in order. At most one executor
// per database applies mutations at a time; the lease enforces that across
// processes.
type Executor struct {
	queue *Queue
	store *store.Store
	owner string

	leaseTTL     time.Duration
	pollInterval time.Duration
	retryConfig  *util.RetryConfig
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithLeaseTTL overrides the leadership lease duration
func WithLeaseTTL(ttl time.Duration) ExecutorOption {
	return func(e *Executor) { e.leaseTTL = ttl }
}

// WithPollInterval overrides the election and idle poll interval
func WithPollInterval(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.pollInterval = d }
}

// WithRetryConfig overrides the in-place retry applied to transient
// failures before a transaction is left queued for the next pass
func WithRetryConfig(cfg *util.RetryConfig) ExecutorOption {
	return func(e *Executor) { e.retryConfig = cfg }
}

// NewExecutor creates an executor for the queue. Each executor instance
// gets a unique owner id so lease renewal only succeeds for the holder.
func NewExecutor(q *Queue, opts ...ExecutorOption) *Executor {
	e := &Executor{
		queue:        q,
		store:        q.store,
		owner:        uuid.NewString(),
		leaseTTL:     DefaultLeaseTTL,
		pollInterval: DefaultPollInterval,
		retryConfig:  util.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Owner returns the executor's lease owner id
func (e *Executor) Owner() string {
	return e.owner
}

// Run drives the executor until ctx is cancelled. It competes for the
// leadership lease, drains the log while leader, and steps back to
// candidate when the lease is lost. The lease is released on shutdown so
// a successor does not wait out the TTL.
func (e *Executor) Run(ctx context.Context) error {
	renewEvery := e.leaseTTL / 3
	ticker := time.NewTicker(renewEvery)
	defer ticker.Stop()

	leader := false
	defer func() {
		if leader {
			if err := e.store.ReleaseLease(LeaseName, e.owner); err != nil {
				util.WarnLog("executor: failed to release lease: %v", err)
			}
		}
	}()

	for {
		ok, err := e.store.AcquireLease(LeaseName, e.owner, e.leaseTTL)
		if err != nil {
			return err
		}
		if ok != leader {
			leader = ok
			if leader {
				util.DebugLog("executor %s: became leader", e.owner)
			} else {
				util.DebugLog("executor %s: lost leadership", e.owner)
			}
		}

		if leader {
			if _, err := e.drain(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// Transient failure at the head of the queue; back off
				// until the next tick instead of hammering the remote.
				util.WarnLog("executor: drain paused: %v", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.queue.wake:
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single election attempt and, if leader, one drain
// pass. It returns util.ErrNotLeader when another executor holds the
// lease. Used by the one-shot sync command and by tests.
func (e *Executor) RunOnce(ctx context.Context) (int, error) {
	ok, err := e.store.AcquireLease(LeaseName, e.owner, e.leaseTTL)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, util.ErrNotLeader
	}
	defer func() {
		if err := e.store.ReleaseLease(LeaseName, e.owner); err != nil {
			util.WarnLog("executor: failed to release lease: %v", err)
		}
	}()

	return e.drain(ctx)
}

// drain applies queued transactions head-first until the log is empty or a
// transient failure stops progress. FIFO order is strict: a retriable
// failure at the head blocks everything behind it.
func (e *Executor) drain(ctx context.Context) (int, error) {
	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return applied, err
		}

		rec, err := e.store.NextMutation()
		if err != nil {
			return applied, err
		}
		if rec == nil {
			return applied, nil
		}

		if err := e.apply(ctx, rec); err != nil {
			return applied, err
		}
		applied++
	}
}

// apply replays one transaction. Success and permanent failure both remove
// the record; only a retriable failure keeps it at the head for the next
// pass.
func (e *Executor) apply(ctx context.Context, rec *store.MutationRecord) error {
	fn := e.queue.syncFunc(rec.Name)
	if fn == nil {
		err := fmt.Errorf("%w: no sync function registered for %q", util.ErrPermanent, rec.Name)
		e.discard(rec, err)
		return nil
	}

	// Transient failures are retried in place with backoff; only an
	// exhausted retry budget leaves the record queued for the next pass.
	err := util.Retry(e.retryConfig, func() error {
		return fn(ctx, rec)
	}, fmt.Sprintf("replay %s", rec.Name))
	if err == nil {
		removed, rmErr := e.store.RemoveMutation(rec.Key)
		if rmErr != nil {
			return rmErr
		}
		// A lost race with another executor means the record was already
		// applied and removed; only the winner refreshes the cache.
		if removed {
			e.invalidate(rec)
			util.DebugLog("executor: applied %s (key %s)", rec.Name, rec.Key)
		}
		return nil
	}

	// A shutdown mid-replay leaves the record queued, never discarded
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if util.IsRetryableError(err) {
		if recErr := e.store.RecordMutationFailure(rec.Key, err); recErr != nil {
			util.WarnLog("executor: failed to record attempt for %s: %v", rec.Key, recErr)
		}
		return fmt.Errorf("transient failure on %s (attempt %d): %w", rec.Key, rec.Attempts+1, err)
	}

	e.discard(rec, err)
	return nil
}

// discard removes a permanently failed transaction and hands it to the
// failure handler so optimistic local state can be rolled back.
func (e *Executor) discard(rec *store.MutationRecord, cause error) {
	util.ErrorLog("executor: dropping %s (key %s): %v", rec.Name, rec.Key, cause)

	removed, err := e.store.RemoveMutation(rec.Key)
	if err != nil {
		util.WarnLog("executor: failed to remove %s: %v", rec.Key, err)
		return
	}
	if !removed {
		return
	}

	if h := e.queue.failureHandler(); h != nil {
		h(rec, cause)
	}
}

// invalidate marks the channel named in the transaction metadata stale so
// the next pull reconciles the cache with what the remote actually holds.
func (e *Executor) invalidate(rec *store.MutationRecord) {
	channelID := rec.Metadata["channel_id"]
	if channelID == "" {
		return
	}
	if err := e.store.InvalidateChannel(channelID); err != nil {
		util.WarnLog("executor: failed to invalidate channel %s: %v", channelID, err)
	}
}

// InvalidateOnFailure is the default permanent-failure handler: it discards
// the optimistic local state for the affected channel by forcing a re-sync.
func InvalidateOnFailure(st *store.Store) FailureHandler {
	return func(rec *store.MutationRecord, err error) {
		channelID := rec.Metadata["channel_id"]
		if channelID == "" {
			return
		}
		util.WarnLog("queue: rolling back channel %s after permanent failure: %v", channelID, err)
		if ivErr := st.InvalidateChannel(channelID); ivErr != nil {
			util.WarnLog("queue: failed to invalidate channel %s: %v", channelID, ivErr)
		}
	}
}
