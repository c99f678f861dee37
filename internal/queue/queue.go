// Package queue makes local writes survive offline periods and process
// restarts. A write is applied optimistically to the cache by its caller,
// appended durably to the mutation log on commit, and replayed against the
// remote by a single elected executor. Replay is idempotent: a mutation
// key reaches the remote at most once even if the log is drained twice.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/franz/radiola/internal/remote"
	"github.com/franz/radiola/internal/store"
	"github.com/franz/radiola/internal/util"
)

// SyncFunc performs the real remote operations for one queued transaction.
// It must classify failures: transient ones surface as retriable errors
// (see util.IsRetryableError), everything else is treated as permanent.
// Re-application of an already-processed idempotency key must be a no-op.
type SyncFunc func(ctx context.Context, rec *store.MutationRecord) error

// FailureHandler is invoked when a mutation fails permanently and is
// removed from the queue. The handler is where optimistic local state gets
// rolled back or invalidated.
type FailureHandler func(rec *store.MutationRecord, err error)

// Queue owns the durable mutation log and the sync-function registry
type Queue struct {
	store *store.Store

	mu        sync.RWMutex
	syncFuncs map[string]SyncFunc
	onFailure FailureHandler

	// Buffered wake signal for the executor; an enqueue while the
	// executor is already awake is coalesced.
	wake chan struct{}
}

// New creates a Queue on the shared store
func New(st *store.Store) *Queue {
	return &Queue{
		store:     st,
		syncFuncs: make(map[string]SyncFunc),
		wake:      make(chan struct{}, 1),
	}
}

// Register binds a sync function to a transaction name
func (q *Queue) Register(name string, fn SyncFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.syncFuncs[name] = fn
}

// OnPermanentFailure installs the handler for permanently failed mutations
func (q *Queue) OnPermanentFailure(h FailureHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFailure = h
}

// Depth returns the number of queued transactions
func (q *Queue) Depth() (int, error) {
	return q.store.MutationCount()
}

// Pending returns the queued transactions in replay order
func (q *Queue) Pending() ([]*store.MutationRecord, error) {
	return q.store.ListMutations()
}

func (q *Queue) syncFunc(name string) SyncFunc {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.syncFuncs[name]
}

func (q *Queue) failureHandler() FailureHandler {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.onFailure
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Tx accumulates mutations for one named sync function. Mutations inside a
// transaction reach the remote in the order they were added.
type Tx struct {
	queue      *Queue
	name       string
	collection string
	metadata   map[string]string
	mutations  []store.Mutation
	committed  bool
}

// Begin opens a transaction scoped to a named sync function. The metadata
// travels with the record; "channel_id" is used by the executor to
// invalidate the affected cache views after a successful replay.
func (q *Queue) Begin(name, collection string, metadata map[string]string) *Tx {
	return &Tx{
		queue:      q,
		name:       name,
		collection: collection,
		metadata:   metadata,
	}
}

// Insert queues a create of a full entity
func (t *Tx) Insert(id string, entity interface{}) error {
	raw, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	t.mutations = append(t.mutations, store.Mutation{
		Type:   store.MutationInsert,
		ID:     id,
		Entity: raw,
	})
	return nil
}

// Update queues a field diff against an entity. The optional original
// pre-image is kept for rollback by failure handlers.
func (t *Tx) Update(id string, changes map[string]string, original interface{}) error {
	var raw json.RawMessage
	if original != nil {
		b, err := json.Marshal(original)
		if err != nil {
			return fmt.Errorf("failed to marshal original: %w", err)
		}
		raw = b
	}

	t.mutations = append(t.mutations, store.Mutation{
		Type:     store.MutationUpdate,
		ID:       id,
		Changes:  changes,
		Original: raw,
	})
	return nil
}

// Delete queues a removal by id
func (t *Tx) Delete(id string) {
	t.mutations = append(t.mutations, store.Mutation{
		Type: store.MutationDelete,
		ID:   id,
	})
}

// Commit assigns a fresh idempotency key and durably appends the
// transaction. After Commit returns the write survives a process restart;
// the executor is woken to replay it.
func (t *Tx) Commit() (string, error) {
	if t.committed {
		return "", fmt.Errorf("transaction already committed")
	}
	if len(t.mutations) == 0 {
		return "", fmt.Errorf("cannot commit empty transaction")
	}

	key := uuid.NewString()
	rec := &store.MutationRecord{
		Key:        key,
		Name:       t.name,
		Collection: t.collection,
		Metadata:   t.metadata,
		Mutations:  t.mutations,
	}

	if err := t.queue.store.AppendMutation(rec); err != nil {
		return "", err
	}

	t.committed = true
	t.queue.notify()
	util.DebugLog("queue: committed %s (%d mutations, key %s)", t.name, len(t.mutations), key)
	return key, nil
}

// RemoteSyncFunc builds a SyncFunc that replays a transaction's mutations
// against a remote collection in order. Each mutation gets a derived
// idempotency key so a partially replayed transaction resumes without
// duplicating the operations that already landed.
func RemoteSyncFunc(client *remote.Client, collection string) SyncFunc {
	return func(ctx context.Context, rec *store.MutationRecord) error {
		for i, m := range rec.Mutations {
			opKey := fmt.Sprintf("%s/%d", rec.Key, i)

			var err error
			switch m.Type {
			case store.MutationInsert:
				err = client.Create(ctx, collection, opKey, m.Entity)
			case store.MutationUpdate:
				err = client.Update(ctx, collection, m.ID, opKey, m.Changes)
			case store.MutationDelete:
				err = client.Delete(ctx, collection, m.ID, opKey)
			default:
				err = fmt.Errorf("%w: unknown mutation type %q", util.ErrPermanent, m.Type)
			}

			if err != nil {
				return fmt.Errorf("mutation %d (%s %s): %w", i, m.Type, m.ID, err)
			}
		}
		return nil
	}
}
