package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherhq/api/pkg/domain/notification"
	"github.com/gatherhq/api/pkg/domain/shared"
	"github.com/gatherhq/api/pkg/logger"
)

// fakeOutboxRepo is an in-memory notification.OutboxRepository.
type fakeOutboxRepo struct {
	mu      sync.Mutex
	entries map[shared.ID]*notification.Outbox
}

func newFakeOutboxRepo() *fakeOutboxRepo {
	return &fakeOutboxRepo{entries: make(map[shared.ID]*notification.Outbox)}
}

func (f *fakeOutboxRepo) Create(_ context.Context, o *notification.Outbox) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[o.ID()] = o
	return nil
}

func (f *fakeOutboxRepo) CreateInTx(ctx context.Context, _ *sql.Tx, o *notification.Outbox) error {
	return f.Create(ctx, o)
}

func (f *fakeOutboxRepo) GetByID(_ context.Context, id shared.ID) (*notification.Outbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: outbox entry", shared.ErrNotFound)
	}
	return o, nil
}

func (f *fakeOutboxRepo) Update(_ context.Context, o *notification.Outbox) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[o.ID()]; !ok {
		return fmt.Errorf("%w: outbox entry", shared.ErrNotFound)
	}
	f.entries[o.ID()] = o
	return nil
}

func (f *fakeOutboxRepo) FetchPending(_ context.Context, workerID string, limit int) ([]*notification.Outbox, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	var due []*notification.Outbox
	for _, o := range f.entries {
		if o.Status() == notification.OutboxStatusPending && !o.ScheduledAt().After(now) {
			due = append(due, o)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt().Before(due[j].CreatedAt()) })
	if len(due) > limit {
		due = due[:limit]
	}
	for _, o := range due {
		o.Lock(workerID)
	}
	return due, nil
}

func (f *fakeOutboxRepo) ReleaseStale(_ context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, o := range f.entries {
		if o.Status() == notification.OutboxStatusProcessing && o.LockedAt() != nil && o.LockedAt().Before(olderThan) {
			o.MarkAttemptFailed(errors.New("released after stale lock"))
			n++
		}
	}
	return n, nil
}

func (f *fakeOutboxRepo) CountPending(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, o := range f.entries {
		if o.Status() == notification.OutboxStatusPending {
			n++
		}
	}
	return n, nil
}

func (f *fakeOutboxRepo) DeleteProcessed(_ context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, o := range f.entries {
		if o.Status().IsTerminal() && o.ProcessedAt() != nil && o.ProcessedAt().Before(olderThan) {
			delete(f.entries, id)
			n++
		}
	}
	return n, nil
}

// failingNotifier fails the first `failures` deliveries, then succeeds.
type failingNotifier struct {
	mu       sync.Mutex
	failures int
	seen     []string
}

func (n *failingNotifier) Notify(_ context.Context, event *notification.Outbox) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures > 0 {
		n.failures--
		return errors.New("receiver unavailable")
	}
	n.seen = append(n.seen, event.EventType())
	return nil
}

func seedOutboxEntry(t *testing.T, repo *fakeOutboxRepo, eventType string) *notification.Outbox {
	t.Helper()
	actorID := shared.NewID()
	o, err := notification.NewOutbox(shared.NewID(), eventType, &actorID, nil, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), o))
	return o
}

func TestOutboxDispatcher_DispatchBatch(t *testing.T) {
	repo := newFakeOutboxRepo()
	notifier := &failingNotifier{}
	d := NewOutboxDispatcher(repo, notifier, logger.Nop())
	ctx := context.Background()

	seedOutboxEntry(t, repo, notification.EventMemberJoined)
	seedOutboxEntry(t, repo, notification.EventMemberBlocked)

	dispatched, failed, err := d.DispatchBatch(ctx, "worker-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, dispatched)
	assert.Equal(t, 0, failed)
	assert.ElementsMatch(t, []string{notification.EventMemberJoined, notification.EventMemberBlocked}, notifier.seen)

	for _, o := range repo.entries {
		assert.Equal(t, notification.OutboxStatusProcessed, o.Status())
		assert.NotNil(t, o.ProcessedAt())
	}

	// Nothing left to claim.
	dispatched, failed, err = d.DispatchBatch(ctx, "worker-1", 10)
	require.NoError(t, err)
	assert.Zero(t, dispatched)
	assert.Zero(t, failed)
}

func TestOutboxDispatcher_DispatchBatch_FailureMarksForRetry(t *testing.T) {
	repo := newFakeOutboxRepo()
	notifier := &failingNotifier{failures: 1}
	d := NewOutboxDispatcher(repo, notifier, logger.Nop())
	ctx := context.Background()

	entry := seedOutboxEntry(t, repo, notification.EventInviteRedeemed)

	dispatched, failed, err := d.DispatchBatch(ctx, "worker-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, dispatched)
	assert.Equal(t, 1, failed)

	stored, err := repo.GetByID(ctx, entry.ID())
	require.NoError(t, err)
	assert.Equal(t, notification.OutboxStatusPending, stored.Status())
	assert.Equal(t, 1, stored.RetryCount())
	assert.Contains(t, stored.LastError(), "receiver unavailable")
	// Backoff pushes the entry out of the next batch.
	assert.True(t, stored.ScheduledAt().After(time.Now().UTC()))
}

func TestOutboxDispatcher_DispatchBatch_RetryBudgetExhausted(t *testing.T) {
	repo := newFakeOutboxRepo()
	notifier := &failingNotifier{failures: notification.DefaultMaxRetries}
	d := NewOutboxDispatcher(repo, notifier, logger.Nop())
	ctx := context.Background()

	entry := seedOutboxEntry(t, repo, notification.EventMemberRemoved)

	for i := 0; i < notification.DefaultMaxRetries; i++ {
		stored, err := repo.GetByID(ctx, entry.ID())
		require.NoError(t, err)
		stored.MarkAttemptFailed(errors.New("receiver unavailable"))
		require.NoError(t, repo.Update(ctx, stored))
	}

	stored, err := repo.GetByID(ctx, entry.ID())
	require.NoError(t, err)
	assert.Equal(t, notification.OutboxStatusFailed, stored.Status())

	// Failed entries are terminal and never re-fetched.
	dispatched, failed, err := d.DispatchBatch(ctx, "worker-1", 10)
	require.NoError(t, err)
	assert.Zero(t, dispatched)
	assert.Zero(t, failed)
}

func TestOutboxDispatcher_ReleaseStale(t *testing.T) {
	repo := newFakeOutboxRepo()
	d := NewOutboxDispatcher(repo, &failingNotifier{}, logger.Nop())
	ctx := context.Background()

	entry := seedOutboxEntry(t, repo, notification.EventJoinApproved)
	entry.Lock("worker-gone")

	// Locks younger than the cutoff stay put.
	released, err := d.ReleaseStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, released)

	released, err = d.ReleaseStale(ctx, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	stored, err := repo.GetByID(ctx, entry.ID())
	require.NoError(t, err)
	assert.Equal(t, notification.OutboxStatusPending, stored.Status())
}

func TestOutboxDispatcher_DeleteProcessed(t *testing.T) {
	repo := newFakeOutboxRepo()
	d := NewOutboxDispatcher(repo, &failingNotifier{}, logger.Nop())
	ctx := context.Background()

	processed := seedOutboxEntry(t, repo, notification.EventMemberJoined)
	processed.MarkProcessed()
	seedOutboxEntry(t, repo, notification.EventMemberJoined)

	deleted, err := d.DeleteProcessed(ctx, time.Now().UTC().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.GetByID(ctx, processed.ID())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
