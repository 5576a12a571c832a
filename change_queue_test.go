package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/realtime/model"
)

// stubReplicator records replicated changes.
type stubReplicator struct {
	mu      sync.Mutex
	changes []model.SecurityChange
	err     error
}

func (r *stubReplicator) Replicate(_ context.Context, change model.SecurityChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.changes = append(r.changes, change)
	return nil
}

func (r *stubReplicator) replicated() []model.SecurityChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SecurityChange(nil), r.changes...)
}

func newTestQueue(t *testing.T, resetter *SessionPermissionResetter, extra ...QueueOption) *DataChangeQueue {
	t.Helper()
	base := []QueueOption{
		WithQueueResetter(resetter),
		WithQueueLogger(&NoopLogger{}),
	}
	queue, err := NewDataChangeQueue(append(base, extra...)...)
	require.NoError(t, err)
	return queue
}

func runQueue(t *testing.T, queue *DataChangeQueue) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go queue.Run(ctx)
}

func TestNewDataChangeQueue_RequiredOptions(t *testing.T) {
	resetter := newTestResetter(t, &stubSessions{}, &stubUsers{}, newStubCache())

	_, err := NewDataChangeQueue(WithQueueLogger(&NoopLogger{}))
	require.Error(t, err)

	_, err = NewDataChangeQueue(WithQueueResetter(resetter))
	require.Error(t, err)

	_, err = NewDataChangeQueue(WithQueueResetter(resetter), WithQueueLogger(&NoopLogger{}), WithQueueBuffer(-1))
	require.Error(t, err)
}

func TestDataChanged_ValidationRejectsBeforeQueueing(t *testing.T) {
	resetter := newTestResetter(t, &stubSessions{}, &stubUsers{}, newStubCache())
	queue := newTestQueue(t, resetter)
	// no worker running: an invalid change must still fail fast

	_, err := queue.DataChanged(context.Background(), model.SecurityChange{})
	require.Error(t, err)

	var engineErr *Error
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, ErrCodeValidation, engineErr.Code)

	// token events without a session require the token
	_, err = queue.DataChanged(context.Background(), model.SecurityChange{Kind: model.ChangeTokenRevoked})
	require.Error(t, err)
}

func TestDataChanged_AppliesChangeAndReturnsAffected(t *testing.T) {
	alice := groupedSession("s1", groupedUser("alice", "readers"))
	sessions := &stubSessions{sessions: []*model.Session{alice}}
	resetter := newTestResetter(t, sessions, &stubUsers{}, newStubCache())
	queue := newTestQueue(t, resetter)
	runQueue(t, queue)

	affected, err := queue.DataChanged(context.Background(), model.SecurityChange{
		Kind:      model.ChangeLookupPermissionChanged,
		GroupName: "readers",
	})
	require.NoError(t, err)
	require.Len(t, affected, 1)
	assert.Equal(t, "s1", affected[0].ID)
}

func TestDataChanged_SerializesConcurrentSubmissions(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	sessions := &stubSessions{}
	resetter := newTestResetter(t, sessions, &stubUsers{}, newStubCache())
	queue := newTestQueue(t, resetter)
	queue.OnDirectoryChanged(func(_ context.Context, change model.SecurityChange, _ []model.AffectedSession) {
		mu.Lock()
		order = append(order, change.Token)
		mu.Unlock()
	})
	runQueue(t, queue)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := queue.DataChanged(context.Background(), model.SecurityChange{
				Kind:  model.ChangeTokenRestored,
				Token: string(rune('a' + n)),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, order, 8)
}

func TestDataChangeQueue_ReplicatesLocalChanges(t *testing.T) {
	resetter := newTestResetter(t, &stubSessions{}, &stubUsers{}, newStubCache())
	replicator := &stubReplicator{}
	queue := newTestQueue(t, resetter, WithQueueReplicator(replicator))
	runQueue(t, queue)

	_, err := queue.DataChanged(context.Background(), model.SecurityChange{
		Kind:  model.ChangeTokenRevoked,
		Token: "tok-1",
	})
	require.NoError(t, err)

	replicated := replicator.replicated()
	require.Len(t, replicated, 1)
	assert.Equal(t, "tok-1", replicated[0].Token)
	assert.True(t, replicated[0].Replicated)
}

func TestDataChangeQueue_NeverReReplicatesPeerChanges(t *testing.T) {
	resetter := newTestResetter(t, &stubSessions{}, &stubUsers{}, newStubCache())
	replicator := &stubReplicator{}
	queue := newTestQueue(t, resetter, WithQueueReplicator(replicator))
	runQueue(t, queue)

	_, err := queue.DataChanged(context.Background(), model.SecurityChange{
		Kind:       model.ChangeTokenRevoked,
		Token:      "tok-1",
		Replicated: true,
	})
	require.NoError(t, err)
	assert.Empty(t, replicator.replicated())
}

func TestDataChangeQueue_ReplicationFailureReported(t *testing.T) {
	resetter := newTestResetter(t, &stubSessions{}, &stubUsers{}, newStubCache())
	replicator := &stubReplicator{err: errors.New("peer unreachable")}
	reporter := &captureReporter{}
	queue := newTestQueue(t, resetter,
		WithQueueReplicator(replicator),
		WithQueueErrorReporter(reporter))
	runQueue(t, queue)

	// replication is best-effort: the local apply still succeeds
	_, err := queue.DataChanged(context.Background(), model.SecurityChange{
		Kind:  model.ChangeTokenRevoked,
		Token: "tok-1",
	})
	require.NoError(t, err)

	reports := reporter.all()
	require.Len(t, reports, 1)
	assert.Equal(t, "DataChangeQueue", reports[0].component)
	assert.Equal(t, SeverityMedium, reports[0].severity)
}

func TestDataChangeQueue_FailedResetSkipsReplicationAndHooks(t *testing.T) {
	revoked := newStubCache()
	revoked.setErr = errors.New("cache broken")
	resetter := newTestResetter(t, &stubSessions{}, &stubUsers{}, revoked)
	replicator := &stubReplicator{}
	queue := newTestQueue(t, resetter, WithQueueReplicator(replicator))

	var hookCalls int
	queue.OnDirectoryChanged(func(context.Context, model.SecurityChange, []model.AffectedSession) {
		hookCalls++
	})
	runQueue(t, queue)

	_, err := queue.DataChanged(context.Background(), model.SecurityChange{
		Kind:  model.ChangeTokenRevoked,
		Token: "tok-1",
	})
	require.Error(t, err)
	assert.Empty(t, replicator.replicated())
	assert.Equal(t, 0, hookCalls)
}

func TestDataChangeQueue_HooksReceiveAffectedSessions(t *testing.T) {
	alice := groupedSession("s1", groupedUser("alice", "readers"))
	sessions := &stubSessions{sessions: []*model.Session{alice}}
	resetter := newTestResetter(t, sessions, &stubUsers{}, newStubCache())
	queue := newTestQueue(t, resetter)

	var (
		mu       sync.Mutex
		observed []model.AffectedSession
	)
	queue.OnDirectoryChanged(func(_ context.Context, _ model.SecurityChange, affected []model.AffectedSession) {
		mu.Lock()
		observed = affected
		mu.Unlock()
	})
	runQueue(t, queue)

	_, err := queue.DataChanged(context.Background(), model.SecurityChange{
		Kind:      model.ChangeLookupPermissionChanged,
		GroupName: "readers",
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 1)
	assert.Equal(t, "s1", observed[0].ID)
}

func TestDataChanged_CancelledContextWithoutWorker(t *testing.T) {
	resetter := newTestResetter(t, &stubSessions{}, &stubUsers{}, newStubCache())
	queue := newTestQueue(t, resetter, WithQueueBuffer(0))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// unbuffered queue with no worker: submission blocks until the deadline
	_, err := queue.DataChanged(ctx, model.SecurityChange{
		Kind:  model.ChangeTokenRestored,
		Token: "tok-1",
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
