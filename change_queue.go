package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/coregx/realtime/model"
)

// changeQueueComponent tags system errors raised by the change queue.
const changeQueueComponent = "DataChangeQueue"

// DefaultChangeQueueBuffer is the default capacity of the pending change
// channel.
const DefaultChangeQueueBuffer = 128

// DirectoryChangedHook observes a fully processed security-directory change
// together with the sessions it affected. Hooks run on the queue worker, so
// they see changes in the exact order they were applied.
type DirectoryChangedHook func(ctx context.Context, change model.SecurityChange, affected []model.AffectedSession)

// DataChangeQueue serializes security-directory changes through a single
// worker so that permission resets are applied in arrival order, then fans
// locally originated changes out to cluster peers.
//
// Callers submit through DataChanged, which blocks until the change has
// been fully applied. Run must be active for submissions to make progress.
type DataChangeQueue struct {
	resetter   *SessionPermissionResetter
	replicator Replicator
	errors     ErrorReporter
	logger     Logger

	jobs chan changeJob

	mu    sync.Mutex
	hooks []DirectoryChangedHook
}

type changeJob struct {
	ctx    context.Context
	change model.SecurityChange
	result chan changeResult
}

type changeResult struct {
	affected []model.AffectedSession
	err      error
}

// QueueOption configures a DataChangeQueue.
type QueueOption func(*DataChangeQueue) error

// NewDataChangeQueue creates a queue with the provided options.
//
// Required options:
//   - WithQueueResetter: the permission resetter applied to each change
//   - WithQueueLogger: logger instance
func NewDataChangeQueue(opts ...QueueOption) (*DataChangeQueue, error) {
	q := &DataChangeQueue{
		jobs: make(chan changeJob, DefaultChangeQueueBuffer),
	}

	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply queue option", err)
		}
	}

	if q.resetter == nil {
		return nil, NewError(ErrCodeConfiguration, "SessionPermissionResetter is required (use WithQueueResetter)")
	}
	if q.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithQueueLogger)")
	}
	if q.errors == nil {
		q.errors = NewLoggingErrorReporter(q.logger)
	}

	return q, nil
}

// WithQueueResetter sets the permission resetter.
func WithQueueResetter(resetter *SessionPermissionResetter) QueueOption {
	return func(q *DataChangeQueue) error {
		if resetter == nil {
			return fmt.Errorf("resetter cannot be nil")
		}
		q.resetter = resetter
		return nil
	}
}

// WithQueueReplicator sets the cluster replicator. Without one, changes are
// applied locally only.
func WithQueueReplicator(replicator Replicator) QueueOption {
	return func(q *DataChangeQueue) error {
		if replicator == nil {
			return fmt.Errorf("replicator cannot be nil")
		}
		q.replicator = replicator
		return nil
	}
}

// WithQueueErrorReporter sets the system error sink.
func WithQueueErrorReporter(reporter ErrorReporter) QueueOption {
	return func(q *DataChangeQueue) error {
		if reporter == nil {
			return fmt.Errorf("error reporter cannot be nil")
		}
		q.errors = reporter
		return nil
	}
}

// WithQueueLogger sets the logger instance.
func WithQueueLogger(logger Logger) QueueOption {
	return func(q *DataChangeQueue) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		q.logger = logger
		return nil
	}
}

// WithQueueBuffer sets the capacity of the pending change channel.
func WithQueueBuffer(size int) QueueOption {
	return func(q *DataChangeQueue) error {
		if size < 0 {
			return fmt.Errorf("buffer size cannot be negative, got %d", size)
		}
		q.jobs = make(chan changeJob, size)
		return nil
	}
}

// OnDirectoryChanged registers a hook invoked after each successfully
// applied change. Typical use is subscription cache invalidation keyed on
// the affected sessions.
func (q *DataChangeQueue) OnDirectoryChanged(hook DirectoryChangedHook) {
	if hook == nil {
		return
	}
	q.mu.Lock()
	q.hooks = append(q.hooks, hook)
	q.mu.Unlock()
}

// Run processes queued changes one at a time until ctx is cancelled.
// It blocks, so it is typically launched in its own goroutine.
func (q *DataChangeQueue) Run(ctx context.Context) {
	q.logger.Info("data change queue started")

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("data change queue stopped")
			return
		case job := <-q.jobs:
			q.process(job)
		}
	}
}

// DataChanged submits one security-directory change and blocks until the
// queue worker has fully applied it, returning the affected sessions.
func (q *DataChangeQueue) DataChanged(ctx context.Context, change model.SecurityChange) ([]model.AffectedSession, error) {
	if err := change.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid security change", err)
	}

	job := changeJob{
		ctx:    ctx,
		change: change,
		result: make(chan changeResult, 1),
	}

	select {
	case q.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-job.result:
		return res.affected, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// process applies one change on the worker goroutine.
func (q *DataChangeQueue) process(job changeJob) {
	affected, err := q.resetter.ResetSessionPermissions(job.ctx, job.change)
	if err == nil {
		q.replicate(job.ctx, job.change)
		q.notifyHooks(job.ctx, job.change, affected)
	}
	job.result <- changeResult{affected: affected, err: err}
}

// replicate fans a locally originated change out to cluster peers. Changes
// that arrived from a peer are never re-replicated.
func (q *DataChangeQueue) replicate(ctx context.Context, change model.SecurityChange) {
	if q.replicator == nil || change.Replicated {
		return
	}
	if err := q.replicator.Replicate(ctx, change.AsReplicated()); err != nil {
		q.errors.HandleSystem(err, changeQueueComponent, SeverityMedium)
	}
}

func (q *DataChangeQueue) notifyHooks(ctx context.Context, change model.SecurityChange, affected []model.AffectedSession) {
	q.mu.Lock()
	hooks := make([]DirectoryChangedHook, len(q.hooks))
	copy(hooks, q.hooks)
	q.mu.Unlock()

	for _, hook := range hooks {
		hook(ctx, change, affected)
	}
}
