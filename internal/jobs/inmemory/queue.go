package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// Defaults for NewQueue.
const (
	DefaultWorkerCount  = 5
	DefaultRetryBackoff = time.Second
)

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// task tracks the lifetime of one job. A job can be cancelled while it
// waits in the channel, while it runs, or between retries.
type task struct {
	job     *jobs.IngestJob
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	settled bool
	final   *jobs.IngestJob
}

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Every job has its own cancellable context.
type Queue struct {
	jobChan   chan *jobs.IngestJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workerCount  int
	maxRetries   int
	retryBackoff time.Duration
	log          zerolog.Logger

	tmu   sync.Mutex
	tasks map[string]*task
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithWorkers sets how many jobs run at once.
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workerCount = n
		}
	}
}

// WithMaxRetries sets the retry budget for jobs that do not set their own.
func WithMaxRetries(n int) QueueOption {
	return func(q *Queue) {
		if n >= 0 {
			q.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between retries; attempt n waits n times this.
func WithRetryBackoff(d time.Duration) QueueOption {
	return func(q *Queue) { q.retryBackoff = d }
}

// WithQueueLogger sets the logger handed to job handlers through the context.
func WithQueueLogger(log zerolog.Logger) QueueOption {
	return func(q *Queue) { q.log = log }
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishIngest blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...QueueOption) *Queue {
	q := &Queue{
		jobChan:      make(chan *jobs.IngestJob, bufferSize),
		closeChan:    make(chan struct{}),
		store:        store,
		workerCount:  DefaultWorkerCount,
		retryBackoff: DefaultRetryBackoff,
		log:          zerolog.Nop(),
		tasks:        make(map[string]*task),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishIngest implements the Publisher interface.
// It enqueues a statement ingestion job for asynchronous processing.
func (q *Queue) PublishIngest(ctx context.Context, job *jobs.IngestJob) error {
	// The read lock covers registration only. Stop takes the write lock
	// before closing closeChan, so it must not be held across the send.
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.FileID == "" {
		job.FileID = job.JobID
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.maxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			q.mu.RUnlock()
			return fmt.Errorf("PublishIngest: saving job: %w", err)
		}
	}

	// The job outlives the request that published it.
	tctx, cancel := context.WithCancel(context.Background())
	t := &task{job: job, ctx: tctx, cancel: cancel, done: make(chan struct{})}
	q.tmu.Lock()
	q.tasks[job.JobID] = t
	q.tmu.Unlock()
	q.mu.RUnlock()

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		q.settle(job, jobs.JobStatusCancelled, ctx.Err().Error())
		return ctx.Err()
	case <-q.closeChan:
		q.settle(job, jobs.JobStatusCancelled, ErrQueueClosed.Error())
		return ErrQueueClosed
	}
}

// Start implements the Consumer interface.
// It starts consuming jobs from the queue and processes them using the provided handler.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// claim marks a job as running. It returns nil when the job was settled
// (cancelled) while waiting.
func (q *Queue) claim(jobID string) *task {
	q.tmu.Lock()
	defer q.tmu.Unlock()

	t, ok := q.tasks[jobID]
	if !ok || t.settled {
		return nil
	}
	t.running = true
	return t
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.IngestJob, handler jobs.JobHandler) {
	t := q.claim(job.JobID)
	if t == nil {
		return
	}

	// Stopping the workers cancels the jobs they run.
	stop := context.AfterFunc(ctx, t.cancel)
	defer stop()

	jobCtx := logger.WithContext(t.ctx, q.log.With().Str("job_id", job.JobID).Str("file_id", job.FileID).Logger())

	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	report := func(p jobs.Progress) {
		job.Progress = p
		if q.store != nil {
			_ = q.store.UpdateProgress(ctx, job.JobID, p)
		}
	}

	res, err := handler(jobCtx, job, report)
	if res != nil {
		job.Result = res
	}

	switch {
	case t.ctx.Err() != nil:
		q.settle(job, jobs.JobStatusCancelled, context.Canceled.Error())

	case err != nil && job.RetryCount < job.MaxRetries:
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		job.Error = err.Error()
		if q.store != nil {
			_ = q.store.SaveJob(ctx, job)
		}
		q.tmu.Lock()
		t.running = false
		q.tmu.Unlock()

		backoff := time.Duration(job.RetryCount) * q.retryBackoff
		time.AfterFunc(backoff, func() { q.requeue(job) })

	case err != nil:
		q.settle(job, jobs.JobStatusFailed, err.Error())

	default:
		q.settle(job, jobs.JobStatusCompleted, "")
	}
}

// requeue puts a retrying job back on the channel unless it was cancelled
// or the queue stopped in the meantime.
func (q *Queue) requeue(job *jobs.IngestJob) {
	q.tmu.Lock()
	t, ok := q.tasks[job.JobID]
	if !ok || t.settled {
		q.tmu.Unlock()
		return
	}
	job.Status = jobs.JobStatusPending
	job.StartedAt = nil
	job.CompletedAt = nil
	q.tmu.Unlock()

	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		q.settle(job, jobs.JobStatusCancelled, ErrQueueClosed.Error())
		return
	}
	if q.store != nil {
		_ = q.store.SaveJob(context.Background(), job)
	}
	select {
	case q.jobChan <- job:
	case <-q.closeChan:
		q.settle(job, jobs.JobStatusCancelled, ErrQueueClosed.Error())
	}
}

// settle moves a job to a terminal status exactly once and releases waiters.
func (q *Queue) settle(job *jobs.IngestJob, status jobs.JobStatus, errMsg string) {
	q.tmu.Lock()
	t, ok := q.tasks[job.JobID]
	if !ok || t.settled {
		q.tmu.Unlock()
		return
	}
	q.finishLocked(t, status, errMsg)
	q.tmu.Unlock()

	q.release(t)
}

// finishLocked records the terminal state. tmu must be held.
func (q *Queue) finishLocked(t *task, status jobs.JobStatus, errMsg string) {
	t.settled = true
	t.running = false

	completedAt := time.Now()
	t.job.CompletedAt = &completedAt
	t.job.Status = status
	t.job.Error = errMsg

	final := *t.job
	final.Payload = nil
	t.final = &final
}

// release persists the final state and wakes waiters.
func (q *Queue) release(t *task) {
	if q.store != nil {
		_ = q.store.SaveJob(context.Background(), t.final)
	}
	t.cancel()
	close(t.done)
}

// Cancel implements the Publisher interface. A running job sees its context
// cancelled; a job still waiting in the queue is settled immediately.
// Cancelling a finished job is a no-op.
func (q *Queue) Cancel(jobID string) error {
	q.tmu.Lock()
	t, ok := q.tasks[jobID]
	if !ok {
		q.tmu.Unlock()
		return fmt.Errorf("Cancel: %w: %s", jobs.ErrJobNotFound, jobID)
	}
	if t.settled || t.running {
		q.tmu.Unlock()
		t.cancel()
		return nil
	}
	q.finishLocked(t, jobs.JobStatusCancelled, context.Canceled.Error())
	q.tmu.Unlock()

	q.release(t)
	return nil
}

// Done returns a channel closed when the job reaches a terminal status.
func (q *Queue) Done(jobID string) (<-chan struct{}, error) {
	q.tmu.Lock()
	defer q.tmu.Unlock()

	t, ok := q.tasks[jobID]
	if !ok {
		return nil, fmt.Errorf("Done: %w: %s", jobs.ErrJobNotFound, jobID)
	}
	return t.done, nil
}

// Wait blocks until the job reaches a terminal status or ctx is done, and
// returns the final job.
func (q *Queue) Wait(ctx context.Context, jobID string) (*jobs.IngestJob, error) {
	done, err := q.Done(jobID)
	if err != nil {
		return nil, err
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	q.tmu.Lock()
	final := *q.tasks[jobID].final
	q.tmu.Unlock()
	return &final, nil
}

// Stop implements the Consumer interface.
// It cancels every unfinished job and waits for the workers to return.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	q.tmu.Lock()
	var pending []string
	for id, t := range q.tasks {
		if !t.settled {
			pending = append(pending, id)
		}
	}
	q.tmu.Unlock()
	for _, id := range pending {
		_ = q.Cancel(id)
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
// It closes the queue and releases resources.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
