package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/pipeline"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestQueue_CompletesJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store, WithWorkers(2))
	defer q.Close()

	handler := func(ctx context.Context, job *jobs.IngestJob, report func(jobs.Progress)) (*pipeline.Result, error) {
		report(jobs.Progress{Step: pipeline.StepParse, Done: 3, Total: 6})
		return &pipeline.Result{FileID: job.FileID, Filename: job.Filename}, nil
	}
	require.NoError(t, q.Start(context.Background(), handler))

	job := &jobs.IngestJob{Filename: "jan.csv", Payload: []byte("data")}
	require.NoError(t, q.PublishIngest(context.Background(), job))
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, job.JobID, job.FileID)

	final, err := q.Wait(waitCtx(t), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCompleted, final.Status)
	require.NotNil(t, final.Result)
	assert.Equal(t, "jan.csv", final.Result.Filename)
	assert.Nil(t, final.Payload)
	assert.NotNil(t, final.CompletedAt)

	stored, err := store.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCompleted, stored.Status)
	assert.Equal(t, pipeline.StepParse, stored.Progress.Step)
	assert.Nil(t, stored.Payload)
}

func TestQueue_FailsWithoutRetryByDefault(t *testing.T) {
	q := NewQueue(10, NewStore())
	defer q.Close()

	var calls int32
	handler := func(ctx context.Context, job *jobs.IngestJob, report func(jobs.Progress)) (*pipeline.Result, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("boom")
	}
	require.NoError(t, q.Start(context.Background(), handler))

	job := &jobs.IngestJob{Filename: "bad.csv"}
	require.NoError(t, q.PublishIngest(context.Background(), job))

	final, err := q.Wait(waitCtx(t), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusFailed, final.Status)
	assert.Equal(t, "boom", final.Error)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestQueue_Retries(t *testing.T) {
	q := NewQueue(10, NewStore(), WithMaxRetries(2), WithRetryBackoff(time.Millisecond))
	defer q.Close()

	var calls int32
	handler := func(ctx context.Context, job *jobs.IngestJob, report func(jobs.Progress)) (*pipeline.Result, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("transient")
		}
		return &pipeline.Result{}, nil
	}
	require.NoError(t, q.Start(context.Background(), handler))

	job := &jobs.IngestJob{Filename: "flaky.csv"}
	require.NoError(t, q.PublishIngest(context.Background(), job))

	final, err := q.Wait(waitCtx(t), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCompleted, final.Status)
	assert.Equal(t, 2, final.RetryCount)
	assert.Empty(t, final.Error)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueue_CancelRunningJob(t *testing.T) {
	q := NewQueue(10, NewStore(), WithMaxRetries(3))
	defer q.Close()

	started := make(chan struct{})
	handler := func(ctx context.Context, job *jobs.IngestJob, report func(jobs.Progress)) (*pipeline.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	require.NoError(t, q.Start(context.Background(), handler))

	job := &jobs.IngestJob{Filename: "slow.pdf"}
	require.NoError(t, q.PublishIngest(context.Background(), job))
	<-started

	require.NoError(t, q.Cancel(job.JobID))

	final, err := q.Wait(waitCtx(t), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCancelled, final.Status)
	assert.Zero(t, final.RetryCount)
}

func TestQueue_CancelPendingJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, store)
	defer q.Close()

	// No workers: the job stays queued.
	job := &jobs.IngestJob{Filename: "queued.csv"}
	require.NoError(t, q.PublishIngest(context.Background(), job))
	require.NoError(t, q.Cancel(job.JobID))

	final, err := q.Wait(waitCtx(t), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCancelled, final.Status)
	assert.Equal(t, "queued.csv", final.Filename)

	stored, err := store.GetJob(context.Background(), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCancelled, stored.Status)

	// A cancelled job is skipped when a worker picks it up.
	var calls int32
	require.NoError(t, q.Start(context.Background(), func(ctx context.Context, job *jobs.IngestJob, report func(jobs.Progress)) (*pipeline.Result, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestQueue_CancelIsolatesJobs(t *testing.T) {
	q := NewQueue(10, NewStore(), WithWorkers(2))
	defer q.Close()

	release := make(chan struct{})
	handler := func(ctx context.Context, job *jobs.IngestJob, report func(jobs.Progress)) (*pipeline.Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return &pipeline.Result{Filename: job.Filename}, nil
		}
	}
	require.NoError(t, q.Start(context.Background(), handler))

	a := &jobs.IngestJob{Filename: "a.csv"}
	b := &jobs.IngestJob{Filename: "b.csv"}
	require.NoError(t, q.PublishIngest(context.Background(), a))
	require.NoError(t, q.PublishIngest(context.Background(), b))

	require.NoError(t, q.Cancel(a.JobID))
	close(release)

	finalA, err := q.Wait(waitCtx(t), a.JobID)
	require.NoError(t, err)
	finalB, err := q.Wait(waitCtx(t), b.JobID)
	require.NoError(t, err)

	assert.Equal(t, jobs.JobStatusCancelled, finalA.Status)
	assert.Equal(t, jobs.JobStatusCompleted, finalB.Status)
}

func TestQueue_CancelUnknownJob(t *testing.T) {
	q := NewQueue(1, nil)
	defer q.Close()

	err := q.Cancel("missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)

	_, err = q.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestQueue_WaitHonoursContext(t *testing.T) {
	q := NewQueue(1, nil)
	defer q.Close()

	job := &jobs.IngestJob{Filename: "never.csv"}
	require.NoError(t, q.PublishIngest(context.Background(), job))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Wait(ctx, job.JobID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Stop(context.Background()))

	err := q.PublishIngest(context.Background(), &jobs.IngestJob{})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_StopCancelsQueuedJobs(t *testing.T) {
	q := NewQueue(5, nil)

	job := &jobs.IngestJob{Filename: "left.csv"}
	require.NoError(t, q.PublishIngest(context.Background(), job))
	require.NoError(t, q.Stop(context.Background()))

	final, err := q.Wait(waitCtx(t), job.JobID)
	require.NoError(t, err)
	assert.Equal(t, jobs.JobStatusCancelled, final.Status)
}

func TestQueue_StopWithBlockedSender(t *testing.T) {
	q := NewQueue(1, NewStore(), WithWorkers(1), WithMaxRetries(1), WithRetryBackoff(time.Millisecond))

	release := make(chan struct{})
	bStarted := make(chan struct{})
	handler := func(ctx context.Context, job *jobs.IngestJob, report func(jobs.Progress)) (*pipeline.Result, error) {
		switch job.JobID {
		case "a":
			<-release
			return nil, errors.New("flaky")
		case "b":
			close(bStarted)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &pipeline.Result{}, nil
	}
	require.NoError(t, q.Start(context.Background(), handler))

	require.NoError(t, q.PublishIngest(context.Background(), &jobs.IngestJob{JobID: "a", Filename: "a.csv"}))
	require.Eventually(t, func() bool {
		job, err := q.store.GetJob(context.Background(), "a")
		return err == nil && job.Status == jobs.JobStatusRunning
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, q.PublishIngest(context.Background(), &jobs.IngestJob{JobID: "b", Filename: "b.csv"}))

	// a fails and is retried while the only worker is busy with b.
	close(release)
	select {
	case <-bStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("job b never started")
	}

	// The retry of a and the publish of c compete for the single buffer slot;
	// one of them stays blocked on the send.
	published := make(chan error, 1)
	go func() {
		published <- q.PublishIngest(context.Background(), &jobs.IngestJob{JobID: "c", Filename: "c.csv"})
	}()
	time.Sleep(50 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(stopCtx))

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publish still blocked after Stop")
	}

	ids := []string{"a", "b"}
	if _, err := q.Done("c"); err == nil {
		ids = append(ids, "c")
	}
	for _, id := range ids {
		final, err := q.Wait(waitCtx(t), id)
		require.NoError(t, err, id)
		assert.Equal(t, jobs.JobStatusCancelled, final.Status, id)
	}
}
