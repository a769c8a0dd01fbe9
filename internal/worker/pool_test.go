package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/arenaengine/internal/testutil"
)

func TestSubmitRunsJobs(t *testing.T) {
	pool, err := New(2, testutil.NopLogger())
	require.NoError(t, err)

	var ran atomic.Int32
	for range 10 {
		require.NoError(t, pool.Submit("count", func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}

	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, int32(10), ran.Load())
}

func TestBusyPoolFallsBackInsteadOfBlocking(t *testing.T) {
	pool, err := New(1, testutil.NopLogger())
	require.NoError(t, err)

	release := make(chan struct{})
	var ran atomic.Int32
	for range 3 {
		require.NoError(t, pool.Submit("blocked", func(context.Context) error {
			<-release
			ran.Add(1)
			return nil
		}))
	}
	close(release)

	require.NoError(t, pool.Stop(context.Background()))
	assert.Equal(t, int32(3), ran.Load())
}

func TestPanicsAndErrorsAreContained(t *testing.T) {
	logger, buf := testutil.CaptureLogger()
	pool, err := New(1, logger)
	require.NoError(t, err)

	require.NoError(t, pool.Submit("boom", func(context.Context) error { panic("kaboom") }))
	require.NoError(t, pool.Submit("fails", func(context.Context) error { return errors.New("nope") }))
	require.NoError(t, pool.Stop(context.Background()))

	assert.Contains(t, buf.String(), "job panic")
	assert.Contains(t, buf.String(), "job failed")
}

func TestSubmitAfterStop(t *testing.T) {
	pool, err := New(1, testutil.NopLogger())
	require.NoError(t, err)
	require.NoError(t, pool.Stop(context.Background()))

	err = pool.Submit("late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestStopTimesOutAndCancelsJobs(t *testing.T) {
	pool, err := New(1, testutil.NopLogger())
	require.NoError(t, err)

	cancelled := make(chan struct{})
	require.NoError(t, pool.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Stop(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled")
	}
}
