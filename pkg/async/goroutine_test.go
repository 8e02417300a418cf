package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Success(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := NewRunner(logger)
	executed := atomic.Bool{}

	r.Go(context.Background(), time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})

	require.True(t, r.Wait(time.Second))
	assert.True(t, executed.Load())
	assert.Empty(t, hook.AllEntries())
}

func TestRunner_ErrorIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := NewRunner(logger)

	r.Go(context.Background(), time.Second, "send mail", func(ctx context.Context) error {
		return errors.New("smtp down")
	})

	require.True(t, r.Wait(time.Second))
	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "send mail", entry.Data["task"])
}

func TestRunner_PanicRecovery(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := NewRunner(logger)

	r.Go(context.Background(), time.Second, "panicky", func(ctx context.Context) error {
		panic("boom")
	})

	require.True(t, r.Wait(time.Second))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "boom", hook.LastEntry().Data["panic"])
}

func TestRunner_Timeout(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRunner(logger)
	var got atomic.Value

	r.Go(context.Background(), 20*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		got.Store(ctx.Err())
		return ctx.Err()
	})

	require.True(t, r.Wait(time.Second))
	assert.Equal(t, context.DeadlineExceeded, got.Load())
}

func TestRunner_DetachedFromParentCancellation(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRunner(logger)

	parent, cancel := context.WithCancel(context.Background())
	cancel()

	cancelled := atomic.Bool{}
	r.Go(parent, time.Second, "after response", func(ctx context.Context) error {
		cancelled.Store(ctx.Err() != nil)
		return nil
	})

	require.True(t, r.Wait(time.Second))
	assert.False(t, cancelled.Load())
}

func TestRunner_WaitTimesOut(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRunner(logger)
	release := make(chan struct{})
	defer close(release)

	r.Go(context.Background(), time.Second, "blocked", func(ctx context.Context) error {
		<-release
		return nil
	})

	assert.False(t, r.Wait(10*time.Millisecond))
}
