package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatchIsolatesFailures(t *testing.T) {
	e := New(time.Second)

	var ran atomic.Int32
	e.Add("failing", func(ctx context.Context) error {
		return errors.New("boom")
	})
	e.Add("healthy", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	res := e.RunBatch(context.Background())

	assert.Equal(t, int32(1), ran.Load(), "task after a failure must still run")
	require.Len(t, res.Errors, 1)
	assert.Error(t, res.Errors["failing"])
	assert.Equal(t, 1, e.ErrorCount())
}

func TestRunStopsOnCancel(t *testing.T) {
	e := New(5 * time.Millisecond)

	var ran atomic.Int32
	e.Add("tick", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.Greater(t, ran.Load(), int32(0))
}

func TestRunBatchRespectsCancelledContext(t *testing.T) {
	e := New(time.Second)

	var ran atomic.Int32
	e.Add("never", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.RunBatch(ctx)

	assert.Equal(t, int32(0), ran.Load())
}
