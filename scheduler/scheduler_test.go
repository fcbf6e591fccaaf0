package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	membership "go-membership"
)

type fakeSweeper struct {
	calls   atomic.Int32
	scopes  chan membership.SweepScope
	block   chan struct{}
	entered chan struct{}
	once    sync.Once
	err     error
}

func newFakeSweeper() *fakeSweeper {
	return &fakeSweeper{
		scopes:  make(chan membership.SweepScope, 16),
		entered: make(chan struct{}),
	}
}

func (f *fakeSweeper) Sweep(_ context.Context, scope membership.SweepScope) membership.SweepReport {
	f.calls.Add(1)
	f.scopes <- scope
	f.once.Do(func() { close(f.entered) })
	if f.block != nil {
		<-f.block
	}
	return membership.SweepReport{
		Passes: []membership.PassResult{{Pass: membership.PassOrphanMemberships, Count: 1, Err: f.err}},
	}
}

func TestScheduler(t *testing.T) {
	t.Run("should reject a malformed schedule", func(t *testing.T) {
		// Act
		var _, err = New(newFakeSweeper(), "every now and then", nil)

		// Assert
		assert.ErrorContains(t, err, "failed to parse sweep schedule")
	})

	t.Run("should run a global sweep", func(t *testing.T) {
		// Arrange
		var sweeper = newFakeSweeper()
		sweeper.err = errors.New("boom")
		sut, err := New(sweeper, "@every 1h", nil)
		require.NoError(t, err)

		// Act
		var ran = sut.RunOnce(context.Background())

		// Assert
		assert.True(t, ran)
		assert.EqualValues(t, 1, sweeper.calls.Load())
		assert.True(t, (<-sweeper.scopes).IsGlobal())
	})

	t.Run("should skip a sweep while another is running", func(t *testing.T) {
		// Arrange
		var sweeper = newFakeSweeper()
		sweeper.block = make(chan struct{})
		sut, err := New(sweeper, "@every 1h", nil)
		require.NoError(t, err)

		var done = make(chan bool)
		go func() { done <- sut.RunOnce(context.Background()) }()
		<-sweeper.entered

		// Act
		var ran = sut.RunOnce(context.Background())
		close(sweeper.block)

		// Assert
		assert.False(t, ran)
		assert.True(t, <-done)
		assert.EqualValues(t, 1, sweeper.calls.Load())
	})

	t.Run("should sweep on schedule once started", func(t *testing.T) {
		// Arrange
		var sweeper = newFakeSweeper()
		sut, err := New(sweeper, "@every 1s", nil)
		require.NoError(t, err)

		// Act
		sut.Start()
		defer sut.Stop(context.Background())

		// Assert
		select {
		case scope := <-sweeper.scopes:
			assert.True(t, scope.IsGlobal())
		case <-time.After(5 * time.Second):
			t.Fatal("scheduled sweep did not run")
		}
	})
}
