package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupStopWaitsForLoops(t *testing.T) {
	g := New(context.Background())
	var exited atomic.Bool
	g.Go0("loop", func(ctx context.Context) {
		<-ctx.Done()
		exited.Store(true)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Stop(ctx))
	assert.True(t, exited.Load())
	assert.Equal(t, int64(0), g.Counters().Active)
}

func TestGroupRecoversPanic(t *testing.T) {
	g := New(context.Background())
	g.Go("boom", func(ctx context.Context) error { panic("bad") })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := g.Stop(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in boom")
}

func TestGroupRestartsFailingLoop(t *testing.T) {
	g := New(context.Background())
	var runs atomic.Int32
	g.GoRestart("flaky", time.Millisecond, 5*time.Millisecond, func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.Eventually(t, func() bool { return runs.Load() == 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Stop(ctx))
	c := g.Counters()
	assert.Equal(t, 2, c.Restarts["flaky"])
	assert.Equal(t, []string{"flaky"}, c.Names())
}
