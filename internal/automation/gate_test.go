package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGateSerializes(t *testing.T) {
	g := NewGate()
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Do(context.Background(), func() error {
				time.Sleep(time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	st := g.Stats()
	assert.Equal(t, 1, st.MaxInFlight)
	assert.Equal(t, 0, st.InFlight)
	assert.Equal(t, uint64(8), st.Acquisitions)
}

func TestGateWaitIsCancelable(t *testing.T) {
	g := NewGate()
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ran := false
	err := g.Do(ctx, func() error { ran = true; return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)

	close(release)
	require.NoError(t, g.Do(context.Background(), func() error { return nil }))
}

func TestGateReleasesOnErrorAndPanic(t *testing.T) {
	g := NewGate()
	boom := errors.New("boom")
	assert.ErrorIs(t, g.Do(context.Background(), func() error { return boom }), boom)

	err := g.Do(context.Background(), func() error { panic("driver") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: driver")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, g.Do(ctx, func() error { return nil }))
	assert.Equal(t, 0, g.Stats().InFlight)
}
