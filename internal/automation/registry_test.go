package automation

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hourly = [NumCadences]time.Duration{time.Hour, time.Hour}

func TestRegistryAdd(t *testing.T) {
	reg := NewRegistry()

	inst, err := reg.Add("A", Region{X: 0, Y: 0, W: 100, H: 100}, [NumCadences]time.Duration{10 * time.Second, 20 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, Stopped, inst.State)
	assert.True(t, inst.Cadences[CadenceA].LastFired.IsZero())
	assert.Equal(t, 20*time.Second, inst.Cadences[CadenceB].Interval)

	_, err = reg.Add("A", Region{W: 1, H: 1}, hourly)
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = reg.Add("", Region{W: 1, H: 1}, hourly)
	assert.ErrorIs(t, err, ErrInvalidInstance)

	_, err = reg.Add("B", Region{W: -1, H: 1}, hourly)
	assert.ErrorIs(t, err, ErrInvalidInstance)

	_, err = reg.Add("B", Region{W: 1, H: 1}, [NumCadences]time.Duration{0, time.Second})
	assert.ErrorIs(t, err, ErrInvalidInstance)

	_, err = reg.Add("B", Region{W: 1, H: 1}, [NumCadences]time.Duration{1500 * time.Millisecond, time.Second})
	assert.ErrorIs(t, err, ErrInvalidInstance)

	assert.Equal(t, 1, reg.Len())
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Add("A", Region{W: 10, H: 10}, hourly)
	require.NoError(t, err)

	got, err := reg.Get("A")
	require.NoError(t, err)
	got.State = Running
	got.Cadences[CadenceA].LastFired = time.Now()

	again, err := reg.Get("A")
	require.NoError(t, err)
	assert.Equal(t, Stopped, again.State)
	assert.True(t, again.Cadences[CadenceA].LastFired.IsZero())

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryRemoveRequiresStopped(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Add("A", Region{W: 10, H: 10}, hourly)
	require.NoError(t, err)

	prev, err := reg.SetRunState("A", Running)
	require.NoError(t, err)
	assert.Equal(t, Stopped, prev)

	assert.ErrorIs(t, reg.Remove("A"), ErrInstanceActive)

	_, err = reg.SetRunState("A", Stopped)
	require.NoError(t, err)
	require.NoError(t, reg.Remove("A"))
	assert.ErrorIs(t, reg.Remove("A"), ErrNotFound)
}

func TestRegistryResetKeepsActive(t *testing.T) {
	reg := NewRegistry()
	for _, n := range []string{"a", "b", "c"} {
		_, err := reg.Add(n, Region{W: 10, H: 10}, hourly)
		require.NoError(t, err)
	}
	_, err := reg.SetRunState("b", Paused)
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, reg.Reset())
	assert.Equal(t, []string{"b"}, reg.Names())
}

func TestRegistryListSortedAndMarkFired(t *testing.T) {
	reg := NewRegistry()
	for _, n := range []string{"c", "a", "b"} {
		_, err := reg.Add(n, Region{W: 10, H: 10}, hourly)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, reg.Names())

	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, reg.MarkFired("b", CadenceB, at))
	assert.ErrorIs(t, reg.MarkFired("x", CadenceA, at), ErrNotFound)
	assert.Error(t, reg.MarkFired("b", CadenceID(5), at))

	list := reg.List()
	require.Len(t, list, 3)
	assert.Equal(t, "b", list[1].Name)
	assert.Equal(t, at, list[1].Cadences[CadenceB].LastFired)
	assert.True(t, list[1].Cadences[CadenceA].LastFired.IsZero())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Add("A", Region{W: 10, H: 10}, hourly)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if i%2 == 0 {
					_ = reg.MarkFired("A", CadenceA, time.Now())
				} else {
					_ = reg.List()
				}
			}
		}()
	}
	wg.Wait()

	inst, err := reg.Get("A")
	require.NoError(t, err)
	assert.False(t, inst.Cadences[CadenceA].LastFired.IsZero())
}
