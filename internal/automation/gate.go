package automation

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate serializes every device interaction across all instances.
// Waiting for the gate is cancelable; the guarded operation is not.
type Gate struct {
	sem *semaphore.Weighted

	inFlight     atomic.Int32
	maxInFlight  atomic.Int32
	acquisitions atomic.Uint64
}

func NewGate() *Gate {
	return &Gate{sem: semaphore.NewWeighted(1)}
}

// Do runs fn while holding the gate. A panic in fn is returned as an error;
// the gate is released on every path.
func (g *Gate) Do(ctx context.Context, fn func() error) (err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)

	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		m := g.maxInFlight.Load()
		if n <= m || g.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	g.acquisitions.Add(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// GateStats is a point-in-time view of gate usage.
type GateStats struct {
	InFlight     int
	MaxInFlight  int
	Acquisitions uint64
}

func (g *Gate) Stats() GateStats {
	return GateStats{
		InFlight:     int(g.inFlight.Load()),
		MaxInFlight:  int(g.maxInFlight.Load()),
		Acquisitions: g.acquisitions.Load(),
	}
}
