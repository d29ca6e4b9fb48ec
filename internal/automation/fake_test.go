package automation

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type call struct {
	Op  string
	Arg string
	X   int
	Y   int
}

// fakeDevice records calls and flags overlapping sequences.
type fakeDevice struct {
	w, h int

	mu    sync.Mutex
	calls []call

	// failClick fails the first n clicks.
	failClick atomic.Int32
	// failSize fails the first n display size lookups.
	failSize  atomic.Int32
	panicOnce atomic.Bool
	clickHold time.Duration

	busy    atomic.Int32
	overlap atomic.Bool
}

func newFakeDevice() *fakeDevice { return &fakeDevice{w: 800, h: 600} }

func (d *fakeDevice) enter() {
	if d.busy.Add(1) > 1 {
		d.overlap.Store(true)
	}
}

func (d *fakeDevice) leave() { d.busy.Add(-1) }

func (d *fakeDevice) record(c call) {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
}

func (d *fakeDevice) Click(x, y int) error {
	d.enter()
	defer d.leave()
	if d.panicOnce.CompareAndSwap(true, false) {
		panic("driver crashed")
	}
	if d.clickHold > 0 {
		time.Sleep(d.clickHold)
	}
	d.record(call{Op: "click", X: x, Y: y})
	if d.failClick.Load() > 0 {
		d.failClick.Add(-1)
		return errors.New("device busy")
	}
	return nil
}

func (d *fakeDevice) TypeText(text string) error {
	d.enter()
	defer d.leave()
	d.record(call{Op: "type", Arg: text})
	return nil
}

func (d *fakeDevice) PressKey(key string) error {
	d.enter()
	defer d.leave()
	d.record(call{Op: "key", Arg: key})
	return nil
}

func (d *fakeDevice) DisplaySize() (int, int, error) {
	if d.failSize.Load() > 0 {
		d.failSize.Add(-1)
		return 0, 0, errors.New("no display")
	}
	return d.w, d.h, nil
}

func (d *fakeDevice) Calls() []call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]call(nil), d.calls...)
}

func (d *fakeDevice) count(op string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// typed returns the payloads typed so far, in order.
func (d *fakeDevice) typed() []string {
	var out []string
	for _, c := range d.Calls() {
		if c.Op == "type" {
			out = append(out, c.Arg)
		}
	}
	return out
}

func fastSettings() Settings {
	return Settings{RetryAttempts: 3, CommandDelay: 0, RetryBackoff: time.Millisecond, CommitKey: "enter"}
}

func fastTiming() Timing {
	return Timing{
		MaxSleep:    20 * time.Millisecond,
		MinSleep:    time.Millisecond,
		PausePoll:   5 * time.Millisecond,
		JitterMin:   time.Millisecond,
		JitterMax:   2 * time.Millisecond,
		StopTimeout: 500 * time.Millisecond,
	}
}

// fastClock runs time scale times faster than the wall clock, so second
// intervals come due within milliseconds.
func fastClock(scale time.Duration) func() time.Time {
	base := time.Now()
	return func() time.Time { return base.Add(time.Since(base) * scale) }
}
