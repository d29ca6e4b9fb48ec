package automation

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	logx "cadencebot/pkg/logx"
)

// unit is the scheduling loop of one instance.
type unit struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}
}

func newUnit(name string, cancel context.CancelFunc) *unit {
	return &unit{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
}

// poke interrupts the current wait so a state change is seen promptly.
func (u *unit) poke() {
	select {
	case u.wake <- struct{}{}:
	default:
	}
}

// wait returns false when ctx is done.
func (u *unit) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-u.wake:
		return ctx.Err() == nil
	case <-tmr.C:
		return true
	}
}

func (u *unit) stopped() bool {
	select {
	case <-u.done:
		return true
	default:
		return false
	}
}

// dueCadences lists the cadences due at now in firing order.
func dueCadences(inst Instance, now time.Time) []CadenceID {
	var out []CadenceID
	for i, c := range inst.Cadences {
		if c.Due(now) {
			out = append(out, CadenceID(i))
		}
	}
	return out
}

// nextDeadline is the smallest remaining time over all cadences.
func nextDeadline(inst Instance, now time.Time) time.Duration {
	next := time.Duration(-1)
	for _, c := range inst.Cadences {
		r := c.Remaining(now)
		if next < 0 || r < next {
			next = r
		}
	}
	if next < 0 {
		return 0
	}
	return next
}

func (s *Supervisor) runUnit(ctx context.Context, u *unit) {
	log := s.log.With(logx.String("instance", u.name))
	defer close(u.done)
	defer func() {
		if r := recover(); r != nil {
			log.Error("scheduling unit panic",
				logx.String("panic", fmt.Sprint(r)),
				logx.String("stack", string(debug.Stack())),
			)
			s.setState(u.name, Stopped)
		}
	}()

	seed := time.Now().UnixNano() ^ int64(len(u.name))<<32
	rng := rand.New(rand.NewSource(seed))

	log.Debug("scheduling unit started")
	defer log.Debug("scheduling unit exited")

	for {
		if ctx.Err() != nil {
			return
		}
		inst, err := s.reg.Get(u.name)
		if err != nil {
			return
		}
		switch inst.State {
		case Stopped:
			return
		case Paused:
			if !u.wait(ctx, s.timing.PausePoll) {
				return
			}
			continue
		}

		if !s.cycle(ctx, u, log, rng) {
			return
		}

		inst, err = s.reg.Get(u.name)
		if err != nil {
			return
		}
		next := nextDeadline(inst, s.now())
		if !u.wait(ctx, s.timing.sleepFor(next)) {
			return
		}
	}
}

// cycle fires every due cadence in order. It returns false when the unit
// should exit.
func (s *Supervisor) cycle(ctx context.Context, u *unit, log logx.Logger, rng *rand.Rand) bool {
	inst, err := s.reg.Get(u.name)
	if err != nil {
		return false
	}
	for _, id := range dueCadences(inst, s.now()) {
		if ctx.Err() != nil {
			return false
		}
		cur, err := s.reg.Get(u.name)
		if err != nil {
			return false
		}
		if cur.State != Running {
			return true
		}

		spec := s.cadences[id]
		at := s.now()
		err = s.exec.Execute(ctx, cur, Action{Cadence: spec.Name, Payload: spec.Payload}, s.settings.Load())
		if err != nil {
			// Left due; retried next cycle.
			continue
		}
		if err := s.reg.MarkFired(u.name, id, at); err != nil {
			return false
		}
		if !u.wait(ctx, s.timing.jitter(rng)) {
			return false
		}
	}
	return true
}
