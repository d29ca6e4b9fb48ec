package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cadencebot/internal/eventbus"
	logx "cadencebot/pkg/logx"

	"github.com/google/uuid"
)

// Device is the input surface actions are delivered through.
type Device interface {
	Click(x, y int) error
	TypeText(text string) error
	PressKey(key string) error
	DisplaySize() (w, h int, err error)
}

// Verifier optionally checks that a delivered action landed. Its verdict is
// logged only; it never turns a success into a failure.
type Verifier interface {
	Verify(ctx context.Context, inst Instance, payload string) (bool, error)
}

// Action is one text command delivered to an instance.
type Action struct {
	Cadence string
	Payload string
}

// Executor performs the click/type/commit sequence for one instance with
// retries. Each attempt holds the Gate for the whole sequence.
type Executor struct {
	dev      Device
	gate     *Gate
	log      logx.Logger
	bus      eventbus.Bus
	verifier Verifier
	bounds   *Bounds

	// pause is the uninterruptible inter-step delay.
	pause func(time.Duration)
}

type ExecutorOption func(*Executor)

func WithBus(b eventbus.Bus) ExecutorOption { return func(e *Executor) { e.bus = b } }

func WithVerifier(v Verifier) ExecutorOption { return func(e *Executor) { e.verifier = v } }

// WithBounds pins the display bounds instead of asking the device.
func WithBounds(b Bounds) ExecutorOption {
	return func(e *Executor) {
		if b.W > 0 && b.H > 0 {
			e.bounds = &b
		}
	}
}

func NewExecutor(dev Device, gate *Gate, log logx.Logger, opts ...ExecutorOption) *Executor {
	if gate == nil {
		gate = NewGate()
	}
	e := &Executor{dev: dev, gate: gate, log: log, pause: time.Sleep}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Executor) Gate() *Gate { return e.gate }

// Bounds returns the pinned bounds, or asks the device under the gate.
func (e *Executor) Bounds(ctx context.Context) (Bounds, error) {
	if e.bounds != nil {
		return *e.bounds, nil
	}
	var b Bounds
	err := e.gate.Do(ctx, func() error {
		w, h, err := e.dev.DisplaySize()
		if err != nil {
			return err
		}
		b = Bounds{W: w, H: h}
		return nil
	})
	if err != nil {
		return Bounds{}, fmt.Errorf("display size: %w", err)
	}
	return b, nil
}

// ValidateRegion fails with ErrInvalidRegion when the region's center is
// off-screen.
func (e *Executor) ValidateRegion(ctx context.Context, r Region) error {
	b, err := e.Bounds(ctx)
	if err != nil {
		return err
	}
	if !r.Within(b) {
		cx, cy := r.Center()
		return fmt.Errorf("%w: center (%d, %d) of %s not in %s", ErrInvalidRegion, cx, cy, r, b)
	}
	return nil
}

// Execute delivers act to inst, attempting up to set.RetryAttempts times.
// Cancelling ctx aborts gate waits and retry backoff, never a sequence that
// already holds the gate.
func (e *Executor) Execute(ctx context.Context, inst Instance, act Action, set Settings) error {
	set = set.normalized()
	id := uuid.NewString()
	start := time.Now()
	log := e.log.With(
		logx.String("instance", inst.Name),
		logx.String("cadence", act.Cadence),
		logx.String("action_id", id),
	)
	ev := ActionEvent{ID: id, Instance: inst.Name, Cadence: act.Cadence, Payload: act.Payload}

	cx, cy := inst.Region.Center()

	var (
		err      error
		attempts int
		bounded  bool
	)
attemptLoop:
	for attempt := 1; attempt <= set.RetryAttempts; attempt++ {
		// A failed display size lookup is retried like a device error.
		if !bounded {
			err = e.ValidateRegion(ctx, inst.Region)
			if errors.Is(err, ErrInvalidRegion) {
				break
			}
			bounded = err == nil
		}
		attempts = attempt
		ev.Attempt = attempt
		publish(e.bus, eventbus.ActionAttempt, ev)

		if bounded {
			err = e.gate.Do(ctx, func() error {
				if err := e.sequence(cx, cy, act.Payload, set); err != nil {
					return err
				}
				e.verify(ctx, log, inst, act.Payload)
				return nil
			})
		}
		if err == nil {
			log.Info("action sent", logx.String("payload", act.Payload), logx.Int("attempt", attempt))
			break
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			break
		}
		log.Warn("action attempt failed",
			logx.String("payload", act.Payload),
			logx.Int("attempt", attempt),
			logx.Int("max_attempts", set.RetryAttempts),
			logx.Err(err),
		)
		if IsNoRetry(err) || attempt >= set.RetryAttempts {
			break
		}
		if set.RetryBackoff > 0 {
			tmr := time.NewTimer(set.RetryBackoff)
			select {
			case <-ctx.Done():
				tmr.Stop()
				err = ctx.Err()
				break attemptLoop
			case <-tmr.C:
			}
		}
	}

	ev.Attempts = attempts
	ev.Took = time.Since(start)
	if err == nil {
		publish(e.bus, eventbus.ActionSucceeded, ev)
		return nil
	}

	switch {
	case errors.Is(err, ErrInvalidRegion):
		log.Error("invalid region", logx.String("region", inst.Region.String()), logx.Err(err))
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		log.Debug("action canceled", logx.Int("attempts", attempts))
	case IsNoRetry(err):
		log.Error("action failed permanently", logx.Err(err))
	default:
		err = &ExhaustedError{Attempts: attempts, Last: err}
		log.Error("action failed", logx.Int("attempts", attempts), logx.Err(err))
	}
	ev.Error = err.Error()
	publish(e.bus, eventbus.ActionFailed, ev)
	return err
}

func (e *Executor) sequence(x, y int, payload string, set Settings) error {
	if err := e.dev.Click(x, y); err != nil {
		return fmt.Errorf("click (%d, %d): %w", x, y, err)
	}
	e.pause(set.CommandDelay)
	if err := e.dev.TypeText(payload); err != nil {
		return fmt.Errorf("type: %w", err)
	}
	e.pause(set.CommandDelay)
	if err := e.dev.PressKey(set.CommitKey); err != nil {
		return fmt.Errorf("press %s: %w", set.CommitKey, err)
	}
	return nil
}

func (e *Executor) verify(ctx context.Context, log logx.Logger, inst Instance, payload string) {
	if e.verifier == nil {
		return
	}
	ok, err := e.verifier.Verify(ctx, inst, payload)
	switch {
	case err != nil:
		log.Debug("verify failed", logx.Err(err))
	case !ok:
		log.Warn("action not confirmed on screen")
	default:
		log.Debug("action confirmed")
	}
}
