package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	logx "cadencebot/pkg/logx"
)

// Group runs the app's background loops (status reporter, config watcher,
// event recorder) tied to one context.
//   - Named goroutines (for logging/debug)
//   - Panic recovery
//   - Restart with jittered exponential backoff
//   - Graceful stop with timeout-aware waiting
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc

	started uint64
	active  int64

	log      logx.Logger
	errOnce  sync.Once
	firstErr atomic.Value // stores error
	doneOnce sync.Once
	doneCh   chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	restarts map[string]int
}

type Option func(*Group)

// Counters exposes best-effort goroutine counters.
type Counters struct {
	Active   int64          `json:"active"`
	Started  uint64         `json:"started"`
	Restarts map[string]int `json:"restarts,omitempty"`
}

func WithLogger(log logx.Logger) Option {
	return func(g *Group) { g.log = log }
}

func New(parent context.Context, opts ...Option) *Group {
	ctx, cancel := context.WithCancel(parent)
	g := &Group{
		ctx:      ctx,
		cancel:   cancel,
		doneCh:   make(chan struct{}),
		restarts: map[string]int{},
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Group) Context() context.Context { return g.ctx }

func (g *Group) Err() error {
	v := g.firstErr.Load()
	if v == nil {
		return nil
	}
	err, _ := v.(error)
	return err
}

func (g *Group) Counters() Counters {
	if g == nil {
		return Counters{}
	}
	c := Counters{
		Active:  atomic.LoadInt64(&g.active),
		Started: atomic.LoadUint64(&g.started),
	}
	g.mu.Lock()
	if len(g.restarts) > 0 {
		c.Restarts = make(map[string]int, len(g.restarts))
		for k, v := range g.restarts {
			c.Restarts[k] = v
		}
	}
	g.mu.Unlock()
	return c
}

// Names returns loop names that restarted at least once, sorted.
func (c Counters) Names() []string {
	out := make([]string, 0, len(c.Restarts))
	for k := range c.Restarts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	atomic.AddUint64(&g.started, 1)
	atomic.AddInt64(&g.active, 1)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer atomic.AddInt64(&g.active, -1)

		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic in %s: %v", name, r)
				g.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				g.setErr(err)
			}
		}()

		g.log.Debug("goroutine started", logx.String("name", name))
		err := fn(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.setErr(fmt.Errorf("%s: %w", name, err))
		}
		g.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

func (g *Group) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	g.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// GoRestart runs fn and restarts it on error/panic with jittered exponential
// backoff until the group context is canceled. A nil return stops the loop.
func (g *Group) GoRestart(name string, minBackoff, maxBackoff time.Duration, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	if minBackoff <= 0 {
		minBackoff = 250 * time.Millisecond
	}
	if maxBackoff < minBackoff {
		maxBackoff = minBackoff
	}
	g.Go0(name+".restart", func(ctx context.Context) {
		backoff := minBackoff
		for {
			if ctx.Err() != nil {
				return
			}
			startedAt := time.Now()
			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						g.log.Error("goroutine panicked (restart)", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
						err = fmt.Errorf("panic: %v", r)
					}
				}()
				return fn(ctx)
			}()
			if ctx.Err() != nil || err == nil || errors.Is(err, context.Canceled) {
				return
			}

			g.mu.Lock()
			g.restarts[name]++
			g.mu.Unlock()

			// A loop that ran for a while gets a fresh backoff window.
			if time.Since(startedAt) >= 30*time.Second {
				backoff = minBackoff
			}
			wait := backoff
			// 20% jitter.
			if j := time.Duration(int64(wait) / 5); j > 0 {
				wait += time.Duration(time.Now().UnixNano() % int64(j+1))
			}
			g.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	})
}

// Stop cancels the group and waits for all goroutines, bounded by ctx.
func (g *Group) Stop(ctx context.Context) error {
	g.cancel()
	return g.Wait(ctx)
}

func (g *Group) Wait(ctx context.Context) error {
	g.doneOnce.Do(func() {
		go func() {
			g.wg.Wait()
			close(g.doneCh)
		}()
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.doneCh:
		return g.Err()
	}
}

func (g *Group) setErr(err error) {
	if err == nil {
		return
	}
	g.errOnce.Do(func() { g.firstErr.Store(err) })
}
