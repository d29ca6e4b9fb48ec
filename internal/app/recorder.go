package app

import (
	"context"
	"time"

	"cadencebot/internal/automation"
	"cadencebot/internal/eventbus"
	"cadencebot/internal/storage"
	logx "cadencebot/pkg/logx"
)

// recorder appends every finished action to the store's history. It lives
// as long as the App so one-shot commands record too.
type recorder struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startRecorder(bus eventbus.Bus, store storage.Store, log logx.Logger) *recorder {
	events, unsub := bus.Subscribe(256)
	ctx, cancel := context.WithCancel(context.Background())
	r := &recorder{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		defer unsub()
		recordActions(ctx, events, store, log)
	}()
	return r
}

// Close stops the recorder after it has written every event already
// published.
func (r *recorder) Close(ctx context.Context) error {
	r.cancel()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func recordActions(ctx context.Context, events <-chan eventbus.Event, store storage.Store, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e, ok := <-events:
					if !ok {
						return
					}
					recordEvent(context.WithoutCancel(ctx), e, store, log)
				default:
					return
				}
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			recordEvent(ctx, e, store, log)
		}
	}
}

func recordEvent(ctx context.Context, e eventbus.Event, store storage.Store, log logx.Logger) {
	switch e.Type {
	case eventbus.ActionSucceeded, eventbus.ActionFailed:
	case eventbus.InstanceState:
		if se, ok := e.Data.(automation.StateEvent); ok {
			log.Debug("instance state", logx.String("instance", se.Instance),
				logx.String("from", se.From.String()), logx.String("to", se.To.String()))
		}
		return
	default:
		return
	}
	ev, ok := e.Data.(automation.ActionEvent)
	if !ok || store == nil {
		return
	}
	rec := storage.ActionRecord{
		ID:       ev.ID,
		At:       e.Time,
		Instance: ev.Instance,
		Cadence:  ev.Cadence,
		Payload:  ev.Payload,
		Attempts: ev.Attempts,
		OK:       e.Type == eventbus.ActionSucceeded,
		Error:    ev.Error,
		TookMS:   ev.Took.Milliseconds(),
	}
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := store.AppendAction(wctx, rec); err != nil {
		log.Warn("action history write failed", logx.String("id", rec.ID), logx.Err(err))
	}
}
