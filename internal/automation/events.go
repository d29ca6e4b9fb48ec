package automation

import (
	"time"

	"cadencebot/internal/eventbus"
)

// ActionEvent is the payload of the action.* events.
type ActionEvent struct {
	ID       string
	Instance string
	Cadence  string
	Payload  string
	Attempt  int
	Attempts int
	Took     time.Duration
	Error    string
}

// StateEvent is the payload of instance.state events.
type StateEvent struct {
	Instance string
	From     RunState
	To       RunState
}

func publish(bus eventbus.Bus, typ string, data any) {
	if bus == nil {
		return
	}
	bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}
