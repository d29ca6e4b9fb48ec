package automation

import (
	"context"
	"errors"
	"testing"
	"time"

	"cadencebot/internal/eventbus"
	logx "cadencebot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstance() Instance {
	return Instance{
		Name:     "A",
		Region:   Region{X: 100, Y: 200, W: 50, H: 40},
		Cadences: [NumCadences]Cadence{{Interval: time.Hour}, {Interval: time.Hour}},
	}
}

func TestExecuteSequence(t *testing.T) {
	dev := newFakeDevice()
	ex := NewExecutor(dev, NewGate(), logx.Nop())

	err := ex.Execute(context.Background(), testInstance(), Action{Cadence: "w", Payload: "$w"}, fastSettings())
	require.NoError(t, err)
	assert.Equal(t, []call{
		{Op: "click", X: 125, Y: 220},
		{Op: "type", Arg: "$w"},
		{Op: "key", Arg: "enter"},
	}, dev.Calls())
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	dev := newFakeDevice()
	dev.failClick.Store(2)
	ex := NewExecutor(dev, NewGate(), logx.Nop())

	require.NoError(t, ex.Execute(context.Background(), testInstance(), Action{Payload: "$w"}, fastSettings()))
	assert.Equal(t, 3, dev.count("click"))
	assert.Equal(t, 1, dev.count("type"))
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	dev := newFakeDevice()
	dev.failClick.Store(100)
	ex := NewExecutor(dev, NewGate(), logx.Nop())

	set := fastSettings()
	set.RetryAttempts = 4
	err := ex.Execute(context.Background(), testInstance(), Action{Payload: "$w"}, set)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhaustedRetries)
	assert.Contains(t, err.Error(), "device busy")

	var ee *ExhaustedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 4, ee.Attempts)
	assert.Equal(t, 4, dev.count("click"))
	assert.Zero(t, dev.count("type"))
}

func TestExecuteRejectsOffscreenRegion(t *testing.T) {
	dev := newFakeDevice()
	ex := NewExecutor(dev, NewGate(), logx.Nop())

	inst := testInstance()
	inst.Region = Region{X: 900, Y: 0, W: 10, H: 10}
	err := ex.Execute(context.Background(), inst, Action{Payload: "$w"}, fastSettings())
	assert.ErrorIs(t, err, ErrInvalidRegion)
	assert.Empty(t, dev.Calls())
}

func TestExecuteRetriesDisplaySizeLookup(t *testing.T) {
	dev := newFakeDevice()
	dev.failSize.Store(1)
	ex := NewExecutor(dev, NewGate(), logx.Nop())

	require.NoError(t, ex.Execute(context.Background(), testInstance(), Action{Payload: "$w"}, fastSettings()))
	assert.Equal(t, 1, dev.count("click"))
	assert.Equal(t, 1, dev.count("key"))
}

func TestExecuteDisplaySizeFailureIsNotInvalidRegion(t *testing.T) {
	dev := newFakeDevice()
	dev.failSize.Store(100)
	ex := NewExecutor(dev, NewGate(), logx.Nop())

	err := ex.Execute(context.Background(), testInstance(), Action{Payload: "$w"}, fastSettings())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidRegion)
	assert.ErrorIs(t, err, ErrExhaustedRetries)
	assert.Contains(t, err.Error(), "no display")

	var ee *ExhaustedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, fastSettings().RetryAttempts, ee.Attempts)
	assert.Empty(t, dev.Calls())
}

func TestExecutePinnedBounds(t *testing.T) {
	dev := newFakeDevice()
	ex := NewExecutor(dev, NewGate(), logx.Nop(), WithBounds(Bounds{W: 100, H: 100}))

	err := ex.Execute(context.Background(), testInstance(), Action{Payload: "$w"}, fastSettings())
	assert.ErrorIs(t, err, ErrInvalidRegion)

	b, err := ex.Bounds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Bounds{W: 100, H: 100}, b)
}

func TestExecuteRecoversDevicePanic(t *testing.T) {
	dev := newFakeDevice()
	dev.panicOnce.Store(true)
	ex := NewExecutor(dev, NewGate(), logx.Nop())

	require.NoError(t, ex.Execute(context.Background(), testInstance(), Action{Payload: "$w"}, fastSettings()))
	assert.Equal(t, 1, dev.count("key"))
}

type permanentDevice struct{ *fakeDevice }

func (d permanentDevice) Click(x, y int) error {
	_ = d.fakeDevice.Click(x, y)
	return NoRetry(errors.New("display closed"))
}

func TestExecuteNoRetry(t *testing.T) {
	dev := permanentDevice{newFakeDevice()}
	ex := NewExecutor(dev, NewGate(), logx.Nop())

	err := ex.Execute(context.Background(), testInstance(), Action{Payload: "$w"}, fastSettings())
	require.Error(t, err)
	assert.True(t, IsNoRetry(err))
	assert.NotErrorIs(t, err, ErrExhaustedRetries)
	assert.Equal(t, 1, dev.count("click"))
}

func TestExecuteCanceledDuringBackoff(t *testing.T) {
	dev := newFakeDevice()
	dev.failClick.Store(100)
	ex := NewExecutor(dev, NewGate(), logx.Nop())

	set := fastSettings()
	set.RetryBackoff = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := ex.Execute(ctx, testInstance(), Action{Payload: "$w"}, set)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, dev.count("click"))
}

type verdict struct {
	ok    bool
	calls int
}

func (v *verdict) Verify(context.Context, Instance, string) (bool, error) {
	v.calls++
	return v.ok, nil
}

func TestExecuteVerifierIsAdvisory(t *testing.T) {
	dev := newFakeDevice()
	v := &verdict{ok: false}
	ex := NewExecutor(dev, NewGate(), logx.Nop(), WithVerifier(v))

	require.NoError(t, ex.Execute(context.Background(), testInstance(), Action{Payload: "$w"}, fastSettings()))
	assert.Equal(t, 1, v.calls)
}

func TestExecutePublishesEvents(t *testing.T) {
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	dev := newFakeDevice()
	dev.failClick.Store(1)
	ex := NewExecutor(dev, NewGate(), logx.Nop(), WithBus(bus))
	require.NoError(t, ex.Execute(context.Background(), testInstance(), Action{Cadence: "w", Payload: "$w"}, fastSettings()))

	var types []string
	var last ActionEvent
	for len(types) < 3 {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
			last = ev.Data.(ActionEvent)
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", types)
		}
	}
	assert.Equal(t, []string{eventbus.ActionAttempt, eventbus.ActionAttempt, eventbus.ActionSucceeded}, types)
	assert.Equal(t, 2, last.Attempts)
	assert.Equal(t, "w", last.Cadence)
	assert.NotEmpty(t, last.ID)
}
