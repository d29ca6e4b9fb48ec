package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanout(t *testing.T) {
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub1()
	defer unsub2()

	b.Publish(Event{Type: ActionSucceeded, Data: "A"})

	e1 := <-ch1
	e2 := <-ch2
	assert.Equal(t, ActionSucceeded, e1.Type)
	assert.Equal(t, "A", e2.Data)
	assert.False(t, e1.Time.IsZero())
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: ActionAttempt})
	}
	assert.Equal(t, uint64(4), Dropped(b))
}

func TestUnsubscribeCloses(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	_, ok := <-ch
	require.False(t, ok)
	b.Publish(Event{Type: InstanceState})
}
