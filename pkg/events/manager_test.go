package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribePublishDelivers(t *testing.T) {
	m := NewManager()
	sub, unsubscribe := m.Subscribe("sess-1")
	defer unsubscribe()

	m.Publish(ClearAllEvent{Session: "sess-1", ID: 1})

	select {
	case ev := <-sub.Events:
		assert.Equal(t, uint64(1), ev.EventID())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestPublishOnlyReachesSameSessionSubscribers(t *testing.T) {
	m := NewManager()
	subA, unsubA := m.Subscribe("sess-a")
	defer unsubA()
	subB, unsubB := m.Subscribe("sess-b")
	defer unsubB()

	m.Publish(ClearAllEvent{Session: "sess-a", ID: 1})

	select {
	case <-subA.Events:
	case <-time.After(time.Second):
		t.Fatal("expected event for sess-a")
	}

	select {
	case <-subB.Events:
		t.Fatal("sess-b should not have received sess-a's event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesDone(t *testing.T) {
	m := NewManager()
	sub, unsubscribe := m.Subscribe("sess-1")
	require.Equal(t, 1, m.SubscriberCount("sess-1"))

	unsubscribe()

	select {
	case <-sub.Done:
	default:
		t.Fatal("expected Done to be closed after unsubscribe")
	}
	assert.Equal(t, 0, m.SubscriberCount("sess-1"))
}

func TestSlowConsumerIsDisconnectedNotBlocking(t *testing.T) {
	m := NewManager()
	sub, unsubscribe := m.Subscribe("sess-1")
	defer unsubscribe()

	for i := 0; i < subscriberQueueSize+5; i++ {
		m.Publish(ClearAllEvent{Session: "sess-1", ID: uint64(i)})
	}

	assert.Equal(t, 0, m.SubscriberCount("sess-1"))
	_ = sub
}
