package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextEventIDIsMonotonic(t *testing.T) {
	b := NewBuffer()
	assert.Equal(t, uint64(1), b.NextEventID())
	assert.Equal(t, uint64(2), b.NextEventID())
	assert.Equal(t, uint64(3), b.NextEventID())
}

func TestSnapshotReturnsAppendedEventsInOrder(t *testing.T) {
	b := NewBuffer()
	b.Append(ClearAllEvent{Session: "s", ID: 1})
	b.Append(ClearAllEvent{Session: "s", ID: 2})

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, uint64(1), snap[0].EventID())
	assert.Equal(t, uint64(2), snap[1].EventID())
}

func TestBufferEvictsOldestPastCapacity(t *testing.T) {
	b := NewBuffer()
	for i := 0; i < bufferCapacity+5; i++ {
		b.Append(ClearAllEvent{Session: "s", ID: uint64(i)})
	}

	snap := b.Snapshot()
	require.Len(t, snap, bufferCapacity)
	assert.Equal(t, uint64(5), snap[0].EventID())
	assert.Equal(t, uint64(bufferCapacity+4), snap[len(snap)-1].EventID())
}

func TestSnapshotReturnsIndependentCopy(t *testing.T) {
	b := NewBuffer()
	b.Append(ClearAllEvent{Session: "s", ID: 1})

	snap := b.Snapshot()
	snap[0] = ClearAllEvent{Session: "mutated", ID: 99}

	fresh := b.Snapshot()
	assert.Equal(t, "s", fresh[0].SessionID())
}
