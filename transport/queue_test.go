package transport

import (
	"testing"
	"time"

	"node-rpc/message"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendQueueStrictPriority(t *testing.T) {
	q := newSendQueue(8)
	require.NoError(t, q.push(message.Low, []byte("low-1")))
	require.NoError(t, q.push(message.High, []byte("high-1")))
	require.NoError(t, q.push(message.Medium, []byte("medium-1")))
	require.NoError(t, q.push(message.High, []byte("high-2")))
	require.NoError(t, q.push(message.Low, []byte("low-2")))

	assert.Equal(t, []string{"high-1", "high-2", "medium-1", "low-1", "low-2"}, drain(t, q))
}

func drain(t *testing.T, q *sendQueue) []string {
	t.Helper()
	var got []string
	for q.len() > 0 {
		f, ok := q.pop(nil)
		require.True(t, ok)
		got = append(got, string(f))
	}
	return got
}

func TestSendQueueOrderedLaneKeepsPushOrder(t *testing.T) {
	q := newSendQueue(8)
	require.NoError(t, q.pushOrdered(message.Low, []byte("first")))
	require.NoError(t, q.pushOrdered(message.High, []byte("second")))
	require.NoError(t, q.pushOrdered(message.Medium, []byte("third")))
	assert.Equal(t, []string{"first", "second", "third"}, drain(t, q))
}

func TestSendQueueOrderedHeadCompetesByPriority(t *testing.T) {
	q := newSendQueue(8)
	require.NoError(t, q.pushOrdered(message.Low, []byte("ordered-low")))
	require.NoError(t, q.pushOrdered(message.High, []byte("ordered-high")))
	require.NoError(t, q.push(message.Medium, []byte("medium")))
	require.NoError(t, q.push(message.High, []byte("heartbeat")))
	require.NoError(t, q.pushForce(message.Low, []byte("bye")))

	assert.Equal(t, []string{"heartbeat", "medium", "ordered-low", "ordered-high", "bye"}, drain(t, q))
}

func TestSendQueueOrderedLaneLimit(t *testing.T) {
	q := newSendQueue(2)
	require.NoError(t, q.pushOrdered(message.Low, []byte("a")))
	require.NoError(t, q.pushOrdered(message.High, []byte("b")))
	err := q.pushOrdered(message.Medium, []byte("c"))
	assert.True(t, errors.Is(err, ErrQueueFull), "got %v", err)
	assert.NoError(t, q.push(message.Medium, []byte("d")))
}

func TestSendQueueLimitAndForce(t *testing.T) {
	q := newSendQueue(1)
	require.NoError(t, q.push(message.Low, []byte("a")))
	err := q.push(message.Low, []byte("b"))
	assert.True(t, errors.Is(err, ErrQueueFull), "got %v", err)
	assert.NoError(t, q.push(message.High, []byte("c")), "limit is per level")
	assert.NoError(t, q.pushForce(message.Low, []byte("bye")))
	assert.Equal(t, 3, q.len())
}

func TestSendQueueCloseDrains(t *testing.T) {
	q := newSendQueue(4)
	require.NoError(t, q.push(message.Medium, []byte("x")))
	q.close()
	assert.True(t, errors.Is(q.push(message.Medium, []byte("y")), ErrClosed))

	f, ok := q.pop(nil)
	require.True(t, ok)
	assert.Equal(t, "x", string(f))
	_, ok = q.pop(nil)
	assert.False(t, ok)
}

func TestSendQueuePopWakesOnPush(t *testing.T) {
	q := newSendQueue(4)
	got := make(chan string, 1)
	go func() {
		f, _ := q.pop(nil)
		got <- string(f)
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.push(message.Low, []byte("late")))
	select {
	case s := <-got:
		assert.Equal(t, "late", s)
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not wake up")
	}
}

func TestSendQueuePopStopsOnDone(t *testing.T) {
	q := newSendQueue(4)
	done := make(chan struct{})
	close(done)
	_, ok := q.pop(done)
	assert.False(t, ok)
}
