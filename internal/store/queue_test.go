package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangeQueue_FIFO(t *testing.T) {
	q := newChangeQueue()
	q.Enqueue(Change{ID: "a"})
	q.Enqueue(Change{ID: "b"})
	assert.Equal(t, 2, q.Len())

	c, ok := q.TryDequeue()
	assert.True(t, ok)
	assert.Equal(t, "a", c.ID)

	c, ok = q.TryDequeue()
	assert.True(t, ok)
	assert.Equal(t, "b", c.ID)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestChangeQueue_SignalCoalesces(t *testing.T) {
	q := newChangeQueue()
	q.Enqueue(Change{ID: "a"})
	q.Enqueue(Change{ID: "b"})

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestChangeQueue_Close(t *testing.T) {
	q := newChangeQueue()
	q.Enqueue(Change{ID: "a"})
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(Change{ID: "b"}))
	assert.Equal(t, 0, q.Len())

	// the buffered signal from Enqueue is still readable before the close
	<-q.Wait()
	_, open := <-q.Wait()
	assert.False(t, open)
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	resumed := NewClockAt(10)
	assert.Equal(t, int64(11), resumed.Next())
}
