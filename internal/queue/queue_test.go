package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PushPopOrder(t *testing.T) {
	t.Parallel()

	q := New()
	assert.Equal(t, 0, q.Length())

	q.PushBack(1)
	q.PushBack(2)
	q.PushBack(3)
	require.Equal(t, 3, q.Length())

	n := q.PopFront()
	require.NotNil(t, n)
	assert.Equal(t, 1, n.Value())

	q.PushFront(0)
	n = q.PopFront()
	require.NotNil(t, n)
	assert.Equal(t, 0, n.Value())

	n = q.PopFront()
	assert.Equal(t, 2, n.Value())
	n = q.PopFront()
	assert.Equal(t, 3, n.Value())
	assert.Nil(t, q.PopFront())
	assert.Equal(t, 0, q.Length())
}

func TestQueue_NextTraversal(t *testing.T) {
	t.Parallel()

	q := New()
	q.PushBack("a")
	q.PushBack("b")
	q.PushBack("c")

	var got []any
	for n := q.Front(); n != nil; n = q.Next(n) {
		got = append(got, n.Value())
	}
	assert.Equal(t, []any{"a", "b", "c"}, got)
}

func TestQueue_EvictMidList(t *testing.T) {
	t.Parallel()

	q := New()
	na := q.PushBack("a")
	nb := q.PushBack("b")
	nc := q.PushBack("c")

	q.Evict(nb)
	require.Equal(t, 2, q.Length())

	var got []any
	for n := q.Front(); n != nil; n = q.Next(n) {
		got = append(got, n.Value())
	}
	assert.Equal(t, []any{"a", "c"}, got)

	q.Evict(na)
	q.Evict(nc)
	assert.Equal(t, 0, q.Length())
}

func TestQueue_EvictHeadAndTail(t *testing.T) {
	t.Parallel()

	q := New()
	na := q.PushBack("a")
	_ = q.PushBack("b")
	nc := q.PushBack("c")

	q.Evict(na)
	assert.Equal(t, "b", q.Front().Value())

	q.Evict(nc)
	assert.Equal(t, 1, q.Length())
	assert.Equal(t, "b", q.Front().Value())
}

func TestQueue_DoubleEvictPanics(t *testing.T) {
	t.Parallel()

	q := New()
	n := q.PushBack("a")
	q.Evict(n)
	assert.Panics(t, func() {
		q.Evict(n)
	})
}
