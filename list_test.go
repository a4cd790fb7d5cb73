package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listNode struct {
	id int
	ln Link[listNode]
}

func nodeLink(n *listNode) *Link[listNode] { return &n.ln }

func TestIntrusiveListPushAndOrder(t *testing.T) {
	l := NewIntrusiveList(nodeLink)
	assert.True(t, l.Empty())
	assert.Equal(t, 0, l.Len())

	a, b, c := &listNode{id: 1}, &listNode{id: 2}, &listNode{id: 3}
	l.PushBack(a)
	l.PushBack(b)
	l.PushFront(c)

	require.Equal(t, 3, l.Len())
	assert.Same(t, c, l.Front())
	assert.Same(t, b, l.Back())

	var ids []int
	l.Do(func(n *listNode) { ids = append(ids, n.id) })
	assert.Equal(t, []int{3, 1, 2}, ids)
}

func TestIntrusiveListRemove(t *testing.T) {
	l := NewIntrusiveList(nodeLink)
	a, b, c := &listNode{id: 1}, &listNode{id: 2}, &listNode{id: 3}
	l.PushBack(a)
	l.PushBack(b)
	l.PushBack(c)

	l.Remove(b)
	require.Equal(t, 2, l.Len())
	assert.Same(t, c, l.Next(a))
	assert.Same(t, a, l.Prev(c))

	l.Remove(a)
	l.Remove(c)
	assert.True(t, l.Empty())
	assert.Nil(t, l.Front())
	assert.Nil(t, l.Back())
}

func TestIntrusiveListInsertBefore(t *testing.T) {
	l := NewIntrusiveList(nodeLink)
	a, b, c := &listNode{id: 1}, &listNode{id: 2}, &listNode{id: 3}
	l.PushBack(a)
	l.PushBack(c)
	l.InsertBefore(b, c)

	var ids []int
	l.Do(func(n *listNode) { ids = append(ids, n.id) })
	assert.Equal(t, []int{1, 2, 3}, ids)

	d := &listNode{id: 4}
	l.InsertBefore(d, nil)
	assert.Same(t, d, l.Back())
}

func TestIntrusiveListPopFront(t *testing.T) {
	l := NewIntrusiveList(nodeLink)
	assert.Nil(t, l.PopFront())

	a, b := &listNode{id: 1}, &listNode{id: 2}
	l.PushBack(a)
	l.PushBack(b)

	got := l.PopFront()
	assert.Same(t, a, got)
	assert.Equal(t, 1, l.Len())
	assert.Same(t, b, l.Front())
}
