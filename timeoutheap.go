package kernel

// timeoutHeap is a binary min-heap: timeouts are
// ordered by wrapping-signed distance from a caller-supplied critical point
// (the tickless engine's CET minus the headroom zones; see tickengine.go),
// and every sift operation keeps timeoutEntry.heapPos current so an entry can be
// removed by reference in O(log N), which is what makes the RAII
// unregistration path on every blocking call's exit cheap.
type timeoutHeap struct {
	items []*timeoutEntry
}

// notQueued is the sentinel heapPos meaning "not currently in any heap".
const notQueued = -1

func timeoutBefore(a, b, crit uint32) bool {
	return (a - crit) < (b - crit)
}

func (h *timeoutHeap) len() int { return len(h.items) }

func (h *timeoutHeap) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].heapPos = i
	h.items[j].heapPos = j
}

func (h *timeoutHeap) siftUp(i int, crit uint32) {
	for i > 0 {
		p := (i - 1) / 2
		if !timeoutBefore(h.items[i].at, h.items[p].at, crit) {
			break
		}
		h.swap(i, p)
		i = p
	}
}

func (h *timeoutHeap) siftDown(i int, crit uint32) {
	n := len(h.items)
	for {
		l, r := 2*i+1, 2*i+2
		smallest := i
		if l < n && timeoutBefore(h.items[l].at, h.items[smallest].at, crit) {
			smallest = l
		}
		if r < n && timeoutBefore(h.items[r].at, h.items[smallest].at, crit) {
			smallest = r
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}

// push enqueues t, which must not already be queued (t.heapPos == notQueued).
func (h *timeoutHeap) push(t *timeoutEntry, crit uint32) {
	if t.heapPos != notQueued {
		panicf("timeout already queued")
	}
	t.heapPos = len(h.items)
	h.items = append(h.items, t)
	h.siftUp(t.heapPos, crit)
}

// remove is a no-op if t is not currently queued, which lets the
// unregistration guard fire unconditionally on every exit path without
// tracking whether the timeout already fired.
func (h *timeoutHeap) remove(t *timeoutEntry, crit uint32) {
	i := t.heapPos
	if i == notQueued {
		return
	}
	last := len(h.items) - 1
	if i != last {
		h.swap(i, last)
	}
	h.items[last].heapPos = notQueued
	h.items = h.items[:last]
	if i < last {
		h.siftDown(i, crit)
		h.siftUp(i, crit)
	}
}

// peek returns the earliest timeout (relative to crit) without removing it.
func (h *timeoutHeap) peek() *timeoutEntry {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// pop removes and returns the earliest timeout, or nil if empty.
func (h *timeoutHeap) pop(crit uint32) *timeoutEntry {
	t := h.peek()
	if t != nil {
		h.remove(t, crit)
	}
	return t
}

// verifyHeapPos is a testing/assertion hook: for every timeout in the
// heap, its stored heapPos must equal its actual index.
func (h *timeoutHeap) verifyHeapPos() bool {
	for i, t := range h.items {
		if t.heapPos != i {
			return false
		}
	}
	return true
}
