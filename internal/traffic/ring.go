package traffic

// ring is a fixed-capacity FIFO ring buffer. Pushing past capacity evicts
// the oldest element. Indexing is logical: At(0) is the oldest element.
type ring[T any] struct {
	buf  []T
	head int // next write position
	size int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element once the ring is full.
func (r *ring[T]) Push(v T) (evicted T, wasEvicted bool) {
	if r.size == len(r.buf) {
		evicted = r.buf[r.head]
		wasEvicted = true
	} else {
		r.size++
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return evicted, wasEvicted
}

// Len returns the number of stored elements.
func (r *ring[T]) Len() int { return r.size }

// Cap returns the ring capacity.
func (r *ring[T]) Cap() int { return len(r.buf) }

// At returns the i-th element in insertion order; At(0) is the oldest.
func (r *ring[T]) At(i int) T {
	start := (r.head - r.size + len(r.buf)) % len(r.buf)
	return r.buf[(start+i)%len(r.buf)]
}

// Oldest returns the least recently pushed element.
func (r *ring[T]) Oldest() T { return r.At(0) }

// Newest returns the most recently pushed element.
func (r *ring[T]) Newest() T { return r.At(r.size - 1) }

// Reset empties the ring without releasing the backing array.
func (r *ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.size = 0
}

// ringArena owns the per-track sample rings. Rings freed by Forget are kept
// on a free list and reused so steady-state tracking does not allocate.
type ringArena[T any] struct {
	capacity int
	rings    map[int64]*ring[T]
	free     []*ring[T]
}

func newRingArena[T any](capacity int) *ringArena[T] {
	return &ringArena[T]{
		capacity: capacity,
		rings:    make(map[int64]*ring[T]),
	}
}

// Get returns the ring for trackID, allocating or reusing one if needed.
func (a *ringArena[T]) Get(trackID int64) *ring[T] {
	if r, ok := a.rings[trackID]; ok {
		return r
	}
	var r *ring[T]
	if n := len(a.free); n > 0 {
		r = a.free[n-1]
		a.free = a.free[:n-1]
		r.Reset()
	} else {
		r = newRing[T](a.capacity)
	}
	a.rings[trackID] = r
	return r
}

// Peek returns the ring for trackID without allocating.
func (a *ringArena[T]) Peek(trackID int64) (*ring[T], bool) {
	r, ok := a.rings[trackID]
	return r, ok
}

// Forget releases the ring for trackID back to the free list.
func (a *ringArena[T]) Forget(trackID int64) {
	if r, ok := a.rings[trackID]; ok {
		delete(a.rings, trackID)
		a.free = append(a.free, r)
	}
}

// Reset releases every ring back to the free list.
func (a *ringArena[T]) Reset() {
	for id, r := range a.rings {
		delete(a.rings, id)
		a.free = append(a.free, r)
	}
}

// Len returns the number of live rings.
func (a *ringArena[T]) Len() int { return len(a.rings) }
