package internal

// Ring is a fixed-capacity FIFO addressed by logical index, where index 0 is
// the oldest entry and Len()-1 the newest. Pushing onto a full ring evicts
// the oldest entry in place; storage is only reallocated by Resize.
//
// Ring is not safe for concurrent use.
type Ring[T any] struct {
	buf   []T
	head  int // physical index of the oldest entry
	count int
}

// NewRing creates an empty ring holding at most capacity entries.
// Panics if capacity is less than 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		panic("vstab: ring capacity must be at least 1")
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

func (r *Ring[T]) physical(i int) int {
	return (r.head + i) % len(r.buf)
}

// Push appends v as the newest entry, evicting the oldest when full.
func (r *Ring[T]) Push(v T) {
	if r.count == len(r.buf) {
		r.buf[r.head] = v
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[r.physical(r.count)] = v
	r.count++
}

// Skip discards the n oldest entries. Their slots are zeroed so the ring
// stops referencing them, but the storage itself is kept.
// Panics if n is negative or larger than Len().
func (r *Ring[T]) Skip(n int) {
	if n < 0 || n > r.count {
		panic("vstab: ring skip out of range")
	}
	var zero T
	for i := 0; i < n; i++ {
		r.buf[r.physical(i)] = zero
	}
	r.head = r.physical(n)
	r.count -= n
}

// Pop removes and returns the oldest entry.
// Returns (zero, false) if the ring is empty.
func (r *Ring[T]) Pop() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	v := r.buf[r.head]
	r.Skip(1)
	return v, true
}

// At returns the entry at logical index i (0 = oldest).
func (r *Ring[T]) At(i int) T {
	r.check(i)
	return r.buf[r.physical(i)]
}

// Set replaces the entry at logical index i.
func (r *Ring[T]) Set(i int, v T) {
	r.check(i)
	r.buf[r.physical(i)] = v
}

func (r *Ring[T]) check(i int) {
	if i < 0 || i >= r.count {
		panic("vstab: ring index out of range")
	}
}

// Oldest returns the oldest entry. Panics if the ring is empty.
func (r *Ring[T]) Oldest() T {
	return r.At(0)
}

// Newest returns the most recently pushed entry. Panics if the ring is empty.
func (r *Ring[T]) Newest() T {
	return r.At(r.count - 1)
}

// Centre returns the entry offset positions away from the middle of the
// ring. The middle is only a true centre once the ring is full and its
// capacity is odd.
func (r *Ring[T]) Centre(offset int) T {
	return r.At((r.count-1)/2 + offset)
}

// Len returns the number of entries held.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the maximum number of entries.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// IsFull reports whether Len() == Cap().
func (r *Ring[T]) IsFull() bool { return r.count == len(r.buf) }

// IsEmpty reports whether Len() == 0.
func (r *Ring[T]) IsEmpty() bool { return r.count == 0 }

// Clear removes all entries, keeping the capacity.
func (r *Ring[T]) Clear() {
	clear(r.buf)
	r.head = 0
	r.count = 0
}

// Resize changes the capacity while preserving chronological order.
// Shrinking drops the oldest entries first. Growing keeps every entry and
// leaves the new slack before the oldest one, to be filled either by
// PadFront or by future pushes.
// Panics if capacity is less than 1.
func (r *Ring[T]) Resize(capacity int) {
	if capacity < 1 {
		panic("vstab: ring capacity must be at least 1")
	}
	if capacity == len(r.buf) {
		return
	}
	keep := min(r.count, capacity)
	buf := make([]T, capacity)
	for i := 0; i < keep; i++ {
		buf[i] = r.At(r.count - keep + i)
	}
	r.buf = buf
	r.head = 0
	r.count = keep
}

// PadFront inserts copies of v before the oldest entry until the ring is
// full. It returns the number of entries inserted.
func (r *Ring[T]) PadFront(v T) int {
	n := len(r.buf) - r.count
	for i := 0; i < n; i++ {
		r.head = (r.head - 1 + len(r.buf)) % len(r.buf)
		r.buf[r.head] = v
		r.count++
	}
	return n
}
