package resource

// Ring retains the most recent content instances of a container.
//
// With a positive capacity it is a FIFO ring buffer: appending to a full
// ring evicts the oldest instance. A capacity of Unbounded keeps every
// instance.
//
// Ring is not safe for concurrent use; Tree guards its rings.
type Ring struct {
	capacity int
	items    []ContentInstance
	head     int // index of the oldest item once the ring is full
}

// NewRing creates a ring with the given capacity (0 = unbounded).
// Negative capacities are treated as unbounded.
func NewRing(capacity int) *Ring {
	if capacity < 0 {
		capacity = Unbounded
	}
	r := &Ring{capacity: capacity}
	if capacity > 0 {
		r.items = make([]ContentInstance, 0, capacity)
	}
	return r
}

// Append adds an instance and returns the evicted instance, if any.
func (r *Ring) Append(ci ContentInstance) (evicted ContentInstance, ok bool) {
	if r.capacity == Unbounded || len(r.items) < r.capacity {
		r.items = append(r.items, ci)
		return ContentInstance{}, false
	}

	evicted = r.items[r.head]
	r.items[r.head] = ci
	r.head = (r.head + 1) % r.capacity
	return evicted, true
}

// Len returns the number of retained instances.
func (r *Ring) Len() int {
	return len(r.items)
}

// Capacity returns the configured capacity (0 = unbounded).
func (r *Ring) Capacity() int {
	return r.capacity
}

// Snapshot returns retained instances oldest first.
func (r *Ring) Snapshot() []ContentInstance {
	out := make([]ContentInstance, 0, len(r.items))
	out = append(out, r.items[r.head:]...)
	out = append(out, r.items[:r.head]...)
	return out
}

// Latest returns the most recently appended instance.
func (r *Ring) Latest() (ContentInstance, bool) {
	if len(r.items) == 0 {
		return ContentInstance{}, false
	}
	if r.head == 0 {
		return r.items[len(r.items)-1], true
	}
	return r.items[r.head-1], true
}
