package mqtt

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	buf      []Message
	capacity int
	head     int // next write position
	count    int
	overflow bool // set once the oldest message has been dropped since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{
		buf:      make([]Message, capacity),
		capacity: capacity,
	}
}

// push appends msg, overwriting the oldest message when full. It reports true
// the first time a message is dropped after a drain.
func (r *ringBuffer) push(msg Message) (firstDrop bool) {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
		return false
	}
	firstDrop = !r.overflow
	r.overflow = true
	return firstDrop
}

// drainAll returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []Message {
	if r.count == 0 {
		return nil
	}

	out := make([]Message, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := range out {
		out[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	r.overflow = false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
