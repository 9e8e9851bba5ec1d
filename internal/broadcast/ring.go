package broadcast

import "github.com/tristo-bit/skhoot-terminal/internal/models"

// ringBuffer is a fixed-capacity circular buffer of output lines. Oldest
// lines are overwritten first once the capacity is exceeded.
type ringBuffer struct {
	buf      []models.OutputLine
	capacity int
	pos      int // next write position
	full     bool
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]models.OutputLine, capacity),
		capacity: capacity,
	}
}

func (rb *ringBuffer) write(line models.OutputLine) {
	rb.buf[rb.pos] = line
	rb.pos = (rb.pos + 1) % rb.capacity
	if rb.pos == 0 {
		rb.full = true
	}
}

// snapshot returns the buffered lines in chronological order.
func (rb *ringBuffer) snapshot() []models.OutputLine {
	if !rb.full {
		out := make([]models.OutputLine, rb.pos)
		copy(out, rb.buf[:rb.pos])
		return out
	}
	out := make([]models.OutputLine, rb.capacity)
	copy(out, rb.buf[rb.pos:])
	copy(out[rb.capacity-rb.pos:], rb.buf[:rb.pos])
	return out
}

func (rb *ringBuffer) len() int {
	if rb.full {
		return rb.capacity
	}
	return rb.pos
}
