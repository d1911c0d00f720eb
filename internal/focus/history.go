package focus

// DefaultHistorySize is how many recent samples a Monitor keeps for diagnostics.
const DefaultHistorySize = 100

// History is a fixed-capacity FIFO of the most recent samples.
type History struct {
	buf   []Sample
	start int
	n     int
}

// NewHistory creates a history holding at most capacity samples.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{buf: make([]Sample, capacity)}
}

// Push appends s, evicting the oldest sample when full.
func (h *History) Push(s Sample) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = s
		h.n++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of retained samples.
func (h *History) Len() int { return h.n }

// Cap returns the maximum number of retained samples.
func (h *History) Cap() int { return len(h.buf) }

// Snapshot returns a copy of the retained samples, oldest first.
func (h *History) Snapshot() []Sample {
	out := make([]Sample, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}
