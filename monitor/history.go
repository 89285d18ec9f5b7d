package monitor

import "sync"

// Sample is one loudness measurement. Time is seconds since the session
// started.
type Sample struct {
	Time float64
	RMS  float64
}

// History is a fixed-capacity rolling window of samples. Once full, each
// append evicts the oldest entry. Safe for concurrent use; the sampling
// loop appends while the UI snapshots.
type History struct {
	mu   sync.Mutex
	buf  []Sample
	head int
	n    int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{buf: make([]Sample, capacity)}
}

func (h *History) Append(s Sample) {
	h.mu.Lock()
	h.buf[h.head] = s
	h.head = (h.head + 1) % len(h.buf)
	if h.n < len(h.buf) {
		h.n++
	}
	h.mu.Unlock()
}

// Snapshot returns the window oldest-first. The slice is a copy; callers
// may hold it as long as they like.
func (h *History) Snapshot() []Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Sample, h.n)
	start := h.head - h.n
	if start < 0 {
		start += len(h.buf)
	}
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(start+i)%len(h.buf)]
	}
	return out
}

func (h *History) Clear() {
	h.mu.Lock()
	h.head = 0
	h.n = 0
	h.mu.Unlock()
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}
