package audio

import (
	"encoding/binary"
	"sync"
)

// blockRing holds the newest blockSize samples written by a capture
// callback. Old samples are overwritten as new ones arrive, so a snapshot
// is always the latest block the device produced, regardless of how slowly
// the consumer polls.
type blockRing struct {
	mu        sync.Mutex
	buf       []float32
	head      int
	filled    int
	level     float64
	smoothing float64
}

func newBlockRing(blockSize int, smoothing float64) *blockRing {
	if blockSize <= 0 {
		blockSize = BlockSize
	}
	return &blockRing{
		buf:       make([]float32, blockSize),
		smoothing: smoothing,
	}
}

// writeS16LE converts little-endian signed 16-bit frames to normalized
// float32 and pushes them into the ring.
func (r *blockRing) writeS16LE(data []byte) {
	n := len(data) / 2
	if n == 0 {
		return
	}
	r.mu.Lock()
	peak := float32(0)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		peak = r.push(float32(v)/32768.0, peak)
	}
	r.bump(peak)
	r.mu.Unlock()
}

// writeS16 is the same conversion for callbacks that already decode frames.
func (r *blockRing) writeS16(buf []int16) {
	if len(buf) == 0 {
		return
	}
	r.mu.Lock()
	peak := float32(0)
	for _, v := range buf {
		peak = r.push(float32(v)/32768.0, peak)
	}
	r.bump(peak)
	r.mu.Unlock()
}

// writeFloats pushes already normalized samples, used by synthetic sources.
func (r *blockRing) writeFloats(buf []float32) {
	if len(buf) == 0 {
		return
	}
	r.mu.Lock()
	peak := float32(0)
	for _, f := range buf {
		peak = r.push(f, peak)
	}
	r.bump(peak)
	r.mu.Unlock()
}

// push stores one sample and tracks the running peak. Caller holds r.mu.
func (r *blockRing) push(f, peak float32) float32 {
	r.buf[r.head] = f
	r.head = (r.head + 1) % len(r.buf)
	if r.filled < len(r.buf) {
		r.filled++
	}
	if f > peak {
		return f
	}
	if -f > peak {
		return -f
	}
	return peak
}

// bump folds a chunk peak into the smoothed meter level. Caller holds r.mu.
// High coefficient means slow decay, WebAudio-style.
func (r *blockRing) bump(peak float32) {
	r.level = r.smoothing*r.level + (1-r.smoothing)*float64(peak)
}

// snapshot copies the ring contents in arrival order. Empty until the
// first write.
func (r *blockRing) snapshot() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled == 0 {
		return nil
	}
	out := make([]float32, r.filled)
	start := r.head - r.filled
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.filled; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

func (r *blockRing) currentLevel() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.level
}

func (r *blockRing) reset() {
	r.mu.Lock()
	r.head = 0
	r.filled = 0
	r.level = 0
	r.mu.Unlock()
}
