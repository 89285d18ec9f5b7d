package audio

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-audio/wav"
)

// FakeContext replays prepared sample blocks instead of touching real
// hardware. It backs the -test mode and the monitor tests.
type FakeContext struct {
	blocks [][]float32

	// OpenErr, when set, is returned from NewSource to simulate an
	// unavailable device.
	OpenErr error
	// StartErr, when set, is returned from Source.Start.
	StartErr error

	mu    sync.Mutex
	opens int
	last  *FakeSource
}

func NewFakeContext(blocks [][]float32) *FakeContext {
	return &FakeContext{blocks: blocks}
}

// NewFileContext builds a fake context from a WAV file, chunked into
// capture-sized blocks. Multi-channel files are mixed down to mono.
func NewFileContext(path string) (*FakeContext, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	scale := float32(int(1) << (dec.BitDepth - 1))
	frames := len(buf.Data) / channels

	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float32(channels)
	}

	var blocks [][]float32
	for pos := 0; pos < len(samples); pos += BlockSize {
		end := min(pos+BlockSize, len(samples))
		blocks = append(blocks, samples[pos:end])
	}
	return NewFakeContext(blocks), nil
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) NewSource(device *DeviceInfo, config SourceConfig) (Source, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	blockSize := config.BlockSize
	if blockSize <= 0 {
		blockSize = BlockSize
	}
	name := "fake"
	if device != nil {
		name = device.Name
	}
	src := &FakeSource{ctx: f, name: name, blocks: f.blocks, blockSize: blockSize}
	f.mu.Lock()
	f.opens++
	f.last = src
	f.mu.Unlock()
	return src, nil
}

func (f *FakeContext) Close() {}

// Opens reports how many sources were handed out, so tests can assert a
// failed session never opened the device.
func (f *FakeContext) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

// Last returns the most recently opened source, for teardown assertions.
func (f *FakeContext) Last() *FakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// FakeSource steps through its block list one Read at a time and yields
// silence once the material runs out, like a real mic in a quiet room.
type FakeSource struct {
	ctx       *FakeContext
	name      string
	blocks    [][]float32
	blockSize int

	mu      sync.Mutex
	pos     int
	reads   int
	running bool
	level   float64
}

func (s *FakeSource) Start() error {
	if s.ctx != nil && s.ctx.StartErr != nil {
		return s.ctx.StartErr
	}
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	return nil
}

func (s *FakeSource) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *FakeSource) Close() {
	s.Stop()
}

func (s *FakeSource) Read() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	var block []float32
	if s.pos < len(s.blocks) {
		block = s.blocks[s.pos]
		s.pos++
	} else {
		block = make([]float32, s.blockSize)
	}
	s.level = Smoothing*s.level + (1-Smoothing)*Peak(block)
	return block
}

func (s *FakeSource) Level() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

func (s *FakeSource) DeviceName() string { return s.name }

func (s *FakeSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *FakeSource) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
