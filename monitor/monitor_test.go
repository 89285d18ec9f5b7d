package monitor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"klaxon/audio"
)

// recordSink collects every event the monitor pushes out.
type recordSink struct {
	mu      sync.Mutex
	started []string
	stopped int
	samples []Sample
	lastLen int
	edges   []bool
	alerts  []float64
	silents []bool
}

func (r *recordSink) Started(device string) {
	r.mu.Lock()
	r.started = append(r.started, device)
	r.mu.Unlock()
}

func (r *recordSink) Stopped() {
	r.mu.Lock()
	r.stopped++
	r.mu.Unlock()
}

func (r *recordSink) Sample(s Sample, _ bool, history []Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.lastLen = len(history)
	r.mu.Unlock()
}

func (r *recordSink) AlarmChanged(active bool) {
	r.mu.Lock()
	r.edges = append(r.edges, active)
	r.mu.Unlock()
}

func (r *recordSink) Alert(rms float64) {
	r.mu.Lock()
	r.alerts = append(r.alerts, rms)
	r.mu.Unlock()
}

func (r *recordSink) InputSilent(silent bool) {
	r.mu.Lock()
	r.silents = append(r.silents, silent)
	r.mu.Unlock()
}

func (r *recordSink) silentEvents() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.silents...)
}

func (r *recordSink) sampleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func (r *recordSink) alertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	cfg.Cooldown = 150 * time.Millisecond
	cfg.Decay = 40 * time.Millisecond
	return cfg
}

func loudBlocks(n int) [][]float32 {
	blocks := make([][]float32, n)
	for i := range blocks {
		block := make([]float32, 64)
		for j := range block {
			block[j] = 0.5
		}
		blocks[i] = block
	}
	return blocks
}

func TestMonitorLifecycle(t *testing.T) {
	ctx := audio.NewFakeContext(nil) // silence only
	sink := &recordSink{}
	m := New(ctx, nil, testConfig(), sink)

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if st := m.State(); !st.Running {
		t.Error("state not running after Start")
	}
	waitFor(t, "first sample", func() bool { return sink.sampleCount() >= 1 })

	sink.mu.Lock()
	if len(sink.started) != 1 || sink.started[0] != "fake" {
		t.Errorf("started events = %v, want [fake]", sink.started)
	}
	sink.mu.Unlock()

	m.Stop()
	if st := m.State(); st.Running {
		t.Error("state still running after Stop")
	}
	if src := ctx.Last(); src.Running() {
		t.Error("device still capturing after Stop")
	}
	sink.mu.Lock()
	stopped := sink.stopped
	sink.mu.Unlock()
	if stopped != 1 {
		t.Errorf("stopped events = %d, want 1", stopped)
	}

	// Stop is idempotent.
	m.Stop()
	sink.mu.Lock()
	stopped = sink.stopped
	sink.mu.Unlock()
	if stopped != 1 {
		t.Errorf("stopped events after second Stop = %d, want 1", stopped)
	}
}

func TestMonitorStopBeforeStart(t *testing.T) {
	ctx := audio.NewFakeContext(nil)
	m := New(ctx, nil, testConfig(), nil)

	// Nothing to stop yet; must be a harmless no-op.
	m.Stop()
	if st := m.State(); st.Running {
		t.Error("state running after Stop on an idle monitor")
	}
	if ctx.Opens() != 0 {
		t.Errorf("opens = %d, want 0", ctx.Opens())
	}

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	m.Stop()
}

func TestMonitorStartWhileRunning(t *testing.T) {
	ctx := audio.NewFakeContext(nil)
	m := New(ctx, nil, testConfig(), nil)
	defer m.Stop()

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("second Start returned %v, want nil no-op", err)
	}
	if ctx.Opens() != 1 {
		t.Errorf("opens = %d, want 1", ctx.Opens())
	}
}

func TestMonitorSetDevice(t *testing.T) {
	ctx := audio.NewFakeContext(nil)
	m := New(ctx, nil, testConfig(), nil)
	defer m.Stop()

	dev := &audio.DeviceInfo{ID: "fake", Name: "USB Mic"}
	if err := m.SetDevice(dev); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.SetDevice(nil); err == nil {
		t.Fatal("SetDevice succeeded while running, want error")
	}
	if got := m.State().Device; got != "USB Mic" {
		t.Errorf("device = %q, want %q", got, "USB Mic")
	}
}

func TestMonitorSamplesAccumulate(t *testing.T) {
	ctx := audio.NewFakeContext(nil)
	sink := &recordSink{}
	m := New(ctx, nil, testConfig(), sink)
	defer m.Stop()

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "three samples", func() bool { return sink.sampleCount() >= 3 })

	hist := m.History()
	if len(hist) < 3 {
		t.Fatalf("history len = %d, want >= 3", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].Time < hist[i-1].Time {
			t.Fatalf("history out of order at %d", i)
		}
	}
	sink.mu.Lock()
	lastLen := sink.lastLen
	n := len(sink.samples)
	sink.mu.Unlock()
	if lastLen != n {
		t.Errorf("sink history len = %d, want %d (one entry per sample)", lastLen, n)
	}
}

func TestMonitorSkipsEmptyBlock(t *testing.T) {
	// A device can hand back a zero-length block before its buffers
	// fill. That tick must not produce a sample or touch the history;
	// the next one proceeds normally.
	quiet := make([]float32, 64)
	for i := range quiet {
		quiet[i] = 0.02
	}
	ctx := audio.NewFakeContext([][]float32{{}, quiet})
	sink := &recordSink{}
	m := New(ctx, nil, testConfig(), sink)

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first sample", func() bool { return sink.sampleCount() >= 1 })
	m.Stop()

	sink.mu.Lock()
	first := sink.samples[0]
	n := len(sink.samples)
	sink.mu.Unlock()
	if first.RMS < 0.019 || first.RMS > 0.021 {
		t.Errorf("first sample rms = %v, want the quiet block, not the empty one", first.RMS)
	}
	hist := m.History()
	if len(hist) != n {
		t.Fatalf("history len = %d, want %d: a skipped tick must not append", len(hist), n)
	}
	if hist[0].RMS != first.RMS {
		t.Errorf("history starts at rms %v, want %v", hist[0].RMS, first.RMS)
	}
	// Every read except the empty first one became a sample.
	if reads := ctx.Last().Reads(); reads != n+1 {
		t.Errorf("%d reads for %d samples, want exactly one skipped", reads, n)
	}
}

func TestMonitorAlertsOnLoudInput(t *testing.T) {
	ctx := audio.NewFakeContext(loudBlocks(100))
	sink := &recordSink{}
	m := New(ctx, nil, testConfig(), sink)
	defer m.Stop()

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "an alert", func() bool { return sink.alertCount() >= 1 })

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.edges) == 0 || !sink.edges[0] {
		t.Errorf("alarm edges = %v, want leading true", sink.edges)
	}
	if sink.alerts[0] <= 0.05 {
		t.Errorf("alert rms = %v, want above threshold", sink.alerts[0])
	}
	if st := m.State(); st.Alerts < 1 {
		t.Errorf("state alerts = %d, want >= 1", st.Alerts)
	}
}

func TestMonitorCooldownLimitsAlerts(t *testing.T) {
	// 10ms ticks with a 300ms cooldown: constant loud input, but the
	// second alert must wait out the window.
	ctx := audio.NewFakeContext(loudBlocks(1000))
	sink := &recordSink{}
	cfg := testConfig()
	cfg.Cooldown = 300 * time.Millisecond
	m := New(ctx, nil, cfg, sink)
	defer m.Stop()

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first alert", func() bool { return sink.alertCount() == 1 })
	time.Sleep(100 * time.Millisecond)
	if got := sink.alertCount(); got != 1 {
		t.Errorf("alerts inside cooldown window = %d, want 1", got)
	}
	waitFor(t, "second alert", func() bool { return sink.alertCount() >= 2 })
}

func TestMonitorRestartClearsSession(t *testing.T) {
	ctx := audio.NewFakeContext(loudBlocks(1000))
	sink := &recordSink{}
	m := New(ctx, nil, testConfig(), sink)
	defer m.Stop()

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "samples and an alert", func() bool {
		return sink.sampleCount() >= 2 && sink.alertCount() >= 1
	})
	m.Stop()
	firstSession := sink.sampleCount()

	// History survives stop for post-mortem reading.
	if len(m.History()) == 0 {
		t.Error("history empty right after stop")
	}
	if st := m.State(); st.AlarmActive {
		t.Error("alarm still active after stop")
	}

	// A fresh session starts clean.
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first sample of second session", func() bool {
		return sink.sampleCount() > firstSession
	})
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.lastLen >= len(sink.samples) {
		t.Errorf("history len %d not reset across restart (total samples %d)", sink.lastLen, len(sink.samples))
	}
	last := sink.samples[len(sink.samples)-1]
	if last.Time > 1.0 {
		t.Errorf("sample clock not reset across restart: t=%v", last.Time)
	}
}

func TestMonitorStopCancelsDecay(t *testing.T) {
	ctx := audio.NewFakeContext(loudBlocks(1000))
	sink := &recordSink{}
	cfg := testConfig()
	cfg.Decay = 100 * time.Millisecond
	m := New(ctx, nil, cfg, sink)

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "alarm assert", func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.edges) == 1 && sink.edges[0]
	})
	m.Stop()

	// The decay timer died with the session: no stale clear edge.
	time.Sleep(250 * time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.edges) != 1 {
		t.Errorf("alarm edges after stop = %v, want [true] only", sink.edges)
	}
}

func TestMonitorDeviceUnavailable(t *testing.T) {
	ctx := audio.NewFakeContext(nil)
	ctx.OpenErr = audio.ErrDeviceUnavailable
	sink := &recordSink{}
	m := New(ctx, nil, testConfig(), sink)

	err := m.Start()
	if !errors.Is(err, audio.ErrDeviceUnavailable) {
		t.Fatalf("Start err = %v, want ErrDeviceUnavailable", err)
	}
	if st := m.State(); st.Running {
		t.Error("state running after failed Start")
	}
	if ctx.Opens() != 0 {
		t.Errorf("opens = %d, want 0", ctx.Opens())
	}
	sink.mu.Lock()
	started := len(sink.started)
	sink.mu.Unlock()
	if started != 0 {
		t.Errorf("started events = %d, want 0", started)
	}

	// The failure is recoverable: clearing the fault lets Start work.
	ctx.OpenErr = nil
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	m.Stop()
}

func TestMonitorStartFailureClosesSource(t *testing.T) {
	ctx := audio.NewFakeContext(nil)
	ctx.StartErr = errors.New("stream refused")
	m := New(ctx, nil, testConfig(), nil)

	if err := m.Start(); err == nil {
		t.Fatal("Start succeeded despite stream refusing to start")
	}
	if st := m.State(); st.Running {
		t.Error("state running after failed Start")
	}
	if src := ctx.Last(); src != nil && src.Running() {
		t.Error("source left running after failed Start")
	}
}

func TestMonitorWarnsOnDeadInput(t *testing.T) {
	// Dead silence first, then real signal: warn, then recover.
	blocks := make([][]float32, 0, 65)
	for i := 0; i < 15; i++ {
		blocks = append(blocks, make([]float32, 64))
	}
	blocks = append(blocks, loudBlocks(50)...)

	ctx := audio.NewFakeContext(blocks)
	sink := &recordSink{}
	cfg := testConfig()
	cfg.SilentAfter = 100 * time.Millisecond
	m := New(ctx, nil, cfg, sink)
	defer m.Stop()

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "silent warning", func() bool { return len(sink.silentEvents()) >= 1 })
	if ev := sink.silentEvents(); !ev[0] {
		t.Fatalf("first input event = %v, want silent", ev)
	}
	waitFor(t, "signal recovery", func() bool { return len(sink.silentEvents()) >= 2 })
	if ev := sink.silentEvents(); ev[1] {
		t.Fatalf("second input event = %v, want recovery", ev)
	}
}
