// Package monitor turns a stream of microphone blocks into loudness
// samples, a rolling history, and alarm decisions. It owns the session
// lifecycle; everything the user sees is pushed out through a Sink.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"klaxon/audio"
	"klaxon/log"
)

const (
	// DefaultThreshold is the RMS level above which a sample counts as
	// loud. Calibrated for normalized samples in [-1, 1].
	DefaultThreshold = 0.05
	// DefaultInterval is the sampling cadence. History capacity times
	// interval gives the visible window: 50 seconds.
	DefaultInterval    = time.Second
	DefaultCooldown    = 2 * time.Second
	DefaultDecay       = time.Second
	DefaultHistorySize = 50
	// DefaultSilentAfter is how long the input may deliver dead silence
	// before the monitor warns that it is probably muted.
	DefaultSilentAfter = 10 * time.Second
)

type Config struct {
	Threshold   float64
	Interval    time.Duration
	Cooldown    time.Duration
	Decay       time.Duration
	HistorySize int
	SilentAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Threshold:   DefaultThreshold,
		Interval:    DefaultInterval,
		Cooldown:    DefaultCooldown,
		Decay:       DefaultDecay,
		HistorySize: DefaultHistorySize,
		SilentAfter: DefaultSilentAfter,
	}
}

// Sink receives monitor events. Implementations fan them out to the
// terminal, the alert tone, or the web dashboard. Calls arrive from the
// sampling loop and from the alarm decay timer; implementations must not
// block for long and must not call back into the Monitor.
type Sink interface {
	Started(device string)
	Stopped()
	// Sample delivers one measurement along with the visual alarm state
	// and a snapshot of the rolling history including this sample.
	Sample(s Sample, alarmActive bool, history []Sample)
	// AlarmChanged fires on visual alarm edges, both assert and decay.
	AlarmChanged(active bool)
	// Alert fires when an audible alert is due, at most once per
	// cooldown window.
	Alert(rms float64)
	// InputSilent fires when the capture stream goes digitally dead for
	// SilentAfter, and again with false when signal resumes.
	InputSilent(silent bool)
}

// State is a point-in-time view for pollers like the level meter.
type State struct {
	Running     bool
	Device      string
	Elapsed     float64
	CurrentRMS  float64
	AlarmActive bool
	Samples     int
	Alerts      int
}

type phase int

const (
	phaseIdle phase = iota
	phaseStarting
	phaseRunning
)

// session bundles everything a running capture owns so teardown releases
// it as a unit.
type session struct {
	src      audio.Source
	start    time.Time
	done     chan struct{}
	loopDone chan struct{}
	watch    *inputWatch
	samples  int
	alerts   int
}

// Monitor drives one capture session at a time: open source, sample on a
// ticker, evaluate the alarm, tear down. Start and Stop may be called
// from any goroutine.
type Monitor struct {
	cfg     Config
	ctx     audio.Context
	device  *audio.DeviceInfo
	sink    Sink
	history *History
	alarm   *Alarm

	mu      sync.Mutex
	phase   phase
	sess    *session
	current Sample
}

func New(ctx audio.Context, device *audio.DeviceInfo, cfg Config, sink Sink) *Monitor {
	if sink == nil {
		sink = nopSink{}
	}
	m := &Monitor{
		cfg:     cfg,
		ctx:     ctx,
		device:  device,
		sink:    sink,
		history: NewHistory(cfg.HistorySize),
	}
	m.alarm = NewAlarm(cfg.Threshold, cfg.Cooldown, cfg.Decay, func(active bool) {
		log.AlarmEdge(active)
		m.sink.AlarmChanged(active)
	})
	return m
}

// SetDevice changes the capture device used by the next Start. Fails
// while a session is running.
func (m *Monitor) SetDevice(device *audio.DeviceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != phaseIdle {
		return fmt.Errorf("cannot switch device while monitoring")
	}
	m.device = device
	return nil
}

// Start opens the capture device and launches the sampling loop. It is a
// no-op when a session is already running or starting. On failure the
// monitor returns to idle and no device handle is left open.
func (m *Monitor) Start() error {
	m.mu.Lock()
	if m.phase != phaseIdle {
		m.mu.Unlock()
		return nil
	}
	m.phase = phaseStarting
	m.mu.Unlock()

	src, err := m.ctx.NewSource(m.device, audio.SourceConfig{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
		BlockSize:  audio.BlockSize,
		Smoothing:  audio.Smoothing,
	})
	if err != nil {
		m.abortStart()
		return fmt.Errorf("open capture: %w", err)
	}
	if err := src.Start(); err != nil {
		src.Close()
		m.abortStart()
		return fmt.Errorf("start capture: %w", err)
	}

	m.mu.Lock()
	if m.phase != phaseStarting {
		// Stop won the race while we were opening the device.
		m.mu.Unlock()
		src.Stop()
		src.Close()
		return nil
	}
	m.history.Clear()
	m.alarm.Reset()
	m.current = Sample{}
	sess := &session{
		src:      src,
		start:    time.Now(),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		watch:    newInputWatch(m.cfg.SilentAfter, m.cfg.Interval),
	}
	m.sess = sess
	m.phase = phaseRunning
	m.mu.Unlock()

	log.SessionStart(src.DeviceName())
	m.sink.Started(src.DeviceName())
	go m.loop(sess)
	return nil
}

func (m *Monitor) abortStart() {
	m.mu.Lock()
	if m.phase == phaseStarting {
		m.phase = phaseIdle
	}
	m.mu.Unlock()
}

// Stop tears the session down: loop first, then the device, then the
// alarm timers. Idempotent; stopping an idle monitor does nothing.
func (m *Monitor) Stop() {
	m.mu.Lock()
	switch m.phase {
	case phaseIdle:
		m.mu.Unlock()
		return
	case phaseStarting:
		// Abort the in-flight Start; it cleans up the source itself.
		m.phase = phaseIdle
		m.mu.Unlock()
		return
	}
	sess := m.sess
	m.sess = nil
	m.phase = phaseIdle
	m.mu.Unlock()

	close(sess.done)
	<-sess.loopDone
	sess.src.Stop()
	sess.src.Close()
	m.alarm.Reset()

	log.SessionEnd(time.Since(sess.start).Seconds(), sess.samples, sess.alerts)
	m.sink.Stopped()
}

func (m *Monitor) loop(sess *session) {
	defer close(sess.loopDone)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-sess.done:
			return
		case <-ticker.C:
			m.tick(sess)
		}
	}
}

func (m *Monitor) tick(sess *session) {
	block := sess.src.Read()
	rms, err := audio.RMS(block)
	if err != nil {
		// Device produced nothing yet. Skip the reading, never crash.
		log.Warnf("skipping sample: %v", err)
		return
	}

	s := Sample{Time: time.Since(sess.start).Seconds(), RMS: rms}
	m.history.Append(s)
	v := m.alarm.Evaluate(s, time.Now())

	m.mu.Lock()
	m.current = s
	sess.samples++
	if v.Alert {
		sess.alerts++
	}
	m.mu.Unlock()

	log.SampleMeasured(s.Time, s.RMS, v.Active)
	m.sink.Sample(s, v.Active, m.history.Snapshot())
	if v.Alert {
		log.AlertFired(s.RMS)
		m.sink.Alert(s.RMS)
	}

	if ev := sess.watch.Tick(rms > 0); ev != WatchNone {
		silent := ev == WatchSilent
		if silent {
			log.Warnf("no signal from input for %s (muted or disconnected?)", m.cfg.SilentAfter)
		} else {
			log.Info("input signal restored")
		}
		m.sink.InputSilent(silent)
	}
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{AlarmActive: m.alarm.Active()}
	if m.device != nil {
		st.Device = m.device.Name
	} else {
		st.Device = "system default"
	}
	if m.phase == phaseRunning && m.sess != nil {
		st.Running = true
		st.Device = m.sess.src.DeviceName()
		st.Elapsed = time.Since(m.sess.start).Seconds()
		st.CurrentRMS = m.current.RMS
		st.Samples = m.sess.samples
		st.Alerts = m.sess.alerts
	}
	return st
}

// History returns the rolling window oldest-first. Survives Stop; a new
// Start clears it.
func (m *Monitor) History() []Sample {
	return m.history.Snapshot()
}

// LiveLevel is the smoothed meter level of the running source, zero when
// idle. Polled by the UI between samples.
func (m *Monitor) LiveLevel() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == phaseRunning && m.sess != nil {
		return m.sess.src.Level()
	}
	return 0
}

type nopSink struct{}

func (nopSink) Started(string)                {}
func (nopSink) Stopped()                      {}
func (nopSink) Sample(Sample, bool, []Sample) {}
func (nopSink) AlarmChanged(bool)             {}
func (nopSink) Alert(float64)                 {}
func (nopSink) InputSilent(bool)              {}
