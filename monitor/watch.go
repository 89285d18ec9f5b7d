package monitor

import "time"

const (
	// Ratio hysteresis keeps a crackly connector from flapping the
	// warning on and off.
	signalMinRatio   = 0.10
	signalClearRatio = 0.25
)

type WatchEvent int

const (
	WatchNone WatchEvent = iota
	WatchSilent    // input delivering dead silence
	WatchRecovered // signal resumed after a silent warning
)

// inputWatch flags a capture stream that has gone digitally dead. A live
// microphone has a noise floor, so a run of exactly-zero blocks on most
// systems means the input is muted or the device vanished without an
// error. An alarm fed by a dead input never fires, which is worth a
// warning of its own.
type inputWatch struct {
	windowSz int
	window   []bool
	ticks    int
	warned   bool
}

func newInputWatch(silentAfter, interval time.Duration) *inputWatch {
	n := 2
	if interval > 0 && silentAfter > interval {
		n = int(silentAfter / interval)
	}
	return &inputWatch{windowSz: n, window: make([]bool, n)}
}

func (w *inputWatch) ratio() float64 {
	n := w.ticks
	if n > w.windowSz {
		n = w.windowSz
	}
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if w.window[(w.ticks-1-i+w.windowSz)%w.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

// Tick records whether the latest sample carried any signal and reports
// warning edges. Warn: a full window below the minimum ratio. Clear:
// ratio back above the higher clear threshold.
func (w *inputWatch) Tick(hasSignal bool) WatchEvent {
	w.window[w.ticks%w.windowSz] = hasSignal
	w.ticks++

	r := w.ratio()
	if w.ticks >= w.windowSz && r < signalMinRatio && !w.warned {
		w.warned = true
		return WatchSilent
	}
	if w.warned && r >= signalClearRatio {
		w.warned = false
		return WatchRecovered
	}
	return WatchNone
}
