// Package beep plays the audible alarm tone. Playback is fire-and-forget:
// failures are swallowed, a monitor without a speaker still monitors.
package beep

import "sync/atomic"

var (
	disabled bool
	playing  atomic.Bool
)

// Disable turns all playback into no-ops. Used by headless test runs.
func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Alarm tone: a harsh square wave, repeated so it cuts through the
	// noise that triggered it.
	alarmFreq   = 800
	alarmVolume = 1.0
	beepDur     = 0.5
	gapDur      = 0.1
	beepCount   = 3
)

// alarmSeconds is the full length of one alarm: three beeps, two gaps.
func alarmSeconds() float64 {
	return beepCount*beepDur + (beepCount-1)*gapDur
}

// tryBegin claims the playback slot. One alarm at a time; overlapping
// triggers are dropped, not queued.
func tryBegin() bool {
	return !disabled && playing.CompareAndSwap(false, true)
}

func end() { playing.Store(false) }

// Playing reports whether an alarm tone is currently sounding.
func Playing() bool { return playing.Load() }
