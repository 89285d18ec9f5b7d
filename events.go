package main

import (
	"fmt"

	"klaxon/beep"
	"klaxon/monitor"
)

// appSink fans monitor events out to the TUI, the alarm tone and the
// optional web dashboard. The hub may be nil when -web is off.
type appSink struct {
	hub *webHub
}

func (s *appSink) Started(device string) {
	tuiSend(MonitorStartMsg{Device: device})
}

func (s *appSink) Stopped() {
	tuiSend(MonitorStopMsg{})
}

func (s *appSink) Sample(smp monitor.Sample, active bool, history []monitor.Sample) {
	tuiSend(SampleMsg{Sample: smp, AlarmActive: active, History: history})
	s.hub.SendSample(smp)
}

func (s *appSink) AlarmChanged(active bool) {
	tuiSend(AlarmMsg{Active: active})
}

func (s *appSink) Alert(rms float64) {
	tuiSend(AlertMsg{RMS: rms})
	beep.PlayAlarm()
}

func (s *appSink) InputSilent(silent bool) {
	tuiSend(SilentMsg{Silent: silent})
}

// consoleSink is the -tui=false surface: one line per sample on stdout,
// loud ones in red.
type consoleSink struct {
	hub *webHub
}

func (s *consoleSink) Started(device string) {
	fmt.Printf("Monitoring on %s (Ctrl+C to stop)\n", device)
}

func (s *consoleSink) Stopped() {
	fmt.Println("Monitoring stopped")
}

func (s *consoleSink) Sample(smp monitor.Sample, active bool, _ []monitor.Sample) {
	if active {
		fmt.Printf("\x1b[31mrms: %.4f\x1b[0m\n", smp.RMS)
	} else {
		fmt.Printf("rms: %.4f\n", smp.RMS)
	}
	s.hub.SendSample(smp)
}

func (s *consoleSink) AlarmChanged(active bool) {
	if active {
		fmt.Println("\x1b[1;31mALARM: Loud sound detected!\x1b[0m")
	}
}

func (s *consoleSink) Alert(rms float64) {
	beep.PlayAlarm()
}

func (s *consoleSink) InputSilent(silent bool) {
	if silent {
		fmt.Println("\x1b[33mWarning: no signal from microphone (muted?)\x1b[0m")
	} else {
		fmt.Println("Microphone signal restored")
	}
}
