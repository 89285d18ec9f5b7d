package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"klaxon/audio"
	"klaxon/beep"
	"klaxon/log"
	"klaxon/monitor"
)

// testSink prints one deterministic line per event so the integration
// harness can assert on stdout.
type testSink struct{}

func (testSink) Started(device string) {
	fmt.Printf("STARTED device=%s\n", device)
}

func (testSink) Stopped() {
	fmt.Println("STOPPED")
}

func (testSink) Sample(s monitor.Sample, active bool, history []monitor.Sample) {
	fmt.Printf("SAMPLE t=%.2f rms=%.5f alarm=%v len=%d\n", s.Time, s.RMS, active, len(history))
}

func (testSink) AlarmChanged(active bool) {
	fmt.Printf("ALARM active=%v\n", active)
}

func (testSink) Alert(rms float64) {
	fmt.Printf("ALERT rms=%.5f\n", rms)
}

func (testSink) InputSilent(silent bool) {
	fmt.Printf("SILENT active=%v\n", silent)
}

// runTestMode feeds a WAV file through the real monitor pipeline and
// drives it with commands on stdin. No audio hardware, no UI.
func runTestMode(wavPath string) {
	beep.Disable()

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	ctx, err := audio.NewFileContext(wavPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}

	cfg := monitor.DefaultConfig()
	// Replay faster than real time so a short WAV exercises many samples.
	// Cooldown and decay stay at their wall-clock defaults.
	cfg.Interval = 100 * time.Millisecond
	m := monitor.New(ctx, nil, cfg, testSink{})

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch cmd {
		case "START":
			if err := m.Start(); err != nil {
				fmt.Printf("ERROR %v\n", err)
			}
		case "STOP":
			m.Stop()
		case "STATE":
			st := m.State()
			fmt.Printf("STATE running=%v samples=%d alerts=%d alarm=%v\n",
				st.Running, st.Samples, st.Alerts, st.AlarmActive)
		case "HISTORY":
			fmt.Printf("HISTORY len=%d\n", len(m.History()))
		case "QUIT":
			m.Stop()
			return
		default:
			if strings.HasPrefix(cmd, "SLEEP ") {
				if ms, err := strconv.Atoi(cmd[6:]); err == nil {
					time.Sleep(time.Duration(ms) * time.Millisecond)
				}
			}
		}
	}
	m.Stop()
}
