package doctor

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"klaxon/audio"
	"klaxon/beep"
	"klaxon/monitor"
)

// Run executes interactive audio diagnostics and returns an exit code
// (0=all pass, 1=any fail).
func Run() int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("klaxon doctor - interactive audio diagnostics")
	fmt.Println("=============================================")

	allPass := true

	ctx, device, ok := checkCapture()
	if ctx != nil {
		defer ctx.Close()
	}
	if !ok {
		allPass = false
	}

	if allPass && !checkAlarmTone() {
		allPass = false
	}
	if allPass && !checkAlarmTrip(ctx, device) {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func checkCapture() (audio.Context, *audio.DeviceInfo, bool) {
	fmt.Println()
	fmt.Println("[1/3] Microphone capture")

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return nil, nil, false
	}

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return ctx, nil, false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return ctx, nil, false
	}

	var device *audio.DeviceInfo
	if len(devices) == 1 {
		device = &devices[0]
		fmt.Printf("Using device: %s\n", device.Name)
	} else {
		reader := bufio.NewReader(os.Stdin)
		fmt.Println()
		fmt.Println("Select input device:")
		for i, d := range devices {
			fmt.Printf("  %d. %s\n", i+1, d.Name)
		}
		fmt.Printf("Choice [1-%d]: ", len(devices))

		line, _ := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		idx := 0
		if line != "" {
			fmt.Sscanf(line, "%d", &idx)
			idx--
		}
		if idx < 0 || idx >= len(devices) {
			fmt.Println("  FAIL: invalid choice")
			return ctx, nil, false
		}
		device = &devices[idx]
		fmt.Printf("Selected: %s\n", device.Name)
	}

	src, err := ctx.NewSource(device, audio.DefaultSourceConfig())
	if err != nil {
		fmt.Printf("  FAIL: cannot open device: %v\n", err)
		return ctx, device, false
	}
	defer src.Close()
	if err := src.Start(); err != nil {
		fmt.Printf("  FAIL: cannot start capture: %v\n", err)
		return ctx, device, false
	}

	fmt.Print("  Capturing 3 seconds")
	var maxRMS float64
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		fmt.Print(".")
		if rms, err := audio.RMS(src.Read()); err == nil && rms > maxRMS {
			maxRMS = rms
		}
	}
	fmt.Println(" done")
	src.Stop()

	if maxRMS == 0 {
		fmt.Println("  FAIL: no signal captured (is the microphone muted?)")
		return ctx, device, false
	}
	fmt.Printf("  PASS: peak RMS %.4f over 3s (alarm threshold is %.2f)\n",
		maxRMS, monitor.DefaultThreshold)
	return ctx, device, true
}

func checkAlarmTone() bool {
	fmt.Println()
	fmt.Println("[2/3] Alert tone playback")

	beep.Init()
	fmt.Println("Playing the alert tone...")
	beep.PlayAlarm()
	time.Sleep(2200 * time.Millisecond)

	// Fresh reader to clear any buffered input
	resetTerminal()
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Did you hear three beeps? [y/n]: ")
	confirm, _ := reader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))

	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: alert tone verified by user")
		return true
	}
	fmt.Println("  FAIL: alert tone not confirmed")
	return false
}

func checkAlarmTrip(ctx audio.Context, device *audio.DeviceInfo) bool {
	fmt.Println()
	fmt.Println("[3/3] End-to-end alarm trip")
	fmt.Println("Clap or speak loudly within the next 6 seconds...")

	sink := &tripSink{}
	cfg := monitor.DefaultConfig()
	cfg.Interval = 250 * time.Millisecond
	m := monitor.New(ctx, device, cfg, sink)
	if err := m.Start(); err != nil {
		fmt.Printf("  FAIL: cannot start monitoring: %v\n", err)
		return false
	}

	fmt.Print("  Listening")
	deadline := time.Now().Add(6 * time.Second)
	for time.Now().Before(deadline) && sink.count() == 0 {
		time.Sleep(100 * time.Millisecond)
	}
	m.Stop()
	fmt.Println()

	if sink.count() > 0 {
		fmt.Println("  PASS: alarm tripped on a loud sample")
		return true
	}
	fmt.Println("  FAIL: no sample crossed the alarm threshold")
	return false
}

// tripSink counts audible alerts during the end-to-end check.
type tripSink struct {
	mu     sync.Mutex
	alerts int
}

func (s *tripSink) Started(string)    {}
func (s *tripSink) Stopped()          {}
func (s *tripSink) AlarmChanged(bool) {}
func (s *tripSink) InputSilent(bool)  {}

func (s *tripSink) Sample(monitor.Sample, bool, []monitor.Sample) {
	fmt.Print(".")
}

func (s *tripSink) Alert(rms float64) {
	s.mu.Lock()
	s.alerts++
	s.mu.Unlock()
	fmt.Printf(" loud! RMS %.4f", rms)
}

func (s *tripSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alerts
}
