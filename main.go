package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"klaxon/audio"
	"klaxon/beep"
	"klaxon/doctor"
	"klaxon/log"
	"klaxon/monitor"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

func main() {
	deviceFlag := flag.String("device", "", "input device to monitor (substring match)")
	setupFlag := flag.Bool("setup", false, "pick the input device interactively")
	webFlag := flag.Bool("web", false, "serve the live dashboard on the local network")
	tuiFlag := flag.Bool("tui", true, "terminal dashboard (use -tui=false for plain console output)")
	testFlag := flag.Bool("test", false, "replay a WAV file and read commands from stdin")
	doctorFlag := flag.Bool("doctor", false, "run capture and playback diagnostics, then exit")
	versionFlag := flag.Bool("version", false, "print version and exit")
	logPathFlag := flag.String("logpath", "", "directory for diagnostic logs")
	profileFlag := flag.Bool("profile", false, "expose pprof on localhost:6060")
	flag.Parse()

	if *versionFlag {
		fmt.Println("klaxon", version)
		return
	}

	logDir, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logDir)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "cannot create log directory %s: %v\n", logDir, err)
		os.Exit(1)
	}
	initCrashLog(logDir)

	if *doctorFlag {
		os.Exit(doctor.Run())
	}
	if *testFlag {
		if flag.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "usage: klaxon -test file.wav")
			os.Exit(2)
		}
		runTestMode(flag.Arg(0))
		return
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "cannot open log file: %v\n", err)
		os.Exit(1)
	}
	log.Infof("klaxon %s starting", version)

	if *profileFlag {
		go func() {
			log.Info("pprof listening on localhost:6060")
			if err := http.ListenAndServe("localhost:6060", nil); err != nil {
				log.Errorf("pprof server: %v", err)
			}
		}()
	}

	ctx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio init: %v", err)
		fmt.Fprintf(os.Stderr, "cannot initialize audio: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	var device *audio.DeviceInfo
	switch {
	case *setupFlag:
		device, err = selectDevice(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "device selection: %v\n", err)
			os.Exit(1)
		}
	case *deviceFlag != "":
		device, err = findDevice(ctx, *deviceFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if device != nil {
		log.DeviceSelected(device.Name)
	}
	// An explicit choice is honored even when it fails to open; only the
	// default is allowed to fall back to another input.
	pinned := *setupFlag || *deviceFlag != ""

	cfg := monitor.DefaultConfig()

	var hub *webHub
	if *webFlag {
		hub = newWebHub(cfg.Threshold)
		url, werr := serveWeb(hub)
		if werr != nil {
			log.Errorf("web dashboard: %v", werr)
			fmt.Fprintf(os.Stderr, "web dashboard unavailable: %v\n", werr)
			hub = nil
		} else {
			fmt.Println("Dashboard:", url)
		}
	}

	var sink monitor.Sink
	if *tuiFlag {
		sink = &appSink{hub: hub}
	} else {
		sink = &consoleSink{hub: hub}
	}
	mon := monitor.New(ctx, device, cfg, sink)

	var shutdownOnce sync.Once
	shutdown := func() {
		shutdownOnce.Do(func() {
			mon.Stop()
			log.Info("klaxon shutting down")
			log.Close()
			tuiMu.Lock()
			p := tuiProgram
			tuiMu.Unlock()
			if p != nil {
				p.Quit()
			}
			os.Exit(0)
		})
	}

	toggle := make(chan struct{}, 1)
	if *tuiFlag {
		p := NewTUIProgram(deviceLabel(device), cfg.Threshold, toggle)
		tuiMu.Lock()
		tuiProgram = p
		tuiMu.Unlock()
		go func() {
			if _, err := p.Run(); err != nil {
				log.Errorf("tui: %v", err)
			}
			shutdown()
		}()
		go meterLoop(mon)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go beep.Init()

	if err := startMonitoring(mon, ctx, pinned); err != nil {
		log.Errorf("start: %v", err)
		if *tuiFlag {
			statusToTUI("cannot start: %v (press s to retry)", err)
		} else {
			fmt.Fprintf(os.Stderr, "cannot start monitoring: %v\n", err)
			log.Close()
			os.Exit(1)
		}
	}

	for {
		select {
		case <-toggle:
			if mon.State().Running {
				mon.Stop()
			} else if err := startMonitoring(mon, ctx, pinned); err != nil {
				log.Errorf("start: %v", err)
				statusToTUI("cannot start: %v", err)
			}
		case <-sigCh:
			shutdown()
		}
	}
}

// startMonitoring opens the capture device and begins a session. When the
// preferred input cannot be opened and none was pinned on the command
// line, it walks the remaining inputs until one opens.
func startMonitoring(m *monitor.Monitor, ctx audio.Context, pinned bool) error {
	err := m.Start()
	if err == nil || pinned || !errors.Is(err, audio.ErrDeviceUnavailable) {
		return err
	}
	devices, derr := ctx.Devices()
	if derr != nil {
		return err
	}
	for i := range devices {
		dev := devices[i]
		log.Warnf("capture open failed (%v), trying %q", err, dev.Name)
		if serr := m.SetDevice(&dev); serr != nil {
			return err
		}
		if err = m.Start(); err == nil {
			return nil
		}
	}
	return err
}

// meterLoop feeds the live level meter between one-second samples.
func meterLoop(m *monitor.Monitor) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for range t.C {
		st := m.State()
		if !st.Running {
			continue
		}
		tuiSend(LiveLevelMsg{Level: m.LiveLevel(), Elapsed: st.Elapsed})
	}
}

func deviceLabel(d *audio.DeviceInfo) string {
	if d == nil {
		return "system default"
	}
	return d.Name
}

// initCrashLog routes runtime panics to a file in the log directory, so a
// crash that happens while the terminal is in the alternate screen is not
// lost with it.
func initCrashLog(dir string) {
	f, err := os.OpenFile(filepath.Join(dir, "crash_log.txt"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "\n--- klaxon %s %s ---\n", version, time.Now().Format(time.RFC3339))
	debug.SetCrashOutput(f, debug.CrashOptions{})
}
