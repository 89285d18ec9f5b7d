package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: KLAXON_LOG_PATH environment variable
	envPath := os.Getenv("KLAXON_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	var err error
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(device string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("device", device).
		Msg("session_start")
}

func SessionEnd(elapsed float64, samples, alerts int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Float64("elapsed_s", elapsed).
		Int("samples", samples).
		Int("alerts", alerts).
		Msg("session_end")
}

// SampleMeasured writes one loudness reading. One line per second while
// monitoring; the diagnostics file is the flight recorder. Loud samples
// go out at warn level so they stand out when skimming the file.
func SampleMeasured(t, rms float64, alarm bool) {
	if !logReady {
		return
	}
	ev := diagLog.Info()
	if alarm {
		ev = diagLog.Warn()
	}
	ev.Float64("t", t).
		Float64("rms", rms).
		Bool("alarm", alarm).
		Msg("sample")
}

func AlertFired(rms float64) {
	if !logReady {
		return
	}
	diagLog.Warn().
		Float64("rms", rms).
		Msg("audible_alert")
}

func AlarmEdge(active bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Bool("active", active).
		Msg("alarm_edge")
}

func DeviceSelected(name string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("device", name).
		Msg("device_selected")
}

func WebServing(url string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("url", url).
		Msg("web_dashboard")
}
