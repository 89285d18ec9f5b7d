package audio

import (
	"errors"
	"strings"
)

// Fixed capture parameters. The alarm threshold is calibrated against RMS
// values computed from blocks of exactly this shape, so these are constants
// rather than flags.
const (
	SampleRate = 44100
	Channels   = 1
	BlockSize  = 2048
	Smoothing  = 0.8
)

var (
	// ErrDeviceUnavailable reports that no usable capture device could be
	// opened. It is surfaced to the user and is never fatal once the app
	// is past startup.
	ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

	// ErrEmptyBlock reports a zero-length sample block handed to a
	// measurement function.
	ErrEmptyBlock = errors.New("audio: empty sample block")
)

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses whether a device name belongs to a Bluetooth headset.
// BT mics run aggressive AGC and compression, which skews loudness
// readings, so the UI warns when one is selected.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

type SourceConfig struct {
	SampleRate uint32
	Channels   uint32
	BlockSize  int
	// Smoothing is the EMA coefficient for the live level meter. It only
	// shapes Level(); Read() always returns raw samples.
	Smoothing float64
}

func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		SampleRate: SampleRate,
		Channels:   Channels,
		BlockSize:  BlockSize,
		Smoothing:  Smoothing,
	}
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	// NewSource opens device for capture, or the platform default when
	// device is nil. The source does not produce samples until Start.
	NewSource(device *DeviceInfo, config SourceConfig) (Source, error)
	Close()
}

// Source is a running capture stream read by polling. The device writes
// into an internal ring; Read snapshots whatever is newest, so two reads
// closer together than one block duration may overlap. That is fine for
// level monitoring, which polls far slower than the device fills.
type Source interface {
	Start() error
	Stop()
	Close()
	// Read returns the most recent block of normalized samples in
	// [-1, 1], or an empty slice before the first device callback.
	Read() []float32
	// Level is the smoothed instantaneous peak in [0, 1], for meters.
	Level() float64
	DeviceName() string
}
