//go:build !linux

package audio

import (
	"encoding/hex"
	"fmt"

	"github.com/gen2brain/malgo"
)

type malgoContext struct {
	ctx *malgo.AllocatedContext
}

func NewContext() (Context, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: malgo: %v", ErrDeviceUnavailable, err)
	}
	return &malgoContext{ctx: ctx}, nil
}

func (m *malgoContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoContext) NewSource(device *DeviceInfo, config SourceConfig) (Source, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = config.Channels
	deviceConfig.SampleRate = config.SampleRate

	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	ring := newBlockRing(config.BlockSize, config.Smoothing)
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			ring.writeS16LE(data)
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: malgo device: %v", ErrDeviceUnavailable, err)
	}

	return &malgoSource{device: dev, info: device, ring: ring}, nil
}

func (m *malgoContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoSource struct {
	device *malgo.Device
	info   *DeviceInfo
	ring   *blockRing
}

func (s *malgoSource) Start() error {
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("%w: malgo start: %v", ErrDeviceUnavailable, err)
	}
	return nil
}

func (s *malgoSource) Stop() {
	s.device.Stop()
}

func (s *malgoSource) Close() {
	s.device.Uninit()
}

func (s *malgoSource) Read() []float32 {
	return s.ring.snapshot()
}

func (s *malgoSource) Level() float64 {
	return s.ring.currentLevel()
}

func (s *malgoSource) DeviceName() string {
	if s.info != nil {
		return s.info.Name
	}
	return "system default"
}
