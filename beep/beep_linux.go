//go:build linux

package beep

import (
	"math"
	"sync"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

var (
	alarmSamples []int16
	soundOnce    sync.Once
)

func initSound() {
	alarmSamples = generateAlarm()
}

// generateSquare renders a square wave as interleaved stereo frames.
func generateSquare(freq float64, duration float64, volume float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		v := volume
		if math.Sin(2*math.Pi*freq*t) < 0 {
			v = -volume
		}
		s := int16(v * 32767)
		samples[i*2] = s
		samples[i*2+1] = s
	}
	return samples
}

func generateAlarm() []int16 {
	tone := generateSquare(alarmFreq, beepDur, alarmVolume)
	gap := make([]int16, int(float64(sampleRate)*gapDur)*2)
	result := make([]int16, 0, beepCount*len(tone)+(beepCount-1)*len(gap))
	for i := 0; i < beepCount; i++ {
		if i > 0 {
			result = append(result, gap...)
		}
		result = append(result, tone...)
	}
	return result
}

func playSamples(samples []int16) {
	if len(samples) == 0 {
		return
	}
	c, err := pulse.NewClient()
	if err != nil {
		return
	}
	defer c.Close()

	pos := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if pos >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[pos:])
		pos += n
		return n, nil
	})
	stream, err := c.NewPlayback(reader,
		pulse.PlaybackStereo,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm), uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return
	}
	stream.Start()
	stream.Drain()
	stream.Stop()
	stream.Close()
}

func Init() {
	soundOnce.Do(initSound)
}

// PlayAlarm sounds the triple beep in the background. Drops the trigger
// when a previous alarm is still sounding.
func PlayAlarm() {
	if !tryBegin() {
		return
	}
	soundOnce.Do(initSound)
	go func() {
		defer end()
		playSamples(alarmSamples)
	}()
}
