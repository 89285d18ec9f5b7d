package audio

import (
	"errors"
	"math"
	"testing"
)

func sineBlock(amp float64, n int) []float32 {
	block := make([]float32, n)
	for i := range block {
		block[i] = float32(amp * math.Sin(2*math.Pi*float64(i)/64))
	}
	return block
}

func constBlock(v float32, n int) []float32 {
	block := make([]float32, n)
	for i := range block {
		block[i] = v
	}
	return block
}

func TestRMSSilence(t *testing.T) {
	got, err := RMS(make([]float32, BlockSize))
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("silence RMS = %v, want 0", got)
	}
}

func TestRMSConstant(t *testing.T) {
	for _, v := range []float32{0.25, -0.5, 1.0} {
		got, err := RMS(constBlock(v, 512))
		if err != nil {
			t.Fatal(err)
		}
		want := math.Abs(float64(v))
		if math.Abs(got-want) > 1e-6 {
			t.Errorf("constant %v RMS = %v, want %v", v, got, want)
		}
	}
}

func TestRMSSine(t *testing.T) {
	// A full-scale sine measures 1/sqrt(2).
	got, err := RMS(sineBlock(1.0, 1000))
	if err != nil {
		t.Fatal(err)
	}
	want := 1 / math.Sqrt(2)
	if math.Abs(got-want)/want > 0.01 {
		t.Errorf("sine RMS = %v, want %v within 1%%", got, want)
	}
}

func TestRMSEmptyBlock(t *testing.T) {
	_, err := RMS(nil)
	if !errors.Is(err, ErrEmptyBlock) {
		t.Errorf("RMS(nil) err = %v, want ErrEmptyBlock", err)
	}
}

func TestPeak(t *testing.T) {
	block := []float32{0.1, -0.8, 0.3}
	if got := Peak(block); math.Abs(got-0.8) > 1e-6 {
		t.Errorf("Peak = %v, want 0.8", got)
	}
	if got := Peak(nil); got != 0 {
		t.Errorf("Peak(nil) = %v, want 0", got)
	}
}

func TestIsBluetooth(t *testing.T) {
	if !IsBluetooth("Sony WH-1000XM4") {
		t.Error("expected Sony WH-1000XM4 to be detected as Bluetooth")
	}
	if IsBluetooth("Built-in Microphone") {
		t.Error("did not expect Built-in Microphone to be detected as Bluetooth")
	}
}
