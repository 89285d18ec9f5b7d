package audio

import "math"

// RMS returns the root-mean-square amplitude of a block of normalized
// samples. A sine wave at amplitude a measures a/sqrt(2); silence measures
// zero. Returns ErrEmptyBlock for a zero-length block so a misbehaving
// device skips a reading instead of reporting false silence.
func RMS(block []float32) (float64, error) {
	if len(block) == 0 {
		return 0, ErrEmptyBlock
	}
	var sum float64
	for _, s := range block {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(block))), nil
}

// Peak returns the largest absolute sample value in the block, zero when
// the block is empty.
func Peak(block []float32) float64 {
	var peak float64
	for _, s := range block {
		f := math.Abs(float64(s))
		if f > peak {
			peak = f
		}
	}
	return peak
}
