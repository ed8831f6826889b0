// Package adpcm implements the IMA/DVI-style differential quantizer used
// as the in-process sample format converter.
//
// Sixteen-bit linear samples are coded to 4-bit differential codes through
// an adaptive quantizer: each channel carries a predicted sample value and
// an index into an exponential step-size table, both updated on every
// encode or decode call. The codec is deliberately not G.721 or RIFF-ADPCM
// compatible; only this one quantizer variant is implemented.
package adpcm

// indexAdjust is the first quantizer lookup: per-code step index delta.
// It is indexed by the lower 3 bits of the code, regardless of sign.
var indexAdjust = [8]int{-1, -1, -1, -1, 2, 4, 6, 8}

// stepSize is the second quantizer lookup: the exponential step table.
var stepSize = [89]int{
	7, 8, 9, 10, 11, 12, 13, 14, 16, 17,
	19, 21, 23, 25, 28, 31, 34, 37, 41, 45,
	50, 55, 60, 66, 73, 80, 88, 97, 107, 118,
	130, 143, 157, 173, 190, 209, 230, 253, 279, 307,
	337, 371, 408, 449, 494, 544, 598, 658, 724, 796,
	876, 963, 1060, 1166, 1282, 1411, 1552, 1707, 1878, 2066,
	2272, 2499, 2749, 3024, 3327, 3660, 4026, 4428, 4871, 5358,
	5894, 6484, 7132, 7845, 8630, 9493, 10442, 11487, 12635, 13899,
	15289, 16818, 18500, 20350, 22385, 24623, 27086, 29794, 32767,
}

// Quantizer limits.
const (
	maxStepIndex = 88
	maxSample    = 32767
	minSample    = -32768

	signBit  = 0x8
	codeMask = 0x7
)

// State is the per-channel quantizer state: the predicted sample value and
// the current step-size table index. It must persist across calls within a
// stream and be reset at stream boundaries.
type State struct {
	predicted int
	stepIndex int
}

// Reset returns the channel to its initial state.
func (s *State) Reset() {
	s.predicted = 0
	s.stepIndex = 0
}

// Predicted returns the current predicted sample value.
func (s *State) Predicted() int { return s.predicted }

// StepIndex returns the current step-size table index.
func (s *State) StepIndex() int { return s.stepIndex }

// Encode quantizes one 16-bit sample to a 4-bit code, updating the state.
func (s *State) Encode(sample int16) byte {
	diff := int(sample) - s.predicted
	var sign byte
	if diff < 0 {
		sign = signBit
		diff = -diff
	}

	// Approximates code = diff*4/step and predDiff = (code+0.5)*step/4,
	// walking the code space most-significant bit first with a
	// progressively halved step copy.
	step := stepSize[s.stepIndex]
	predDiff := step >> 3
	var code byte
	for i := 0x4; i != 0; i >>= 1 {
		if diff >= step {
			code |= byte(i)
			diff -= step
			predDiff += step
		}
		step >>= 1
	}

	if sign != 0 {
		s.predicted -= predDiff
	} else {
		s.predicted += predDiff
	}
	s.clamp(code)
	return sign | code
}

// Decode reconstructs one 16-bit sample from a 4-bit code, updating the
// state. It is the algebraic inverse of Encode's quantizer walk, using the
// received code bits directly.
func (s *State) Decode(code byte) int16 {
	sign := code & signBit
	code &= codeMask

	step := stepSize[s.stepIndex]
	predDiff := step >> 3
	for i := 0x4; i != 0; i >>= 1 {
		if code&byte(i) != 0 {
			predDiff += step
		}
		step >>= 1
	}

	if sign != 0 {
		s.predicted -= predDiff
	} else {
		s.predicted += predDiff
	}
	s.clamp(code)
	return int16(s.predicted)
}

// clamp bounds the predicted value to the 16-bit range and advances the
// step index by the table delta for code's magnitude bits.
func (s *State) clamp(code byte) {
	if s.predicted > maxSample {
		s.predicted = maxSample
	} else if s.predicted < minSample {
		s.predicted = minSample
	}

	s.stepIndex += indexAdjust[code&codeMask]
	if s.stepIndex < 0 {
		s.stepIndex = 0
	} else if s.stepIndex > maxStepIndex {
		s.stepIndex = maxStepIndex
	}
}

// StepSize returns the current quantizer step size of the channel. Useful
// for bounding reconstruction error in tests.
func (s *State) StepSize() int {
	return stepSize[s.stepIndex]
}
