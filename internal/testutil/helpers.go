// Package testutil provides reusable test helper functions for capture
// snoop tests.
package testutil

import (
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Default signal parameters for generated test input.
const (
	DefaultRate      = 48000
	DefaultFreq      = 440.0
	DefaultAmplitude = 0.25
)

// SineInt16 generates n samples of a sine tone as 16-bit signed values.
// The bounded slope makes it a well-behaved input for the differential
// codec tests.
func SineInt16(n int, freq, amplitude float64, rate int) []int16 {
	out := make([]int16, n)
	for i := range out {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		out[i] = int16(v * math.MaxInt16)
	}
	return out
}

// RampInt16 generates n samples climbing by step per sample, wrapping at
// the 16-bit range. Useful as a recognizable per-channel pattern.
func RampInt16(n int, start, step int) []int16 {
	out := make([]int16, n)
	v := start
	for i := range out {
		out[i] = int16(v)
		v += step
	}
	return out
}

// BytesFromInt16 packs samples little-endian.
func BytesFromInt16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Int16FromBytes unpacks little-endian samples.
func Int16FromBytes(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// InterleaveInt16 merges per-channel slices into one interleaved slice.
// All channels must have equal length.
func InterleaveInt16(channels ...[]int16) []int16 {
	if len(channels) == 0 {
		return nil
	}
	frames := len(channels[0])
	out := make([]int16, 0, frames*len(channels))
	for i := 0; i < frames; i++ {
		for _, chn := range channels {
			out = append(out, chn[i])
		}
	}
	return out
}

// AssertAllZero verifies that every byte of s is zero.
func AssertAllZero(t *testing.T, s []byte, msgAndArgs ...any) bool {
	t.Helper()
	for i, b := range s {
		if b != 0 {
			return assert.Fail(t, fmt.Sprintf("non-zero byte: s[%d] = %#x", i, b), msgAndArgs...)
		}
	}
	return true
}

// AssertWithinStep verifies that got is within bound of want.
func AssertWithinStep(t *testing.T, want, got int16, bound int, msgAndArgs ...any) bool {
	t.Helper()
	diff := int(want) - int(got)
	if diff < 0 {
		diff = -diff
	}
	if diff > bound {
		return assert.Fail(t, fmt.Sprintf("sample outside quantization bound: want %d, got %d, bound %d",
			want, got, bound), msgAndArgs...)
	}
	return true
}
