package snoop

import "time"

// Channel constants
const (
	stereoChannels = 2   // Default capture channel count
	maxChannels    = 256 // Maximum supported channel count
)

// Default stream parameters, matching common capture device defaults.
const (
	defaultRate       = 48000                  // Frames per second
	defaultPeriodTime = 125 * time.Millisecond // Period duration
	defaultPeriods    = 3                      // Periods per buffer
)

// Pointer arithmetic constants
const (
	// maxBoundary caps the hardware pointer modulus. The boundary is
	// the largest power-of-two multiple of the buffer size below this,
	// keeping signed frame differences free of overflow ambiguity.
	maxBoundary = uint64(1) << 62
)
