package snoop

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// SineConfig configures a simulated capture device.
type SineConfig struct {
	// Format is the sample format, FormatS16 by default.
	Format Format

	// Channels is the channel count, stereo by default.
	Channels int

	// Rate is the frame rate in Hz, 48000 by default.
	Rate int

	// BufferSize is the ring length in frames.
	BufferSize uint64

	// Freq is the tone frequency in Hz.
	Freq float64

	// Realtime advances the hardware pointer with the wall clock while
	// started. When false the pointer only moves through Advance,
	// which keeps tests deterministic.
	Realtime bool
}

// SineDevice is a simulated capture device producing a sine tone. It
// serves as the slave for demos and tests where no physical hardware is
// available; each channel carries the tone at a different amplitude so
// channel routing stays observable.
type SineDevice struct {
	cfg      SineConfig
	buf      []byte
	boundary uint64

	started   bool
	startTime time.Time
	produced  uint64 // absolute frames generated
}

// Default simulated device parameters.
const (
	defaultSineFreq = 440.0
	sineAmplitude   = 0.5
)

// NewSineDevice creates a stopped simulated device.
func NewSineDevice(cfg SineConfig) (*SineDevice, error) {
	if cfg.Channels == 0 {
		cfg.Channels = stereoChannels
	}
	if cfg.Rate == 0 {
		cfg.Rate = defaultRate
	}
	if cfg.Freq == 0 {
		cfg.Freq = defaultSineFreq
	}
	if cfg.BufferSize == 0 {
		return nil, fmt.Errorf("%w: device buffer size must be set", ErrInvalidConfig)
	}
	if !cfg.Format.valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, cfg.Format)
	}
	return &SineDevice{
		cfg:      cfg,
		buf:      make([]byte, int(cfg.BufferSize)*cfg.Channels*cfg.Format.BytesPerSample()),
		boundary: boundaryFor(cfg.BufferSize),
	}, nil
}

// Advance generates frames frames into the ring, moving the hardware
// pointer. Useful for deterministic tests with Realtime disabled.
func (d *SineDevice) Advance(frames uint64) {
	for i := uint64(0); i < frames; i++ {
		d.writeFrame(d.produced)
		d.produced++
	}
}

// writeFrame renders one frame of the tone at absolute position n.
func (d *SineDevice) writeFrame(n uint64) {
	v := math.Sin(2 * math.Pi * d.cfg.Freq * float64(n) / float64(d.cfg.Rate))
	frameBytes := d.cfg.Channels * d.cfg.Format.BytesPerSample()
	base := int(n%d.cfg.BufferSize) * frameBytes
	for chn := 0; chn < d.cfg.Channels; chn++ {
		// Per-channel amplitude keeps channels distinguishable.
		scaled := v * sineAmplitude * float64(chn+1) / float64(d.cfg.Channels)
		off := base + chn*d.cfg.Format.BytesPerSample()
		if d.cfg.Format == FormatS32 {
			binary.LittleEndian.PutUint32(d.buf[off:], uint32(int32(scaled*math.MaxInt32)))
		} else {
			binary.LittleEndian.PutUint16(d.buf[off:], uint16(int16(scaled*math.MaxInt16)))
		}
	}
}

// HwPointer returns the device hardware pointer modulo the boundary. In
// realtime mode it first catches the ring up with the wall clock.
func (d *SineDevice) HwPointer() uint64 {
	if d.cfg.Realtime && d.started {
		target := uint64(time.Since(d.startTime).Seconds() * float64(d.cfg.Rate))
		if target > d.produced {
			d.Advance(target - d.produced)
		}
	}
	return d.produced % d.boundary
}

// Boundary returns the pointer modulus.
func (d *SineDevice) Boundary() uint64 { return d.boundary }

// BufferSize returns the ring length in frames.
func (d *SineDevice) BufferSize() uint64 { return d.cfg.BufferSize }

// Channels returns the channel count.
func (d *SineDevice) Channels() int { return d.cfg.Channels }

// Format returns the sample format.
func (d *SineDevice) Format() Format { return d.cfg.Format }

// Rate returns the frame rate in Hz.
func (d *SineDevice) Rate() int { return d.cfg.Rate }

// Buffer returns the interleaved ring storage.
func (d *SineDevice) Buffer() []byte { return d.buf }

// Start begins capturing; in realtime mode the clock starts here.
func (d *SineDevice) Start() error {
	d.started = true
	d.startTime = time.Now()
	return nil
}

// Stop halts capturing.
func (d *SineDevice) Stop() error {
	d.started = false
	return nil
}

// Close releases the device.
func (d *SineDevice) Close() error {
	d.started = false
	return nil
}
