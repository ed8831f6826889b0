package snoop

import (
	"fmt"
	"time"

	"github.com/tphakala/go-audio-snoop/internal/area"
	"github.com/tphakala/go-audio-snoop/internal/ring"
	"github.com/tphakala/go-audio-snoop/internal/shmseg"
	"github.com/tphakala/go-audio-snoop/internal/timer"
)

// Format identifies the linear sample formats the session supports.
// Anything else is rejected at configuration time, before the core runs.
type Format int

const (
	// FormatS16 is 16-bit signed little-endian linear PCM.
	FormatS16 Format = iota

	// FormatS32 is 32-bit signed little-endian linear PCM.
	FormatS32
)

// BytesPerSample returns the physical sample size in bytes.
func (f Format) BytesPerSample() int {
	if f == FormatS32 {
		return 4
	}
	return 2
}

// String returns a human-readable format name.
func (f Format) String() string {
	switch f {
	case FormatS16:
		return "S16_LE"
	case FormatS32:
		return "S32_LE"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// areaFormat maps to the internal copy-engine format code.
func (f Format) areaFormat() area.Format {
	if f == FormatS32 {
		return area.S32
	}
	return area.S16
}

// valid reports whether the format is one of the supported pair.
func (f Format) valid() bool {
	return f == FormatS16 || f == FormatS32
}

// Device is the external collaborator exposing the physical capture
// device's ring buffer. The core only reads it: a monotonically increasing
// hardware pointer (modulo Boundary) plus the raw interleaved sample
// storage. Only the first-instance session touches the device.
type Device interface {
	// HwPointer returns the device-reported count of frames captured so
	// far, modulo Boundary.
	HwPointer() uint64

	// Boundary returns the device pointer modulus, a large multiple of
	// the buffer size.
	Boundary() uint64

	// BufferSize returns the device ring length in frames.
	BufferSize() uint64

	// Channels returns the physical channel count.
	Channels() int

	// Format returns the device sample format.
	Format() Format

	// Rate returns the frame rate in Hz.
	Rate() int

	// Buffer returns the interleaved ring storage.
	Buffer() []byte

	// Start begins capturing.
	Start() error

	// Stop halts capturing.
	Stop() error

	// Close releases the device.
	Close() error
}

// Config holds snoop session configuration. The enclosing system
// validates and normalizes device selection before the session sees it;
// the session never re-parses configuration.
type Config struct {
	// IPCKey is the numeric identifier shared by all cooperating
	// processes; it keys the shared segment backing the snoop ring.
	IPCKey uint32

	// Slave is the physical capture device. It is used only when this
	// open wins first-instance election; later openers attach to the
	// shared ring instead and may leave it nil.
	Slave Device

	// Format is the expected sample format. It must match the device
	// (first instance) or the shared segment (snoopers).
	Format Format

	// Channels is the client channel count. Zero means the device
	// channel count.
	Channels int

	// PeriodSize is the period length in frames. Zero derives it from
	// the default period time at the stream rate.
	PeriodSize int

	// BufferSize is the client buffer length in frames. Zero means
	// PeriodSize times Periods.
	BufferSize int

	// Periods is the period count used when BufferSize is zero.
	// Zero means the default of three.
	Periods int

	// Bindings maps logical client channel to physical device channel.
	// Absent entries are identity-mapped. Note the table is client
	// independent: all sessions of one segment see the same physical
	// layout.
	Bindings map[int]int

	// NonBlock converts blocking waits into immediate ErrWouldBlock
	// results.
	NonBlock bool

	// StopThreshold is the available-frame count that triggers an
	// overrun, in frames. Zero means the buffer size. A threshold at or
	// beyond the boundary disables overrun detection entirely.
	StopThreshold uint64

	// SegmentDir overrides the shared segment directory, /dev/shm by
	// default. Mainly useful for tests.
	SegmentDir string
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.IPCKey == 0 {
		return fmt.Errorf("%w: IPC key must be set", ErrInvalidConfig)
	}
	if !c.Format.valid() {
		return fmt.Errorf("%w: %v, specify s16 or s32", ErrInvalidFormat, c.Format)
	}
	if c.Channels < 0 || c.Channels > maxChannels {
		return fmt.Errorf("%w: channels must be 0-%d", ErrInvalidConfig, maxChannels)
	}
	if c.PeriodSize < 0 || c.BufferSize < 0 || c.Periods < 0 {
		return fmt.Errorf("%w: sizes must be non-negative", ErrInvalidConfig)
	}
	for logical, physical := range c.Bindings {
		if logical < 0 || physical < 0 {
			return fmt.Errorf("%w: binding %d -> %d", ErrInvalidConfig, logical, physical)
		}
	}
	return nil
}

// bindingTable normalizes the binding map to a dense slice where -1 marks
// identity mapping.
func bindingTable(bindings map[int]int, channels int) []int {
	if len(bindings) == 0 {
		return nil
	}
	table := make([]int, channels)
	for i := range table {
		table[i] = -1
	}
	for logical, physical := range bindings {
		if logical < channels {
			table[logical] = physical
		}
	}
	return table
}

// boundaryFor computes the pointer modulus: the largest power-of-two
// multiple of the buffer size below maxBoundary.
func boundaryFor(bufferSize uint64) uint64 {
	b := bufferSize
	for b*2 < maxBoundary {
		b *= 2
	}
	return b
}

// Open creates a capture snoop session for the shared ring identified by
// cfg.IPCKey. The first opener owns device access and replicates captured
// frames into the shared ring; all later openers become read-only
// snoopers of the same segment.
//
// On failure every partially acquired resource is released in reverse
// acquisition order; no partial session is ever left reachable.
func Open(cfg *Config) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Segment creation needs the slave geometry up front; snoopers pass
	// zero and attach to the existing ring.
	var dataSize int
	if cfg.Slave != nil {
		dataSize = int(cfg.Slave.BufferSize()) * cfg.Slave.Channels() * cfg.Slave.Format().BytesPerSample()
	}

	// The init callback runs under the segment's open lock, so no other
	// process can observe the header before it is filled in.
	seg, first, err := shmseg.Open(cfg.SegmentDir, cfg.IPCKey, dataSize, func(seg *shmseg.Segment) error {
		dev := cfg.Slave
		if dev == nil {
			return fmt.Errorf("%w: first instance requires a slave device", ErrInvalidConfig)
		}
		if dev.Format() != cfg.Format {
			return fmt.Errorf("%w: device is %v, requested %v",
				ErrInvalidFormat, dev.Format(), cfg.Format)
		}
		periodSize := uint64(cfg.PeriodSize)
		if periodSize == 0 {
			periodSize = uint64(float64(dev.Rate()) * defaultPeriodTime.Seconds())
		}
		seg.Init(uint32(cfg.Format), uint32(dev.Channels()), uint32(dev.Rate()),
			dev.BufferSize(), periodSize, boundaryFor(dev.BufferSize()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s := &Session{seg: seg, state: StateOpen, nonblock: cfg.NonBlock}
	if err := s.initialize(cfg, first); err != nil {
		// Unwind in reverse acquisition order.
		if s.timer != nil {
			s.timer.Stop()
		}
		if s.dev != nil {
			s.dev.Stop()
			s.dev.Close()
		}
		seg.Close()
		return nil, err
	}
	return s, nil
}

// initialize wires the session against the segment, electing this process
// as device owner when first is set.
func (s *Session) initialize(cfg *Config, first bool) error {
	hdr := s.seg.Header()

	if first {
		// The header was filled in under the open lock; only device
		// startup remains.
		if err := cfg.Slave.Start(); err != nil {
			return fmt.Errorf("unable to start slave device: %w", err)
		}
		s.dev = cfg.Slave
	} else if Format(hdr.Format) != cfg.Format {
		return fmt.Errorf("%w: shared ring is %v, requested %v",
			ErrInvalidFormat, Format(hdr.Format), cfg.Format)
	}

	s.format = Format(hdr.Format)
	s.rate = int(hdr.Rate)
	s.slaveChannels = int(hdr.Channels)
	s.periodSize = hdr.PeriodSize

	s.channels = cfg.Channels
	if s.channels == 0 {
		s.channels = s.slaveChannels
	}
	if s.channels > s.slaveChannels {
		return fmt.Errorf("%w: %d channels exceed %d device channels",
			ErrInvalidConfig, s.channels, s.slaveChannels)
	}
	s.bindings = bindingTable(cfg.Bindings, s.channels)
	for _, physical := range s.bindings {
		if physical >= s.slaveChannels {
			return fmt.Errorf("%w: binding beyond %d device channels",
				ErrInvalidConfig, s.slaveChannels)
		}
	}

	s.bufferSize = uint64(cfg.BufferSize)
	if s.bufferSize == 0 {
		periods := cfg.Periods
		if periods == 0 {
			periods = defaultPeriods
		}
		s.bufferSize = s.periodSize * uint64(periods)
	}
	s.boundary = boundaryFor(s.bufferSize)

	s.stopThreshold = cfg.StopThreshold
	if s.stopThreshold == 0 {
		s.stopThreshold = s.bufferSize
	}

	// Client ring storage is interleaved; per-channel views let the
	// planar copy path apply channel bindings.
	frameBytes := s.format.BytesPerSample() * s.channels
	s.buf = make([]byte, int(s.bufferSize)*frameBytes)
	s.areas = area.Interleaved(s.buf, s.format.areaFormat(), s.channels)

	s.shared = newSharedView(s.seg, s.format, s.slaveChannels)
	if s.dev != nil {
		devSync, err := ring.New(ring.Config{
			Source:         &deviceView{dev: s.dev, format: s.format},
			Dest:           s.shared.areas,
			DestBufferSize: hdr.BufferSize,
			DestBoundary:   hdr.Boundary,
			Copy: area.CopySpec{
				Format:      s.format.areaFormat(),
				Channels:    s.slaveChannels,
				Interleaved: true,
			},
			// The owner hop never checks overrun; the shared ring is
			// overwritten freely and sessions detect overrun against
			// their own application pointers.
			StopThreshold: hdr.Boundary,
			OnAdvance:     hdr.SetHwPointer,
		})
		if err != nil {
			return err
		}
		devSync.Rebase()
		s.devSync = devSync
	}

	if err := s.buildSync(); err != nil {
		return err
	}

	period := time.Duration(float64(s.periodSize) / float64(s.rate) * float64(time.Second))
	if period <= 0 {
		period = defaultPeriodTime
	}
	s.timer = timer.New(period)
	return nil
}

// buildSync constructs the session-hop synchronizer: shared ring in,
// client areas out. Called at open and again by Prepare, which also
// re-validates the interleaving assumption against the binding table.
func (s *Session) buildSync() error {
	sync, err := ring.New(ring.Config{
		Source:         s.shared,
		Dest:           s.areas,
		DestBufferSize: s.bufferSize,
		DestBoundary:   s.boundary,
		Copy: area.CopySpec{
			Format:      s.format.areaFormat(),
			Channels:    s.channels,
			Bindings:    s.bindings,
			Interleaved: s.interleaved(),
		},
		StopThreshold: s.stopThreshold,
	})
	if err != nil {
		return err
	}
	s.sync = sync
	return nil
}

// interleaved reports whether the bulk copy fast path applies: same
// channel count on both sides and an identity binding table.
func (s *Session) interleaved() bool {
	if s.channels != s.slaveChannels {
		return false
	}
	for i, b := range s.bindings {
		if b >= 0 && b != i {
			return false
		}
	}
	return true
}

// sharedView adapts the mapped segment to the synchronizer source
// interface used by every session hop.
type sharedView struct {
	seg   *shmseg.Segment
	areas []area.Channel
}

func newSharedView(seg *shmseg.Segment, f Format, channels int) *sharedView {
	return &sharedView{
		seg:   seg,
		areas: area.Interleaved(seg.Data(), f.areaFormat(), channels),
	}
}

func (v *sharedView) HwPointer() uint64     { return v.seg.Header().HwPointer() }
func (v *sharedView) Boundary() uint64      { return v.seg.Header().Boundary }
func (v *sharedView) BufferSize() uint64    { return v.seg.Header().BufferSize }
func (v *sharedView) Areas() []area.Channel { return v.areas }

// deviceView adapts the physical device ring to the synchronizer source
// interface for the owner hop.
type deviceView struct {
	dev    Device
	format Format
	areas  []area.Channel
}

func (v *deviceView) HwPointer() uint64  { return v.dev.HwPointer() }
func (v *deviceView) Boundary() uint64   { return v.dev.Boundary() }
func (v *deviceView) BufferSize() uint64 { return v.dev.BufferSize() }

func (v *deviceView) Areas() []area.Channel {
	// Built lazily so devices backed by remappable storage stay valid.
	if v.areas == nil {
		v.areas = area.Interleaved(v.dev.Buffer(), v.format.areaFormat(), v.dev.Channels())
	}
	return v.areas
}
