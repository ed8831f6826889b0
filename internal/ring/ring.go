// Package ring implements the shared ring synchronizer: the algorithm that
// reconciles a locally mirrored hardware pointer with the authoritative
// pointer of an upstream ring and replicates newly captured frames into a
// destination ring of possibly different length.
//
// Pointers are frame counts that increase monotonically modulo a boundary
// much larger than either buffer, which disambiguates wraparound from a
// real decrease. Source and destination rings wrap independently, so every
// transfer is split at whichever ring wraps first.
package ring

import (
	"errors"
	"fmt"

	"github.com/tphakala/go-audio-snoop/internal/area"
)

// ErrOverrun indicates that unread captured frames reached the configured
// stop threshold before being drained.
var ErrOverrun = errors.New("ring: capture overrun")

// ErrConfig indicates an invalid synchronizer configuration.
var ErrConfig = errors.New("ring: invalid configuration")

// Source is the read-only upstream ring: the physical device ring for the
// owning process, or the shared snoop ring for read-only snoopers.
type Source interface {
	// HwPointer returns the authoritative hardware pointer in frames,
	// monotonically increasing modulo Boundary.
	HwPointer() uint64

	// Boundary returns the source pointer modulus.
	Boundary() uint64

	// BufferSize returns the source ring length in frames.
	BufferSize() uint64

	// Areas returns the per-channel views of the source ring storage.
	Areas() []area.Channel
}

// Config describes one synchronizer instance.
type Config struct {
	// Source is the upstream ring to replicate from.
	Source Source

	// Dest holds the per-channel views of the destination ring.
	Dest []area.Channel

	// DestBufferSize is the destination ring length in frames.
	DestBufferSize uint64

	// DestBoundary is the destination pointer modulus. It may differ
	// numerically from the source boundary; both represent the same
	// wall-clock position.
	DestBoundary uint64

	// Copy describes format, channel count, bindings and layout of the
	// per-transfer copy.
	Copy area.CopySpec

	// StopThreshold is the frame count at or above which an overrun is
	// reported. A threshold at or beyond DestBoundary disables overrun
	// detection entirely.
	StopThreshold uint64

	// OnAdvance, when non-nil, publishes the advanced destination
	// hardware pointer after each successful sync. The owning process
	// uses it to store the shared pointer for snoopers.
	OnAdvance func(hwPtr uint64)
}

// Synchronizer tracks one destination ring against its source.
type Synchronizer struct {
	cfg Config

	// slaveHwPtr is the last observed source pointer (source boundary).
	slaveHwPtr uint64

	// hwPtr is the exposed destination pointer (destination boundary).
	hwPtr uint64

	// availMax is the peak available count since the last status query.
	availMax uint64
}

// New creates a synchronizer. The destination ring must be able to
// describe at least the configured channel count.
func New(cfg Config) (*Synchronizer, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("%w: nil source", ErrConfig)
	}
	if cfg.DestBufferSize == 0 || cfg.DestBoundary < cfg.DestBufferSize {
		return nil, fmt.Errorf("%w: buffer=%d boundary=%d", ErrConfig,
			cfg.DestBufferSize, cfg.DestBoundary)
	}
	if len(cfg.Dest) < cfg.Copy.Channels {
		return nil, fmt.Errorf("%w: %d dest channels, want %d", ErrConfig,
			len(cfg.Dest), cfg.Copy.Channels)
	}
	return &Synchronizer{cfg: cfg}, nil
}

// HwPointer returns the exposed destination hardware pointer.
func (s *Synchronizer) HwPointer() uint64 { return s.hwPtr }

// SetHwPointer rebases the exposed pointer, used by prepare and reset.
func (s *Synchronizer) SetHwPointer(v uint64) { s.hwPtr = v % s.cfg.DestBoundary }

// Rebase snapshots the current source pointer as the new baseline so that
// the next sync starts from "now". Called on start and reset.
func (s *Synchronizer) Rebase() {
	s.slaveHwPtr = s.cfg.Source.HwPointer()
}

// Avail returns the frames captured but not yet consumed by the
// application pointer, never exceeding the destination buffer length.
func (s *Synchronizer) Avail(applPtr uint64) uint64 {
	avail := int64(s.hwPtr) - int64(applPtr)
	if avail < 0 {
		avail += int64(s.cfg.DestBoundary)
	}
	if uint64(avail) > s.cfg.DestBufferSize {
		return s.cfg.DestBufferSize
	}
	return uint64(avail)
}

// StopThreshold returns the current overrun threshold in frames.
func (s *Synchronizer) StopThreshold() uint64 { return s.cfg.StopThreshold }

// SetStopThreshold adjusts the overrun threshold. Drain clamps it to the
// buffer length for the duration of its wait loop.
func (s *Synchronizer) SetStopThreshold(v uint64) { s.cfg.StopThreshold = v }

// TakeAvailMax returns the peak available count observed since the last
// call and resets the tracker, matching status query semantics.
func (s *Synchronizer) TakeAvailMax() uint64 {
	v := s.availMax
	s.availMax = 0
	return v
}

// Sync reconciles the mirrored source pointer with the authoritative one,
// replicates newly available frames into the destination ring and advances
// the exposed pointer. It returns the frame advance, which is zero on the
// fast path. ErrOverrun is returned once per detection when the available
// count for applPtr reaches the stop threshold.
func (s *Synchronizer) Sync(applPtr uint64) (int64, error) {
	old := s.slaveHwPtr
	cur := s.cfg.Source.HwPointer()
	s.slaveHwPtr = cur

	diff := int64(cur) - int64(old)
	if diff == 0 { // fast path
		return 0, nil
	}
	if diff < 0 {
		// The source pointer wrapped its boundary; this is a silent
		// recovery, not an error.
		diff += int64(s.cfg.Source.Boundary())
	}

	if err := s.syncArea(old, uint64(diff)); err != nil {
		return 0, err
	}
	s.hwPtr = (s.hwPtr + uint64(diff)) % s.cfg.DestBoundary
	if s.cfg.OnAdvance != nil {
		s.cfg.OnAdvance(s.hwPtr)
	}

	if s.cfg.StopThreshold >= s.cfg.DestBoundary {
		// Overrun detection disabled for very large thresholds.
		return diff, nil
	}
	avail := s.hwAvail(applPtr)
	if avail >= s.cfg.StopThreshold {
		s.availMax = avail
		return diff, fmt.Errorf("%w: %d frames pending, threshold %d",
			ErrOverrun, avail, s.cfg.StopThreshold)
	}
	if avail > s.availMax {
		s.availMax = avail
	}
	return diff, nil
}

// hwAvail is the unclamped captured-not-consumed count used for the
// overrun comparison.
func (s *Synchronizer) hwAvail(applPtr uint64) uint64 {
	avail := int64(s.hwPtr) - int64(applPtr)
	if avail < 0 {
		avail += int64(s.cfg.DestBoundary)
	}
	return uint64(avail)
}

// syncArea copies size frames from the source ring position srcPtr into
// the destination ring at the exposed pointer. Both rings wrap at their
// own lengths, so the copy proceeds in sub-transfers each bounded by the
// nearer wrap point.
func (s *Synchronizer) syncArea(srcPtr, size uint64) error {
	src := s.cfg.Source
	srcAreas := src.Areas()
	srcLen := src.BufferSize()
	dstLen := s.cfg.DestBufferSize

	dstOfs := s.hwPtr % dstLen
	srcOfs := srcPtr % srcLen
	for size > 0 {
		transfer := size
		if dstOfs+transfer > dstLen {
			transfer = dstLen - dstOfs
		}
		if srcOfs+transfer > srcLen {
			transfer = srcLen - srcOfs
		}
		size -= transfer
		err := area.CopyFrames(s.cfg.Dest, srcAreas,
			int(dstOfs), int(srcOfs), int(transfer), s.cfg.Copy)
		if err != nil {
			return err
		}
		srcOfs = (srcOfs + transfer) % srcLen
		dstOfs = (dstOfs + transfer) % dstLen
	}
	return nil
}
