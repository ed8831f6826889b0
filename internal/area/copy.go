package area

import "fmt"

// CopySpec describes how frames move between two multi-channel regions.
type CopySpec struct {
	// Format is the shared sample format of both regions.
	Format Format

	// Channels is the destination channel count.
	Channels int

	// Bindings maps destination channel -> source channel. A nil table
	// or a negative entry means identity mapping for that channel.
	Bindings []int

	// Interleaved selects the single-bulk-copy fast path. It is valid
	// only when both regions share an interleaved layout and the
	// binding table is identity.
	Interleaved bool
}

// sourceChannel resolves the source channel feeding destination channel chn.
func (s CopySpec) sourceChannel(chn int) int {
	if s.Bindings == nil || chn >= len(s.Bindings) || s.Bindings[chn] < 0 {
		return chn
	}
	return s.Bindings[chn]
}

// identityBindings reports whether the binding table is an identity map.
func (s CopySpec) identityBindings() bool {
	for i, b := range s.Bindings {
		if b >= 0 && b != i {
			return false
		}
	}
	return true
}

// CopyFrames copies frames frames from src to dst at the given frame
// offsets, honoring the layout and binding table in spec.
//
// In interleaved mode a single bulk byte copy moves all channels at once.
// In planar mode each destination channel is copied from its bound source
// channel; disabled source channels fill the destination with silence.
func CopyFrames(dst, src []Channel, dstOfs, srcOfs, frames int, spec CopySpec) error {
	if frames < 0 {
		return fmt.Errorf("%w: negative frame count", ErrBounds)
	}
	if frames == 0 {
		return nil
	}
	if len(dst) < spec.Channels || len(src) < spec.Channels {
		return fmt.Errorf("%w: %d channels described, want %d", ErrBounds, len(dst), spec.Channels)
	}

	if spec.Interleaved && spec.identityBindings() {
		return copyInterleaved(dst[0].Area, src[0].Area, dstOfs, srcOfs, frames, spec)
	}

	for chn := 0; chn < spec.Channels; chn++ {
		schn := spec.sourceChannel(chn)
		if schn >= len(src) {
			return fmt.Errorf("%w: binding %d -> %d beyond source channels", ErrBounds, chn, schn)
		}
		if !src[schn].Enabled {
			if err := Silence(dst[chn].Area, dstOfs, frames, spec.Format); err != nil {
				return err
			}
			continue
		}
		if err := Copy(dst[chn].Area, dstOfs, src[schn].Area, srcOfs, frames, spec.Format); err != nil {
			return err
		}
	}
	return nil
}

// copyInterleaved performs the bulk fast path over channel 0's area, which
// spans the whole interleaved frame in that layout.
func copyInterleaved(dst, src Area, dstOfs, srcOfs, frames int, spec CopySpec) error {
	frameBits := spec.Format.Width() * spec.Channels
	if frameBits%bitsPerByte != 0 {
		// Sub-byte frame sizes cannot take the bulk path.
		return fmt.Errorf("%w: interleaved frame not byte aligned", ErrAlignment)
	}
	frameBytes := frameBits / bitsPerByte

	s := src.First/bitsPerByte + srcOfs*frameBytes
	d := dst.First/bitsPerByte + dstOfs*frameBytes
	n := frames * frameBytes
	if s+n > len(src.Data) || d+n > len(dst.Data) {
		return fmt.Errorf("%w: interleaved copy of %d bytes", ErrBounds, n)
	}
	copy(dst.Data[d:d+n], src.Data[s:s+n])
	return nil
}

// Interleaved builds the per-channel views of an interleaved buffer.
// All channels share the backing storage and frame stride.
func Interleaved(buf []byte, f Format, channels int) []Channel {
	width := f.Width()
	out := make([]Channel, channels)
	for chn := range out {
		out[chn] = Channel{
			Area: Area{
				Data:  buf,
				First: chn * width,
				Step:  width * channels,
			},
			Enabled: true,
		}
	}
	return out
}

// Planar builds per-channel views over separate channel buffers.
func Planar(bufs [][]byte, f Format) []Channel {
	out := make([]Channel, len(bufs))
	for chn := range out {
		out[chn] = Channel{
			Area: Area{
				Data:  bufs[chn],
				First: 0,
				Step:  f.Width(),
			},
			Enabled: true,
		}
	}
	return out
}
