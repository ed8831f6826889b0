// Package area provides typed, bounds-checked views over raw sample memory
// and the layout-aware copy engine used to move frames between ring buffers.
//
// An Area describes one channel of sample storage as a base buffer plus a
// starting bit offset and a per-frame bit stride. Describing positions in
// bits rather than bytes lets the same machinery address byte-aligned
// 16/32-bit linear samples and nibble-packed 4-bit differential codes.
package area

import (
	"errors"
	"fmt"
)

// Format identifies the physical sample encoding of an area.
type Format int

const (
	// S16 is 16-bit signed linear PCM.
	S16 Format = iota

	// S32 is 32-bit signed linear PCM.
	S32

	// IMAADPCM is 4-bit differential code, two samples per byte,
	// high nibble first at byte-aligned positions.
	IMAADPCM
)

// Common errors returned by area operations.
var (
	// ErrBounds indicates an access beyond the declared region.
	ErrBounds = errors.New("area: access out of bounds")

	// ErrAlignment indicates sample positions incompatible with the format.
	ErrAlignment = errors.New("area: bad sample alignment")

	// ErrFormat indicates an unsupported sample format.
	ErrFormat = errors.New("area: unsupported format")
)

// Width returns the physical width of one sample in bits.
func (f Format) Width() int {
	switch f {
	case S16:
		return widthS16
	case S32:
		return widthS32
	case IMAADPCM:
		return widthADPCM
	default:
		return 0
	}
}

// Linear reports whether the format is linear PCM.
func (f Format) Linear() bool {
	return f == S16 || f == S32
}

// String returns a human-readable format name.
func (f Format) String() string {
	switch f {
	case S16:
		return "S16_LE"
	case S32:
		return "S32_LE"
	case IMAADPCM:
		return "IMA_ADPCM"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Physical sample widths in bits.
const (
	widthS16   = 16
	widthS32   = 32
	widthADPCM = 4

	bitsPerByte = 8
	nibbleBits  = 4
)

// Area is a single-channel view into raw sample memory.
//
// First is the bit offset of sample zero within Data; Step is the distance
// in bits between consecutive samples of this channel. An interleaved
// stereo S16 layout is expressed as Step=32 with First=0 and First=16 for
// the two channels over the same Data.
type Area struct {
	// Data is the backing storage.
	Data []byte

	// First is the offset of the first sample, in bits.
	First int

	// Step is the per-frame stride, in bits.
	Step int
}

// Channel couples an area with its enable flag. Disabled source channels
// are rendered as silence on the destination instead of being copied.
type Channel struct {
	Area    Area
	Enabled bool
}

// check validates that samples starting at ofs lie inside the declared
// region for the given sample width.
func (a Area) check(ofs, samples, width int) error {
	if samples < 0 || ofs < 0 {
		return ErrBounds
	}
	if samples == 0 {
		return nil
	}
	if a.First < 0 || a.Step < width {
		return fmt.Errorf("%w: first=%d step=%d width=%d", ErrAlignment, a.First, a.Step, width)
	}
	end := a.First + (ofs+samples-1)*a.Step + width
	if end > len(a.Data)*bitsPerByte {
		return fmt.Errorf("%w: need %d bits, have %d", ErrBounds, end, len(a.Data)*bitsPerByte)
	}
	return nil
}

// Check validates that samples frames starting at ofs lie inside the
// declared region for format f. Converters that read or write areas
// outside Copy and Silence run this before their per-sample loops.
func (a Area) Check(ofs, samples int, f Format) error {
	width := f.Width()
	if width == 0 {
		return fmt.Errorf("%w: %v", ErrFormat, f)
	}
	return a.check(ofs, samples, width)
}

// byteAligned reports whether samples at any offset fall on byte boundaries.
func (a Area) byteAligned() bool {
	return a.First%bitsPerByte == 0 && a.Step%bitsPerByte == 0
}

// nibbleAligned reports whether samples fall on nibble boundaries.
func (a Area) nibbleAligned() bool {
	return a.First%nibbleBits == 0 && a.Step%nibbleBits == 0
}

// ReadNibble returns the 4-bit sample at frame ofs. The high nibble is
// used at byte-aligned bit positions, the low nibble otherwise.
func (a Area) ReadNibble(ofs int) byte {
	pos := a.First + ofs*a.Step
	b := a.Data[pos/bitsPerByte]
	if pos%bitsPerByte == 0 {
		return (b >> nibbleBits) & 0x0f
	}
	return b & 0x0f
}

// WriteNibble stores a 4-bit sample at frame ofs, preserving the other
// nibble of the shared byte.
func (a Area) WriteNibble(ofs int, v byte) {
	pos := a.First + ofs*a.Step
	idx := pos / bitsPerByte
	if pos%bitsPerByte == 0 {
		a.Data[idx] = (a.Data[idx] & 0x0f) | (v << nibbleBits)
	} else {
		a.Data[idx] = (a.Data[idx] & 0xf0) | (v & 0x0f)
	}
}

// Copy moves samples frames of one channel from src to dst. Both areas
// must use the same format. Arbitrary bit offsets and strides are honored
// for 4-bit data; linear formats require byte alignment.
func Copy(dst Area, dstOfs int, src Area, srcOfs int, samples int, f Format) error {
	width := f.Width()
	if width == 0 {
		return fmt.Errorf("%w: %v", ErrFormat, f)
	}
	if err := src.check(srcOfs, samples, width); err != nil {
		return err
	}
	if err := dst.check(dstOfs, samples, width); err != nil {
		return err
	}
	if samples == 0 {
		return nil
	}

	if f.Linear() {
		if !src.byteAligned() || !dst.byteAligned() {
			return fmt.Errorf("%w: linear %v requires byte alignment", ErrAlignment, f)
		}
		copyBytes(dst, dstOfs, src, srcOfs, samples, width/bitsPerByte)
		return nil
	}

	if !src.nibbleAligned() || !dst.nibbleAligned() {
		return fmt.Errorf("%w: %v requires nibble alignment", ErrAlignment, f)
	}
	for i := 0; i < samples; i++ {
		dst.WriteNibble(dstOfs+i, src.ReadNibble(srcOfs+i))
	}
	return nil
}

// copyBytes copies byte-aligned samples, collapsing to a single bulk copy
// when both sides are contiguous.
func copyBytes(dst Area, dstOfs int, src Area, srcOfs int, samples, widthBytes int) {
	srcStep := src.Step / bitsPerByte
	dstStep := dst.Step / bitsPerByte
	s := src.First/bitsPerByte + srcOfs*srcStep
	d := dst.First/bitsPerByte + dstOfs*dstStep

	if srcStep == widthBytes && dstStep == widthBytes {
		copy(dst.Data[d:d+samples*widthBytes], src.Data[s:s+samples*widthBytes])
		return
	}
	for i := 0; i < samples; i++ {
		copy(dst.Data[d:d+widthBytes], src.Data[s:s+widthBytes])
		s += srcStep
		d += dstStep
	}
}

// Silence fills samples frames of dst with the format's silence pattern.
// All supported formats are signed, so silence is all-zero bits.
func Silence(dst Area, ofs, samples int, f Format) error {
	width := f.Width()
	if width == 0 {
		return fmt.Errorf("%w: %v", ErrFormat, f)
	}
	if err := dst.check(ofs, samples, width); err != nil {
		return err
	}
	if samples == 0 {
		return nil
	}

	if f.Linear() {
		if !dst.byteAligned() {
			return fmt.Errorf("%w: linear %v requires byte alignment", ErrAlignment, f)
		}
		widthBytes := width / bitsPerByte
		step := dst.Step / bitsPerByte
		d := dst.First/bitsPerByte + ofs*step
		for i := 0; i < samples; i++ {
			for j := 0; j < widthBytes; j++ {
				dst.Data[d+j] = 0
			}
			d += step
		}
		return nil
	}

	if !dst.nibbleAligned() {
		return fmt.Errorf("%w: %v requires nibble alignment", ErrAlignment, f)
	}
	for i := 0; i < samples; i++ {
		dst.WriteNibble(ofs+i, 0)
	}
	return nil
}
