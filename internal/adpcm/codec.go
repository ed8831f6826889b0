package adpcm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tphakala/go-audio-snoop/internal/area"
)

// Codec errors.
var (
	// ErrAlignment indicates area offsets incompatible with the codec:
	// the 4-bit side must be nibble aligned, the linear side byte aligned.
	ErrAlignment = errors.New("adpcm: bad area alignment")

	// ErrFormat indicates a linear format the codec cannot convert.
	ErrFormat = errors.New("adpcm: unsupported linear format")
)

const bitsPerByte = 8

// getS16 reads a sample from a linear area normalized to 16 bits.
type getS16 func(a area.Area, ofs int) int16

// putS16 writes a 16-bit sample into a linear area.
type putS16 func(a area.Area, ofs int, v int16)

// byteAt returns the byte offset of sample ofs in a byte-aligned area.
func byteAt(a area.Area, ofs int) int {
	return (a.First + ofs*a.Step) / bitsPerByte
}

// conversion selects the per-sample get/put pair for a linear format.
func conversion(f area.Format) (getS16, putS16, error) {
	switch f {
	case area.S16:
		get := func(a area.Area, ofs int) int16 {
			return int16(binary.LittleEndian.Uint16(a.Data[byteAt(a, ofs):]))
		}
		put := func(a area.Area, ofs int, v int16) {
			binary.LittleEndian.PutUint16(a.Data[byteAt(a, ofs):], uint16(v))
		}
		return get, put, nil
	case area.S32:
		get := func(a area.Area, ofs int) int16 {
			return int16(int32(binary.LittleEndian.Uint32(a.Data[byteAt(a, ofs):])) >> 16)
		}
		put := func(a area.Area, ofs int, v int16) {
			binary.LittleEndian.PutUint32(a.Data[byteAt(a, ofs):], uint32(int32(v))<<16)
		}
		return get, put, nil
	default:
		return nil, nil, fmt.Errorf("%w: %v", ErrFormat, f)
	}
}

// Codec converts between linear PCM and 4-bit differential codes across a
// fixed set of channels. Channel states are independent; no cross-channel
// state sharing occurs.
type Codec struct {
	linear   area.Format
	channels []State
}

// NewCodec creates a codec for the given linear format and channel count.
func NewCodec(linear area.Format, channels int) (*Codec, error) {
	if !linear.Linear() {
		return nil, fmt.Errorf("%w: %v", ErrFormat, linear)
	}
	if channels < 1 {
		return nil, fmt.Errorf("%w: %d channels", ErrFormat, channels)
	}
	return &Codec{
		linear:   linear,
		channels: make([]State, channels),
	}, nil
}

// Reset clears all channel states. Call at stream initialization, prepare,
// drain and flush.
func (c *Codec) Reset() {
	for i := range c.channels {
		c.channels[i].Reset()
	}
}

// Channels returns the channel count.
func (c *Codec) Channels() int { return len(c.channels) }

// ChannelState returns the quantizer state of channel chn.
func (c *Codec) ChannelState(chn int) *State { return &c.channels[chn] }

// checkAlignment validates one channel pair: lin must be byte aligned and
// code nibble aligned, mirroring the transfer-time checks of the original
// converter.
func checkAlignment(lin, code area.Area) error {
	if lin.First%bitsPerByte != 0 || lin.Step%bitsPerByte != 0 {
		return fmt.Errorf("%w: linear first=%d step=%d", ErrAlignment, lin.First, lin.Step)
	}
	if code.First%4 != 0 || code.Step%4 != 0 {
		return fmt.Errorf("%w: code first=%d step=%d", ErrAlignment, code.First, code.Step)
	}
	return nil
}

// checkTransfer validates every channel pair of one transfer: channel
// coverage, alignment, and that frames samples fit both backing regions.
func (c *Codec) checkTransfer(lin, code []area.Channel, frames int) error {
	if len(lin) < len(c.channels) || len(code) < len(c.channels) {
		return fmt.Errorf("%w: %d linear and %d code channels described, want %d",
			area.ErrBounds, len(lin), len(code), len(c.channels))
	}
	for chn := range c.channels {
		if err := checkAlignment(lin[chn].Area, code[chn].Area); err != nil {
			return err
		}
		if err := lin[chn].Area.Check(0, frames, c.linear); err != nil {
			return err
		}
		if err := code[chn].Area.Check(0, frames, area.IMAADPCM); err != nil {
			return err
		}
	}
	return nil
}

// EncodeFrames converts frames linear frames from src into 4-bit codes in
// dst. Disabled source channels silence the destination channel instead.
func (c *Codec) EncodeFrames(dst, src []area.Channel, frames int) error {
	if frames == 0 {
		return nil
	}
	get, _, err := conversion(c.linear)
	if err != nil {
		return err
	}
	if err := c.checkTransfer(src, dst, frames); err != nil {
		return err
	}
	for chn := range c.channels {
		if !src[chn].Enabled {
			if err := area.Silence(dst[chn].Area, 0, frames, area.IMAADPCM); err != nil {
				return err
			}
			continue
		}
		state := &c.channels[chn]
		sa, da := src[chn].Area, dst[chn].Area
		for i := 0; i < frames; i++ {
			da.WriteNibble(i, state.Encode(get(sa, i)))
		}
	}
	return nil
}

// DecodeFrames converts frames 4-bit codes from src into linear frames in
// dst. Disabled source channels silence the destination channel instead.
func (c *Codec) DecodeFrames(dst, src []area.Channel, frames int) error {
	if frames == 0 {
		return nil
	}
	_, put, err := conversion(c.linear)
	if err != nil {
		return err
	}
	if err := c.checkTransfer(dst, src, frames); err != nil {
		return err
	}
	for chn := range c.channels {
		if !src[chn].Enabled {
			if err := area.Silence(dst[chn].Area, 0, frames, c.linear); err != nil {
				return err
			}
			continue
		}
		state := &c.channels[chn]
		sa, da := src[chn].Area, dst[chn].Area
		for i := 0; i < frames; i++ {
			put(da, i, state.Decode(sa.ReadNibble(i)))
		}
	}
	return nil
}
