package snoop

import (
	"fmt"

	"github.com/tphakala/go-audio-snoop/internal/adpcm"
	"github.com/tphakala/go-audio-snoop/internal/area"
)

// ADPCMCodec converts interleaved linear capture data to and from 4-bit
// differential codes, two samples per byte. Each channel carries its own
// quantizer state, so one codec instance must stay bound to one stream
// and be reset at stream boundaries.
type ADPCMCodec struct {
	codec    *adpcm.Codec
	format   Format
	channels int
}

// NewADPCMCodec creates a codec for interleaved frames of the given
// linear format and channel count.
func NewADPCMCodec(format Format, channels int) (*ADPCMCodec, error) {
	if !format.valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, format)
	}
	if channels < 1 || channels > maxChannels {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidConfig, channels)
	}
	codec, err := adpcm.NewCodec(format.areaFormat(), channels)
	if err != nil {
		return nil, err
	}
	return &ADPCMCodec{codec: codec, format: format, channels: channels}, nil
}

// Reset clears all channel quantizer states. Call at stream start and
// after prepare, drain or flush.
func (c *ADPCMCodec) Reset() {
	c.codec.Reset()
}

// CodedBytes returns the coded size of frames interleaved frames.
func (c *ADPCMCodec) CodedBytes(frames int) int {
	return (frames*c.channels + 1) / 2
}

// codedAreas builds the interleaved 4-bit views over coded storage.
func (c *ADPCMCodec) codedAreas(buf []byte) []area.Channel {
	width := area.IMAADPCM.Width()
	out := make([]area.Channel, c.channels)
	for chn := range out {
		out[chn] = area.Channel{
			Area:    area.Area{Data: buf, First: chn * width, Step: width * c.channels},
			Enabled: true,
		}
	}
	return out
}

// Encode converts frames interleaved linear frames from src into 4-bit
// codes in dst. dst must hold at least CodedBytes(frames).
func (c *ADPCMCodec) Encode(dst, src []byte, frames int) error {
	return c.codec.EncodeFrames(
		c.codedAreas(dst),
		area.Interleaved(src, c.format.areaFormat(), c.channels),
		frames)
}

// Decode converts frames interleaved 4-bit coded frames from src into
// linear frames in dst.
func (c *ADPCMCodec) Decode(dst, src []byte, frames int) error {
	return c.codec.DecodeFrames(
		area.Interleaved(dst, c.format.areaFormat(), c.channels),
		c.codedAreas(src),
		frames)
}
