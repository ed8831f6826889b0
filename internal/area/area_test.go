package area

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFrames   = 64
	testChannels = 2
)

// TestFormat_Widths verifies physical sample widths.
func TestFormat_Widths(t *testing.T) {
	assert.Equal(t, 16, S16.Width())
	assert.Equal(t, 32, S32.Width())
	assert.Equal(t, 4, IMAADPCM.Width())
	assert.True(t, S16.Linear())
	assert.True(t, S32.Linear())
	assert.False(t, IMAADPCM.Linear())
}

// TestCopy_ContiguousS16 verifies the bulk path for tightly packed
// 16-bit samples.
func TestCopy_ContiguousS16(t *testing.T) {
	src := Area{Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}, Step: 16}
	dstBuf := make([]byte, 8)
	dst := Area{Data: dstBuf, Step: 16}

	require.NoError(t, Copy(dst, 0, src, 0, 4, S16))
	assert.Equal(t, src.Data, dstBuf)
}

// TestCopy_StridedS16 verifies per-sample copying between interleaved
// layouts with different strides.
func TestCopy_StridedS16(t *testing.T) {
	// Source: channel 1 of an interleaved stereo buffer.
	src := Area{
		Data:  []byte{0, 0, 0xaa, 0x01, 0, 0, 0xbb, 0x02, 0, 0, 0xcc, 0x03},
		First: 16,
		Step:  32,
	}
	dstBuf := make([]byte, 6)
	dst := Area{Data: dstBuf, Step: 16}

	require.NoError(t, Copy(dst, 0, src, 0, 3, S16))
	assert.Equal(t, []byte{0xaa, 0x01, 0xbb, 0x02, 0xcc, 0x03}, dstBuf)
}

// TestCopy_NibblePacked verifies 4-bit copies at sub-byte offsets, high
// nibble first at byte-aligned positions.
func TestCopy_NibblePacked(t *testing.T) {
	src := Area{Data: []byte{0x12, 0x34}, Step: 4}
	dstBuf := make([]byte, 2)
	dst := Area{Data: dstBuf, Step: 4}

	require.NoError(t, Copy(dst, 0, src, 0, 4, IMAADPCM))
	assert.Equal(t, []byte{0x12, 0x34}, dstBuf)

	// Shifted by one nibble: samples land in opposite halves.
	shifted := make([]byte, 3)
	dst = Area{Data: shifted, First: 4, Step: 4}
	require.NoError(t, Copy(dst, 0, src, 0, 4, IMAADPCM))
	assert.Equal(t, []byte{0x01, 0x23, 0x40}, shifted)
}

// TestCopy_BoundsChecked verifies reads and writes never pass the
// declared region.
func TestCopy_BoundsChecked(t *testing.T) {
	src := Area{Data: make([]byte, 8), Step: 16}
	dst := Area{Data: make([]byte, 6), Step: 16}

	err := Copy(dst, 0, src, 0, 4, S16)
	assert.ErrorIs(t, err, ErrBounds)

	err = Copy(Area{Data: make([]byte, 8), Step: 16}, 0, src, 2, 3, S16)
	assert.ErrorIs(t, err, ErrBounds)
}

// TestSilence_FillsZero verifies silence is the all-zero pattern for the
// signed formats.
func TestSilence_FillsZero(t *testing.T) {
	buf := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	dst := Area{Data: buf, Step: 16}
	require.NoError(t, Silence(dst, 0, 3, S16))
	assert.Equal(t, make([]byte, 6), buf)

	nib := []byte{0xff, 0xff}
	require.NoError(t, Silence(Area{Data: nib, First: 4, Step: 4}, 0, 2, IMAADPCM))
	assert.Equal(t, []byte{0xf0, 0x0f}, nib)
}
