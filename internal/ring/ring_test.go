package ring

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/go-audio-snoop/internal/area"
)

const (
	srcRingFrames = 16
	dstRingFrames = 24
	testBoundary  = 1 << 30
)

// fakeSource is an in-memory upstream ring producing a monotonically
// numbered S16 mono sample stream, so any replication error shows up as a
// sequence gap on the destination side.
type fakeSource struct {
	buf      []byte
	hwPtr    uint64
	boundary uint64
	frames   uint64
	next     uint16
}

func newFakeSource(frames, boundary uint64) *fakeSource {
	return &fakeSource{
		buf:      make([]byte, frames*2),
		boundary: boundary,
		frames:   frames,
	}
}

func (f *fakeSource) HwPointer() uint64  { return f.hwPtr }
func (f *fakeSource) Boundary() uint64   { return f.boundary }
func (f *fakeSource) BufferSize() uint64 { return f.frames }

func (f *fakeSource) Areas() []area.Channel {
	return area.Interleaved(f.buf, area.S16, 1)
}

// produce writes n numbered frames at the hardware position and advances
// the pointer modulo the boundary, like a capture interrupt would.
func (f *fakeSource) produce(n uint64) {
	for i := uint64(0); i < n; i++ {
		ofs := (f.hwPtr + i) % f.frames
		binary.LittleEndian.PutUint16(f.buf[ofs*2:], f.next)
		f.next++
	}
	f.hwPtr = (f.hwPtr + n) % f.boundary
}

func newTestSync(t *testing.T, src *fakeSource, dst []byte, threshold uint64) *Synchronizer {
	t.Helper()
	s, err := New(Config{
		Source:         src,
		Dest:           area.Interleaved(dst, area.S16, 1),
		DestBufferSize: uint64(len(dst) / 2),
		DestBoundary:   testBoundary,
		Copy:           area.CopySpec{Format: area.S16, Channels: 1, Interleaved: true},
		StopThreshold:  threshold,
	})
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	src := newFakeSource(srcRingFrames, testBoundary)

	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrConfig, "nil source")

	_, err = New(Config{Source: src, DestBufferSize: 0, DestBoundary: testBoundary})
	assert.ErrorIs(t, err, ErrConfig, "zero buffer")

	_, err = New(Config{Source: src, DestBufferSize: 64, DestBoundary: 32})
	assert.ErrorIs(t, err, ErrConfig, "boundary below buffer")
}

func TestSync_FastPath(t *testing.T) {
	src := newFakeSource(srcRingFrames, testBoundary)
	dst := make([]byte, dstRingFrames*2)
	s := newTestSync(t, src, dst, testBoundary)

	adv, err := s.Sync(0)
	require.NoError(t, err)
	assert.Zero(t, adv)
	assert.Zero(t, s.HwPointer())
}

// TestSync_AdvanceSum drives the source through many randomly sized bursts
// and checks that the destination pointer advance equals the total frames
// produced and the numbered sample stream arrives intact, even though the
// two rings have different lengths and wrap at different times.
func TestSync_AdvanceSum(t *testing.T) {
	src := newFakeSource(srcRingFrames, testBoundary)
	dst := make([]byte, dstRingFrames*2)
	s := newTestSync(t, src, dst, testBoundary)

	rng := rand.New(rand.NewSource(7))
	var total, applPtr uint64
	expect := uint16(0)
	for i := 0; i < 200; i++ {
		burst := uint64(rng.Intn(srcRingFrames)) + 1
		src.produce(burst)

		adv, err := s.Sync(applPtr)
		require.NoError(t, err)
		require.Equal(t, int64(burst), adv)
		total += burst

		// Consume everything immediately and verify the sequence.
		for ; applPtr < total; applPtr++ {
			ofs := applPtr % dstRingFrames
			got := binary.LittleEndian.Uint16(dst[ofs*2:])
			require.Equal(t, expect, got, "frame %d", applPtr)
			expect++
		}
	}
	assert.Equal(t, total%testBoundary, s.HwPointer())
}

// TestSync_SourceBoundaryWrap verifies that a source pointer wrapping its
// own boundary is read as a small positive advance, not a huge negative one.
func TestSync_SourceBoundaryWrap(t *testing.T) {
	const smallBoundary = 1 << 8
	src := newFakeSource(srcRingFrames, smallBoundary)
	dst := make([]byte, dstRingFrames*2)
	s := newTestSync(t, src, dst, testBoundary)

	// Park the source just below its boundary.
	for produced := uint64(0); produced < smallBoundary-4; produced += 4 {
		src.produce(4)
	}
	_, err := s.Sync(0)
	require.NoError(t, err)
	before := s.HwPointer()

	src.produce(8) // crosses the source boundary
	adv, err := s.Sync(0)
	require.NoError(t, err)
	assert.Equal(t, int64(8), adv)
	assert.Equal(t, (before+8)%testBoundary, s.HwPointer())
}

func TestSync_OverrunAtThreshold(t *testing.T) {
	const threshold = 8
	src := newFakeSource(srcRingFrames, testBoundary)
	dst := make([]byte, dstRingFrames*2)
	s := newTestSync(t, src, dst, threshold)

	src.produce(threshold - 1)
	_, err := s.Sync(0)
	require.NoError(t, err, "below threshold")

	src.produce(1)
	_, err = s.Sync(0)
	require.ErrorIs(t, err, ErrOverrun)
	assert.Equal(t, uint64(threshold), s.TakeAvailMax())
	assert.Zero(t, s.TakeAvailMax(), "peak resets after query")
}

func TestSync_ThresholdAtBoundaryDisablesOverrun(t *testing.T) {
	src := newFakeSource(srcRingFrames, testBoundary)
	dst := make([]byte, dstRingFrames*2)
	s := newTestSync(t, src, dst, testBoundary)

	// Never consume; far more than a buffer of frames goes by.
	for i := 0; i < 10; i++ {
		src.produce(srcRingFrames)
		_, err := s.Sync(0)
		require.NoError(t, err)
	}
}

func TestSync_OnAdvancePublishes(t *testing.T) {
	src := newFakeSource(srcRingFrames, testBoundary)
	dst := make([]byte, dstRingFrames*2)

	var published []uint64
	s, err := New(Config{
		Source:         src,
		Dest:           area.Interleaved(dst, area.S16, 1),
		DestBufferSize: dstRingFrames,
		DestBoundary:   testBoundary,
		Copy:           area.CopySpec{Format: area.S16, Channels: 1, Interleaved: true},
		StopThreshold:  testBoundary,
		OnAdvance:      func(hwPtr uint64) { published = append(published, hwPtr) },
	})
	require.NoError(t, err)

	src.produce(4)
	_, err = s.Sync(0)
	require.NoError(t, err)
	src.produce(6)
	_, err = s.Sync(0)
	require.NoError(t, err)

	assert.Equal(t, []uint64{4, 10}, published)
}

func TestAvail_ClampedToBuffer(t *testing.T) {
	src := newFakeSource(srcRingFrames, testBoundary)
	dst := make([]byte, dstRingFrames*2)
	s := newTestSync(t, src, dst, testBoundary)

	for i := 0; i < 4; i++ {
		src.produce(srcRingFrames)
		_, err := s.Sync(0)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(dstRingFrames), s.Avail(0))
}

func TestRebase_DiscardsBacklog(t *testing.T) {
	src := newFakeSource(srcRingFrames, testBoundary)
	dst := make([]byte, dstRingFrames*2)
	s := newTestSync(t, src, dst, testBoundary)

	src.produce(12)
	s.Rebase()

	adv, err := s.Sync(0)
	require.NoError(t, err)
	assert.Zero(t, adv, "pre-rebase frames must not replay")
}
