package snoop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openOwner opens a first-instance session over a fresh simulated device
// with deterministic pointer advancement.
func openOwner(t *testing.T, mutate func(*Config)) (*Session, *SineDevice) {
	t.Helper()
	dev := testDevice(t)
	cfg := testConfig(dev)
	cfg.SegmentDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, dev
}

func startRunning(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())
}

func TestState_StringNames(t *testing.T) {
	assert.Equal(t, "OPEN", StateOpen.String())
	assert.Equal(t, "XRUN", StateXRun.String())
	assert.Equal(t, "DRAINING", StateDraining.String())
}

func TestSession_LifecycleTransitions(t *testing.T) {
	s, _ := openOwner(t, nil)
	assert.Equal(t, StateOpen, s.State())

	assert.ErrorIs(t, s.Start(), ErrInvalidState, "start before prepare")
	assert.ErrorIs(t, s.Drop(), ErrInvalidState, "drop from open")
	assert.ErrorIs(t, s.Drain(), ErrInvalidState, "drain from open")
	assert.ErrorIs(t, s.Pause(true), ErrInvalidState, "pause before running")

	require.NoError(t, s.Prepare())
	assert.Equal(t, StatePrepared, s.State())
	assert.ErrorIs(t, s.Pause(true), ErrInvalidState)

	require.NoError(t, s.Start())
	assert.Equal(t, StateRunning, s.State())
	assert.ErrorIs(t, s.Start(), ErrInvalidState, "double start")

	require.NoError(t, s.Pause(true))
	assert.Equal(t, StatePaused, s.State())
	assert.ErrorIs(t, s.Pause(true), ErrInvalidState, "double pause")

	require.NoError(t, s.Resume())
	assert.Equal(t, StateRunning, s.State())

	require.NoError(t, s.Drop())
	assert.Equal(t, StateSetup, s.State())
}

func TestSession_CaptureFlow(t *testing.T) {
	s, dev := openOwner(t, nil)
	startRunning(t, s)

	const frames = 32
	dev.Advance(frames)

	avail, err := s.AvailUpdate()
	require.NoError(t, err)
	assert.Equal(t, uint64(frames), avail)

	frameBytes := dev.Channels() * FormatS16.BytesPerSample()
	want := make([]byte, frames*frameBytes)
	copy(want, dev.Buffer())

	got := make([]byte, frames*frameBytes)
	n, err := s.Read(got)
	require.NoError(t, err)
	assert.Equal(t, len(got), n)
	assert.Equal(t, want, got, "captured frames should match the device ring")

	avail, err = s.AvailUpdate()
	require.NoError(t, err)
	assert.Zero(t, avail, "read consumed everything")
}

func TestSession_SnooperSeesOwnerData(t *testing.T) {
	dir := t.TempDir()
	dev := testDevice(t)
	cfg := testConfig(dev)
	cfg.SegmentDir = dir

	owner, err := Open(cfg)
	require.NoError(t, err)
	defer owner.Close()

	snoopCfg := &Config{
		IPCKey:     testKey,
		Format:     FormatS16,
		PeriodSize: testPeriodFrames,
		BufferSize: testBufFrames,
		SegmentDir: dir,
	}
	snooper, err := Open(snoopCfg)
	require.NoError(t, err)
	defer snooper.Close()
	assert.False(t, snooper.Info().FirstInstance)

	startRunning(t, owner)
	startRunning(t, snooper)

	const frames = 24
	dev.Advance(frames)

	// The owner hop publishes the shared pointer; the snooper only ever
	// reads the segment.
	_, err = owner.AvailUpdate()
	require.NoError(t, err)

	avail, err := snooper.AvailUpdate()
	require.NoError(t, err)
	assert.Equal(t, uint64(frames), avail)

	frameBytes := dev.Channels() * FormatS16.BytesPerSample()
	fromOwner := make([]byte, frames*frameBytes)
	fromSnooper := make([]byte, frames*frameBytes)
	_, err = owner.Read(fromOwner)
	require.NoError(t, err)
	_, err = snooper.Read(fromSnooper)
	require.NoError(t, err)
	assert.Equal(t, fromOwner, fromSnooper, "both sessions see the same stream")
}

func TestSession_ChannelBindingRoutesDeviceChannel(t *testing.T) {
	s, dev := openOwner(t, func(c *Config) {
		c.Channels = 1
		c.Bindings = map[int]int{0: 1}
	})
	startRunning(t, s)

	const frames = 16
	dev.Advance(frames)

	got := make([]byte, frames*FormatS16.BytesPerSample())
	_, err := s.Read(got)
	require.NoError(t, err)

	// Expect device channel 1's samples, extracted from the interleaved
	// stereo ring.
	devFrameBytes := dev.Channels() * FormatS16.BytesPerSample()
	for i := 0; i < frames; i++ {
		want := dev.Buffer()[i*devFrameBytes+2 : i*devFrameBytes+4]
		assert.Equal(t, want, got[i*2:i*2+2], "frame %d", i)
	}
}

func TestSession_OverrunStickyUntilPrepare(t *testing.T) {
	s, dev := openOwner(t, nil)
	startRunning(t, s)

	// Twice the client buffer without a single read.
	dev.Advance(testBufFrames * 2)

	_, err := s.AvailUpdate()
	require.ErrorIs(t, err, ErrOverrun)
	assert.Equal(t, StateXRun, s.State())

	_, err = s.AvailUpdate()
	assert.ErrorIs(t, err, ErrOverrun, "overrun stays sticky")
	_, err = s.Status()
	assert.ErrorIs(t, err, ErrOverrun)
	_, err = s.Delay()
	assert.ErrorIs(t, err, ErrOverrun)
	assert.ErrorIs(t, s.HwSync(), ErrOverrun)

	require.NoError(t, s.Prepare())
	assert.Equal(t, StatePrepared, s.State())
}

func TestSession_StopThresholdAtBoundaryDisablesOverrun(t *testing.T) {
	s, dev := openOwner(t, func(c *Config) {
		c.StopThreshold = 1 << 62
	})
	startRunning(t, s)

	dev.Advance(testBufFrames * 4)
	avail, err := s.AvailUpdate()
	require.NoError(t, err)
	assert.Equal(t, uint64(testBufFrames), avail, "avail clamps to the buffer")
}

func TestSession_ForwardAndRewind(t *testing.T) {
	s, dev := openOwner(t, nil)
	startRunning(t, s)

	dev.Advance(32)
	_, err := s.AvailUpdate()
	require.NoError(t, err)

	skipped := s.Forward(8)
	assert.Equal(t, uint64(8), skipped)
	assert.Equal(t, uint64(24), s.avail())

	skipped = s.Forward(100)
	assert.Equal(t, uint64(24), skipped, "forward clamps to avail")
	assert.Zero(t, s.avail())

	rewound := s.Rewind(16)
	assert.Equal(t, uint64(16), rewound)
	assert.Equal(t, uint64(16), s.avail())

	rewound = s.Rewind(testBufFrames * 2)
	assert.Equal(t, uint64(testBufFrames-16), rewound, "rewind clamps to retained data")
}

func TestSession_RewindRereadsSameData(t *testing.T) {
	s, dev := openOwner(t, nil)
	startRunning(t, s)

	const frames = 16
	dev.Advance(frames)

	frameBytes := dev.Channels() * FormatS16.BytesPerSample()
	first := make([]byte, frames*frameBytes)
	_, err := s.Read(first)
	require.NoError(t, err)

	require.Equal(t, uint64(frames), s.Rewind(frames))
	second := make([]byte, frames*frameBytes)
	_, err = s.Read(second)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSession_Reset(t *testing.T) {
	s, dev := openOwner(t, nil)
	startRunning(t, s)

	// One full period plus a remainder.
	dev.Advance(testPeriodFrames + 5)
	_, err := s.AvailUpdate()
	require.NoError(t, err)

	require.NoError(t, s.Reset())
	assert.Zero(t, s.avail(), "reset discards pending data")
}

func TestSession_NonBlockRead(t *testing.T) {
	s, dev := openOwner(t, func(c *Config) {
		c.NonBlock = true
	})
	startRunning(t, s)

	buf := make([]byte, 16*4)
	n, err := s.Read(buf)
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Zero(t, n)

	// A partial fill still reports what was copied.
	dev.Advance(8)
	n, err = s.Read(buf)
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, 8*4, n)
}

func TestSession_ReadRejectsPartialFrame(t *testing.T) {
	s, _ := openOwner(t, nil)
	startRunning(t, s)

	_, err := s.Read(make([]byte, 7))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSession_ReadFromUnstartedState(t *testing.T) {
	s, _ := openOwner(t, nil)
	require.NoError(t, s.Prepare())

	_, err := s.Read(make([]byte, 16*4))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSession_WriteUnsupported(t *testing.T) {
	s, _ := openOwner(t, nil)

	_, err := s.Write(make([]byte, 4))
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = s.WritePlanar(nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSession_BeginCommit(t *testing.T) {
	s, dev := openOwner(t, nil)
	startRunning(t, s)

	dev.Advance(40)
	_, err := s.AvailUpdate()
	require.NoError(t, err)

	// Consume a little so the next region has to stop at the wrap point.
	region, err := s.Begin(8)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), region.Frames)
	assert.Len(t, region.Bytes(), 8*4)
	_, err = s.Commit(region.Frames)
	require.NoError(t, err)

	dev.Advance(28)
	region, err = s.Begin(testBufFrames)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), region.Offset)
	assert.Equal(t, uint64(testBufFrames-8), region.Frames,
		"region is bounded by the buffer wrap point")
}

func TestSession_StatusAvailMax(t *testing.T) {
	s, dev := openOwner(t, nil)
	startRunning(t, s)

	dev.Advance(20)
	st, err := s.Status()
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, uint64(20), st.Avail)
	assert.Equal(t, uint64(20), st.AvailMax)
	assert.False(t, st.TriggerTime.IsZero())

	s.Forward(20)
	st, err = s.Status()
	require.NoError(t, err)
	assert.Zero(t, st.Avail)
	assert.Zero(t, st.AvailMax, "peak resets on each status query")
}

func TestSession_Delay(t *testing.T) {
	s, dev := openOwner(t, nil)

	_, err := s.Delay()
	assert.ErrorIs(t, err, ErrInvalidState, "delay from open")

	startRunning(t, s)
	dev.Advance(12)
	delay, err := s.Delay()
	require.NoError(t, err)
	assert.Equal(t, uint64(12), delay)
}

func TestSession_HwSync(t *testing.T) {
	s, dev := openOwner(t, nil)
	assert.ErrorIs(t, s.HwSync(), ErrInvalidState)

	startRunning(t, s)
	dev.Advance(4)
	require.NoError(t, s.HwSync())
	assert.Equal(t, uint64(4), s.avail())
}

func TestSession_DrainNonBlock(t *testing.T) {
	s, dev := openOwner(t, func(c *Config) {
		c.NonBlock = true
	})
	startRunning(t, s)
	dev.Advance(8)

	assert.ErrorIs(t, s.Drain(), ErrWouldBlock)
	assert.Equal(t, StateDraining, s.State())

	// Fill the buffer so the clamped threshold trips and drain completes.
	dev.Advance(testBufFrames * 2)
	require.NoError(t, s.Drain())
	assert.Equal(t, StateSetup, s.State())
}

func TestSession_Wait(t *testing.T) {
	s, _ := openOwner(t, nil)
	startRunning(t, s)

	assert.NoError(t, s.Wait(time.Second))
	s.DrainEvents()

	require.NoError(t, s.Drop())
	assert.ErrorIs(t, s.Wait(time.Millisecond), ErrInvalidState,
		"waiting on a stopped session")
}

func TestSession_CloseTwice(t *testing.T) {
	dev := testDevice(t)
	cfg := testConfig(dev)
	cfg.SegmentDir = t.TempDir()
	s, err := Open(cfg)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrInvalidState)
	assert.ErrorIs(t, s.Prepare(), ErrInvalidState)
	assert.ErrorIs(t, s.Reset(), ErrInvalidState)
}
