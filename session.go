package snoop

import (
	"errors"
	"fmt"
	"time"

	"github.com/tphakala/go-audio-snoop/internal/area"
	"github.com/tphakala/go-audio-snoop/internal/ring"
	"github.com/tphakala/go-audio-snoop/internal/shmseg"
	"github.com/tphakala/go-audio-snoop/internal/timer"
)

// State enumerates session lifecycle states.
type State int

const (
	// StateOpen is the freshly opened, unconfigured session.
	StateOpen State = iota

	// StateSetup is the configured but unprepared session, entered by
	// Drop from any non-open state.
	StateSetup

	// StatePrepared is ready to start.
	StatePrepared

	// StateRunning is actively tracking the shared ring.
	StateRunning

	// StatePaused gates the timer without losing the stream position.
	StatePaused

	// StateXRun is the overrun condition; queries report ErrOverrun
	// until Prepare clears it.
	StateXRun

	// StateDraining is the transient state during Drain's wait loop.
	StateDraining
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateSetup:
		return "SETUP"
	case StatePrepared:
		return "PREPARED"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateXRun:
		return "XRUN"
	case StateDraining:
		return "DRAINING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is one process's handle on a shared capture ring. It runs
// entirely on the calling goroutine: readiness is signaled by the
// timer-backed event descriptor and all pointer work happens inside the
// caller's own poll loop. A Session must not be shared between
// goroutines without external synchronization.
type Session struct {
	seg     *shmseg.Segment
	dev     Device             // non-nil only for the first instance
	devSync *ring.Synchronizer // device ring -> shared ring (owner hop)
	sync    *ring.Synchronizer // shared ring -> client buffer
	shared  *sharedView
	timer   *timer.Timer

	state       State
	applPtr     uint64
	triggerTime time.Time

	format        Format
	rate          int
	channels      int
	slaveChannels int
	bindings      []int
	bufferSize    uint64
	periodSize    uint64
	boundary      uint64
	stopThreshold uint64
	nonblock      bool

	buf    []byte
	areas  []area.Channel
	closed bool
}

// syncPtr runs one synchronizer pass: the owner hop first when this
// session owns the device, then the session hop against the application
// pointer. An overrun transitions the session into StateXRun and records
// the trigger timestamp; it is reported once per detection and not
// retried.
func (s *Session) syncPtr() (int64, error) {
	if s.devSync != nil {
		if _, err := s.devSync.Sync(0); err != nil {
			return 0, err
		}
	}
	advanced, err := s.sync.Sync(s.applPtr)
	if err != nil {
		if errors.Is(err, ring.ErrOverrun) {
			s.state = StateXRun
			s.triggerTime = time.Now()
			return 0, fmt.Errorf("%w: stop threshold %d reached", ErrOverrun, s.stopThreshold)
		}
		return 0, err
	}
	return advanced, nil
}

// Prepare resets the local and application pointers, re-validates the
// interleaving assumption against the channel binding configuration and
// transitions to StatePrepared. It is also the only way to clear a sticky
// overrun condition.
func (s *Session) Prepare() error {
	if s.closed {
		return fmt.Errorf("%w: session closed", ErrInvalidState)
	}
	if err := s.buildSync(); err != nil {
		return err
	}
	s.sync.SetHwPointer(0)
	s.applPtr = 0
	s.state = StatePrepared
	return nil
}

// Start begins timer-driven polling. It is only legal from StatePrepared:
// the shared pointer is snapshot as the new baseline and the trigger
// timestamp recorded.
func (s *Session) Start() error {
	if s.state != StatePrepared {
		return fmt.Errorf("%w: start from %v", ErrInvalidState, s.state)
	}
	s.timer.Start()
	s.sync.Rebase()
	s.state = StateRunning
	s.triggerTime = time.Now()
	return nil
}

// Drop stops the timer and transitions to StateSetup from any non-open
// state, discarding pending captured frames.
func (s *Session) Drop() error {
	if s.state == StateOpen {
		return fmt.Errorf("%w: drop from %v", ErrInvalidState, s.state)
	}
	s.timer.Stop()
	s.state = StateSetup
	return nil
}

// Drain repeatedly synchronizes until pending capture beneath the stop
// threshold has been consumed by an overrun against the full buffer, then
// behaves as Drop. In non-blocking mode a pass that would wait returns
// ErrWouldBlock instead; the caller retries Drain.
func (s *Session) Drain() error {
	if s.state == StateOpen {
		return fmt.Errorf("%w: drain from %v", ErrInvalidState, s.state)
	}

	// Clamp the threshold to the buffer so the wait loop terminates
	// once the client ring has retained everything it can.
	saved := s.sync.StopThreshold()
	if saved > s.bufferSize {
		s.sync.SetStopThreshold(s.bufferSize)
	}
	if s.state == StateRunning {
		s.state = StateDraining
	}
	for s.state == StateDraining {
		if _, err := s.syncPtr(); err != nil {
			break
		}
		if s.nonblock {
			s.sync.SetStopThreshold(saved)
			return ErrWouldBlock
		}
		if err := s.timer.Wait(-1); err != nil {
			break
		}
	}
	s.sync.SetStopThreshold(saved)
	if s.state == StateDraining {
		s.state = StateRunning
	}
	return s.Drop()
}

// Pause gates the timer: enable pauses a running session, disable resumes
// a paused one. Any other transition is rejected.
func (s *Session) Pause(enable bool) error {
	if enable {
		if s.state != StateRunning {
			return fmt.Errorf("%w: pause from %v", ErrInvalidState, s.state)
		}
		s.state = StatePaused
		s.timer.Stop()
		return nil
	}
	if s.state != StatePaused {
		return fmt.Errorf("%w: resume from %v", ErrInvalidState, s.state)
	}
	s.state = StateRunning
	s.timer.Start()
	return nil
}

// Resume is shorthand for Pause(false).
func (s *Session) Resume() error {
	return s.Pause(false)
}

// Reset rebases the stream position to the current period: the local
// pointer keeps only its in-period remainder, the application pointer
// snaps to it and the shared pointer is re-snapshot.
func (s *Session) Reset() error {
	if s.closed {
		return fmt.Errorf("%w: session closed", ErrInvalidState)
	}
	s.sync.SetHwPointer(s.sync.HwPointer() % s.periodSize)
	s.applPtr = s.sync.HwPointer()
	s.sync.Rebase()
	return nil
}

// avail returns the captured frames not yet consumed by the application
// pointer, clamped to the buffer length.
func (s *Session) avail() uint64 {
	return s.sync.Avail(s.applPtr)
}

// AvailUpdate returns the available frame count. While running or
// draining it triggers a synchronizer pass first; other states return the
// last-known value. In StateXRun it reports ErrOverrun on every call
// until Prepare clears the condition.
func (s *Session) AvailUpdate() (uint64, error) {
	switch s.state {
	case StateRunning, StateDraining:
		if _, err := s.syncPtr(); err != nil {
			return 0, err
		}
	case StateXRun:
		return 0, fmt.Errorf("%w: pending until prepare", ErrOverrun)
	}
	return s.avail(), nil
}

// Forward advances the application pointer by up to frames, clamped to
// the currently available count. It returns the frames actually skipped.
func (s *Session) Forward(frames uint64) uint64 {
	avail := s.avail()
	if frames > avail {
		frames = avail
	}
	s.applPtr = (s.applPtr + frames) % s.boundary
	return frames
}

// Rewind moves the application pointer backward by up to frames so
// already-consumed data still held in the buffer can be read again. It
// returns the frames actually rewound.
func (s *Session) Rewind(frames uint64) uint64 {
	rewindable := s.bufferSize - s.avail()
	if frames > rewindable {
		frames = rewindable
	}
	s.applPtr = (s.applPtr + s.boundary - frames) % s.boundary
	return frames
}

// Region describes a contiguous run of captured frames exposed for
// zero-copy reading.
type Region struct {
	// Offset is the region's first frame within the client buffer.
	Offset uint64

	// Frames is the region length.
	Frames uint64

	buf        []byte
	frameBytes int
}

// Bytes returns the interleaved sample bytes of the region.
func (r Region) Bytes() []byte {
	start := int(r.Offset) * r.frameBytes
	end := start + int(r.Frames)*r.frameBytes
	return r.buf[start:end]
}

// Begin exposes up to frames captured frames for reading, bounded by
// availability and by the buffer wrap point. Commit the consumed count
// afterwards. The descriptor stays valid until the next Commit, Prepare
// or Drop.
func (s *Session) Begin(frames uint64) (Region, error) {
	avail, err := s.AvailUpdate()
	if err != nil {
		return Region{}, err
	}
	if frames > avail {
		frames = avail
	}
	offset := s.applPtr % s.bufferSize
	if cont := s.bufferSize - offset; frames > cont {
		frames = cont
	}
	return Region{
		Offset:     offset,
		Frames:     frames,
		buf:        s.buf,
		frameBytes: s.format.BytesPerSample() * s.channels,
	}, nil
}

// Commit consumes frames frames from the last Begin, advancing the
// application pointer. While running it synchronizes first, mirroring the
// zero-copy commit protocol.
func (s *Session) Commit(frames uint64) (uint64, error) {
	if s.state == StateRunning {
		if _, err := s.syncPtr(); err != nil {
			return 0, err
		}
	}
	s.applPtr = (s.applPtr + frames) % s.boundary
	return frames, nil
}

// Read copies captured frames into p, blocking until it is full. The
// slice length must be a multiple of the frame size. In non-blocking mode
// Read returns ErrWouldBlock once no more frames are immediately
// available; the frames already copied are reported alongside.
func (s *Session) Read(p []byte) (int, error) {
	frameBytes := s.format.BytesPerSample() * s.channels
	if len(p)%frameBytes != 0 {
		return 0, fmt.Errorf("%w: buffer not a frame multiple", ErrInvalidConfig)
	}
	want := uint64(len(p) / frameBytes)

	var done uint64
	for done < want {
		region, err := s.Begin(want - done)
		if err != nil {
			return int(done), err
		}
		if region.Frames == 0 {
			if s.state != StateRunning && s.state != StateDraining {
				return int(done), fmt.Errorf("%w: read from %v", ErrInvalidState, s.state)
			}
			if s.nonblock {
				return int(done), ErrWouldBlock
			}
			if err := s.timer.Wait(-1); err != nil {
				return int(done), fmt.Errorf("%w: %v", ErrInvalidState, err)
			}
			continue
		}
		copy(p[int(done)*frameBytes:], region.Bytes())
		if _, err := s.Commit(region.Frames); err != nil {
			return int(done), err
		}
		done += region.Frames
	}
	return int(done), nil
}

// Write rejects the write direction; this session type is capture-only.
func (s *Session) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("%w: write", ErrUnsupported)
}

// WritePlanar rejects the write direction; this session type is
// capture-only.
func (s *Session) WritePlanar(p [][]byte) (int, error) {
	return 0, fmt.Errorf("%w: write", ErrUnsupported)
}

// Wait blocks until the next period readiness event or the timeout
// elapses. A negative timeout waits indefinitely.
func (s *Session) Wait(timeout time.Duration) error {
	if err := s.timer.Wait(timeout); err != nil {
		if errors.Is(err, timer.ErrTimeout) {
			return ErrWouldBlock
		}
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return nil
}

// Events exposes the readiness channel for select-based polling. Call
// DrainEvents after waking to empty the queue, as with a poll descriptor.
func (s *Session) Events() <-chan struct{} {
	return s.timer.Events()
}

// DrainEvents empties queued readiness events.
func (s *Session) DrainEvents() {
	s.timer.Drain()
}

// Close tears the session down: the timer stops, the owner's device is
// stopped and closed, and the shared segment reference is released. The
// segment itself is destroyed when the last process detaches. Resources
// release in reverse acquisition order.
func (s *Session) Close() error {
	if s.closed {
		return fmt.Errorf("%w: session closed", ErrInvalidState)
	}
	s.closed = true
	s.timer.Stop()

	var firstErr error
	if s.dev != nil {
		if err := s.dev.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := s.dev.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if _, err := s.seg.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
