package snoop

import (
	"fmt"
	"time"
)

// Status is a point-in-time snapshot of a session.
type Status struct {
	// State is the session lifecycle state.
	State State

	// TriggerTime is when the session last started or overran.
	TriggerTime time.Time

	// Time is when the snapshot was taken.
	Time time.Time

	// Avail is the available frame count.
	Avail uint64

	// AvailMax is the peak available count since the previous status
	// query; reading the status resets the tracker.
	AvailMax uint64
}

// State returns the current session state without synchronizing.
func (s *Session) State() State {
	return s.state
}

// Status returns a snapshot of the session. While running or draining a
// synchronizer pass runs first, so the counts reflect the hardware
// position. In StateXRun the overrun is reported instead, on every query
// until Prepare clears it.
func (s *Session) Status() (Status, error) {
	switch s.state {
	case StateRunning, StateDraining:
		if _, err := s.syncPtr(); err != nil {
			return Status{}, err
		}
	case StateXRun:
		return Status{}, fmt.Errorf("%w: pending until prepare", ErrOverrun)
	}

	avail := s.avail()
	availMax := s.sync.TakeAvailMax()
	if avail > availMax {
		availMax = avail
	}
	return Status{
		State:       s.state,
		TriggerTime: s.triggerTime,
		Time:        time.Now(),
		Avail:       avail,
		AvailMax:    availMax,
	}, nil
}

// Delay returns the frames captured but not yet read, the capture-side
// delay. Running and draining sessions synchronize first; a prepared
// session reports its last-known value; an overrun or unconfigured
// session reports the corresponding error.
func (s *Session) Delay() (uint64, error) {
	switch s.state {
	case StateRunning, StateDraining:
		if _, err := s.syncPtr(); err != nil {
			return 0, err
		}
		return s.avail(), nil
	case StatePrepared, StatePaused:
		return s.avail(), nil
	case StateXRun:
		return 0, fmt.Errorf("%w: pending until prepare", ErrOverrun)
	default:
		return 0, fmt.Errorf("%w: delay from %v", ErrInvalidState, s.state)
	}
}

// HwSync forces a synchronizer pass in the states where one is
// meaningful. Prepared and paused sessions are a no-op; overrun and
// unconfigured sessions report errors.
func (s *Session) HwSync() error {
	switch s.state {
	case StateRunning, StateDraining:
		_, err := s.syncPtr()
		return err
	case StatePrepared, StatePaused:
		return nil
	case StateXRun:
		return fmt.Errorf("%w: pending until prepare", ErrOverrun)
	default:
		return fmt.Errorf("%w: hwsync from %v", ErrInvalidState, s.state)
	}
}

// Info describes the session's fixed setup.
type Info struct {
	// Stream is always "capture"; this session type is capture-only.
	Stream string

	// Format is the shared sample format.
	Format Format

	// Rate is the frame rate in Hz.
	Rate int

	// Channels is the client channel count.
	Channels int

	// BufferSize is the client buffer length in frames.
	BufferSize uint64

	// PeriodSize is the period length in frames.
	PeriodSize uint64

	// FirstInstance reports whether this session owns device access.
	FirstInstance bool
}

// Info returns the session's setup description.
func (s *Session) Info() Info {
	return Info{
		Stream:        "capture",
		Format:        s.format,
		Rate:          s.rate,
		Channels:      s.channels,
		BufferSize:    s.bufferSize,
		PeriodSize:    s.periodSize,
		FirstInstance: s.dev != nil,
	}
}
