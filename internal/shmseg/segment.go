// Package shmseg manages the cross-process shared memory segment backing a
// snoop ring: a fixed header carrying stream metadata, the shared hardware
// pointer and a reference count, followed by the raw ring storage.
//
// Segments are plain files under a tmpfs directory (/dev/shm by default),
// keyed by a numeric identifier shared by all cooperating processes and
// mapped with mmap. Creation races are resolved with an advisory file lock
// so that exactly one process wins first-instance election; the segment is
// reference counted and unlinked when the last process detaches.
package shmseg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Segment layout constants.
const (
	// segmentMagic identifies a snoop segment file.
	segmentMagic = "SNOOPSHM"

	// segmentVersion is the current header layout version.
	segmentVersion = uint32(1)

	// HeaderSize is the fixed header size preceding ring storage.
	HeaderSize = 128

	// DefaultDir is the default segment directory.
	DefaultDir = "/dev/shm"

	segmentFilePerm = 0o600
)

// Segment errors.
var (
	// ErrBadSegment indicates an existing segment with an unexpected
	// magic, version or size.
	ErrBadSegment = errors.New("shmseg: incompatible segment")

	// ErrClosed indicates use of a detached segment.
	ErrClosed = errors.New("shmseg: segment closed")
)

// Header is the shared segment header. The layout is fixed; all fields are
// naturally aligned for atomic access. Only the first-instance process
// writes HwPtr after initialization; every process updates the reference
// count under the segment lock.
type Header struct {
	Magic      [8]byte // segment identification
	Version    uint32  // header layout version
	Format     uint32  // sample format code
	Channels   uint32  // channel count
	Rate       uint32  // frame rate in Hz
	BufferSize uint64  // ring length in frames
	PeriodSize uint64  // period length in frames
	Boundary   uint64  // hardware pointer modulus
	hwPtr      uint64  // shared hardware pointer, atomic
	refCount   int32   // attached process count, lock protected
	_          uint32
	_          [64]byte // reserved up to HeaderSize
}

// HwPointer atomically loads the shared hardware pointer.
func (h *Header) HwPointer() uint64 {
	return atomic.LoadUint64(&h.hwPtr)
}

// SetHwPointer atomically publishes the shared hardware pointer. Only the
// device-owning process calls this.
func (h *Header) SetHwPointer(v uint64) {
	atomic.StoreUint64(&h.hwPtr, v)
}

// Segment is one process's attachment to the shared block.
type Segment struct {
	file  *os.File
	mem   []byte
	path  string
	first bool
}

// Path constructs the segment file path for an IPC key.
func Path(dir string, key uint32) string {
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, fmt.Sprintf("go-audio-snoop-%08x", key))
}

// Open attaches to the segment identified by key under dir, creating it
// with room for dataSize ring bytes when it does not exist yet.
// First-instance election happens under an advisory lock held for the
// whole call: when this process wins, init runs under that lock to fill
// the header before any other attacher can observe the segment, so a
// concurrent Open blocks until initialization is complete. A winner with
// no initializer fails and removes the segment; losing attachers
// validate the header before returning. An init error also removes the
// segment, leaving no half-initialized file behind.
//
// The advisory lock taken here spans only open-time coordination, never
// the sample copy path.
func Open(dir string, key uint32, dataSize int, init func(*Segment) error) (seg *Segment, first bool, err error) {
	path := Path(dir, key)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, segmentFilePerm)
	if err != nil {
		return nil, false, fmt.Errorf("shmseg: open %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			f.Close()
		}
	}()

	if err = unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return nil, false, fmt.Errorf("shmseg: lock %s: %w", path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	fi, err := f.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("shmseg: stat %s: %w", path, err)
	}

	first = fi.Size() == 0
	size := int(fi.Size())
	if first {
		size = HeaderSize + dataSize
		if err = f.Truncate(int64(size)); err != nil {
			os.Remove(path)
			return nil, false, fmt.Errorf("shmseg: resize %s: %w", path, err)
		}
	} else if size < HeaderSize {
		return nil, false, fmt.Errorf("%w: %d bytes", ErrBadSegment, size)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		if first {
			os.Remove(path)
		}
		return nil, false, fmt.Errorf("shmseg: mmap %s: %w", path, err)
	}

	seg = &Segment{file: f, mem: mem, path: path, first: first}
	if first {
		if init == nil {
			err = fmt.Errorf("%w: no initializer for a fresh segment", ErrBadSegment)
		} else {
			err = init(seg)
		}
		if err != nil {
			seg.unmap()
			os.Remove(path)
			return nil, false, err
		}
	} else {
		h := seg.Header()
		if string(h.Magic[:]) != segmentMagic || h.Version != segmentVersion {
			seg.unmap()
			return nil, false, fmt.Errorf("%w: bad magic or version", ErrBadSegment)
		}
	}
	seg.Header().refCount++
	return seg, first, nil
}

// Init fills in the header after first-instance election. The winning
// process calls this from its Open init callback, still under the open
// lock. The hardware pointer starts at zero.
func (s *Segment) Init(format, channels, rate uint32, bufferSize, periodSize, boundary uint64) {
	h := s.Header()
	copy(h.Magic[:], segmentMagic)
	h.Version = segmentVersion
	h.Format = format
	h.Channels = channels
	h.Rate = rate
	h.BufferSize = bufferSize
	h.PeriodSize = periodSize
	h.Boundary = boundary
	h.SetHwPointer(0)
}

// Header returns the mapped segment header.
func (s *Segment) Header() *Header {
	return (*Header)(unsafe.Pointer(&s.mem[0]))
}

// Data returns the ring storage following the header.
func (s *Segment) Data() []byte {
	return s.mem[HeaderSize:]
}

// First reports whether this attachment won first-instance election.
func (s *Segment) First() bool { return s.first }

// Close detaches from the segment, decrementing the shared reference
// count under the segment lock. The segment file is unlinked when the
// last attachment leaves; destroyed reports whether that happened here.
func (s *Segment) Close() (destroyed bool, err error) {
	if s.mem == nil {
		return false, ErrClosed
	}
	if err := unix.Flock(int(s.file.Fd()), unix.LOCK_EX); err != nil {
		s.unmap()
		return false, fmt.Errorf("shmseg: lock %s: %w", s.path, err)
	}
	h := s.Header()
	h.refCount--
	destroyed = h.refCount <= 0
	if destroyed {
		os.Remove(s.path)
	}
	unix.Flock(int(s.file.Fd()), unix.LOCK_UN)
	return destroyed, s.unmap()
}

// unmap releases the mapping and file descriptor.
func (s *Segment) unmap() error {
	err := unix.Munmap(s.mem)
	s.mem = nil
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}
