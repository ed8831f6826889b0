// Package snoop implements shared-memory capture splitting: multiple
// independent processes reading one physical capture device by
// synchronizing against a single ring buffer held in cross-process shared
// memory.
//
// The first process to open a given IPC key wins first-instance election,
// takes ownership of the capture device and replicates newly captured
// frames into the shared ring, publishing the shared hardware pointer.
// Every other process attaches to the same segment as a read-only snooper
// and tracks that pointer into its own client buffer. The segment is
// reference counted and destroyed when the last process detaches.
//
// # Quick Start
//
// Opening a capture session and reading frames:
//
//	dev, err := snoop.NewSineDevice(snoop.SineConfig{
//	    Format:     snoop.FormatS16,
//	    BufferSize: 4096,
//	    Realtime:   true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sess, err := snoop.OpenCapture(0x1234, dev)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sess.Close()
//
//	if err := sess.Prepare(); err != nil {
//	    log.Fatal(err)
//	}
//	if err := sess.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	buf := make([]byte, periodBytes)
//	for {
//	    if _, err := sess.Read(buf); err != nil {
//	        log.Fatal(err)
//	    }
//	    consume(buf)
//	}
//
// A cooperating process in the same or another OS process attaches with
// [OpenSnooper] and runs the same prepare/start/read protocol.
//
// # Zero-Copy Access
//
// [Session.Begin] and [Session.Commit] expose captured frames in place,
// bounded by availability and the buffer wrap point, for callers that
// want to avoid the copy made by [Session.Read]. [Session.Forward] and
// [Session.Rewind] adjust the application pointer directly.
//
// # Session States
//
// Sessions follow the lifecycle Open -> Setup -> Prepared -> Running,
// with Running alternating with Paused, overruns parking the session in
// XRun until re-prepared, and Drop returning any non-open state to Setup.
// Overrun detection compares the available frame count against the stop
// threshold after every synchronizer pass; a threshold at or beyond the
// pointer boundary disables detection entirely.
//
// # Format Conversion
//
// [ADPCMCodec] converts captured linear frames to and from 4-bit
// differential codes using an IMA/DVI-style adaptive quantizer. It is an
// in-process converter with per-channel state; it is deliberately not
// G.721 or RIFF-ADPCM compatible.
//
// # Concurrency
//
// The library spawns no processing goroutines. A session runs on its
// caller's goroutine and readiness is signaled by a timer-backed event
// descriptor ([Session.Wait], [Session.Events]). Cross-process
// coordination relies on a single-writer shared pointer read through
// mapped memory; an advisory lock guards only open/close coordination,
// never the copy path.
package snoop
