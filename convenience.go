package snoop

// Common sample rates for convenience functions.
const (
	// RateCD is the CD quality sample rate (Red Book standard).
	RateCD = 44100

	// RateDAT is the DAT/DVD sample rate.
	RateDAT = 48000

	// RateTelephony is the telephony (PSTN narrowband) sample rate.
	RateTelephony = 8000

	// RateVoIP is the VoIP wideband sample rate.
	RateVoIP = 16000
)

// OpenCapture opens a capture session with default sizing against the
// given device, electing this process as owner when the segment is new.
func OpenCapture(key uint32, dev Device) (*Session, error) {
	return Open(&Config{
		IPCKey: key,
		Slave:  dev,
		Format: dev.Format(),
	})
}

// OpenSnooper attaches a read-only snooper session to an existing shared
// ring without device access. It fails if no owner created the segment
// yet, since a first instance requires a slave device.
func OpenSnooper(key uint32, format Format) (*Session, error) {
	return Open(&Config{
		IPCKey: key,
		Format: format,
	})
}

// OpenBound opens a capture session whose client channels are routed from
// physical device channels through the binding table.
func OpenBound(key uint32, dev Device, channels int, bindings map[int]int) (*Session, error) {
	return Open(&Config{
		IPCKey:   key,
		Slave:    dev,
		Format:   dev.Format(),
		Channels: channels,
		Bindings: bindings,
	})
}
