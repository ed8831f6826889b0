// Command snoop-record captures audio from a shared snoop ring to a WAV
// file. The first invocation for a key owns the capture device and feeds
// the shared ring; concurrent invocations with -snoop attach to the same
// ring and record the same stream independently.
//
// Usage:
//
//	snoop-record -key 0x5001 -duration 5s out.wav
//	snoop-record -key 0x5001 -snoop -duration 5s copy.wav   # second process
//	snoop-record -key 0x5001 -gain 0.5 -freq 880 out.wav
//	snoop-record -key 0x5001 -adpcm out.ima                 # 4:1 compressed
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/simd/f64"
	"golang.org/x/sync/errgroup"

	snoop "github.com/tphakala/go-audio-snoop"
)

const (
	// Capture chunk size in frames.
	chunkFrames = 1024

	// Queue depth between the capture and writer goroutines.
	chunkQueueLen = 8

	// CLI defaults.
	defaultKey      = 0x5001
	defaultDuration = 5 * time.Second
	defaultGain     = 1.0
	defaultFreq     = 440.0
	defaultChannels = 2

	// WAV encoder parameters.
	wavBitDepth    = 16
	wavAudioFormat = 1 // PCM

	maxInt16 = 32767.0
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	key := flag.Uint("key", defaultKey, "IPC key identifying the shared ring")
	rate := flag.Int("rate", snoop.RateDAT, "Sample rate in Hz")
	channels := flag.Int("channels", defaultChannels, "Channel count")
	freq := flag.Float64("freq", defaultFreq, "Simulated device tone frequency in Hz")
	duration := flag.Duration("duration", defaultDuration, "Recording duration")
	gain := flag.Float64("gain", defaultGain, "Linear gain applied before writing")
	snooper := flag.Bool("snoop", false, "Attach to an existing ring instead of owning the device")
	adpcm := flag.Bool("adpcm", false, "Write raw IMA ADPCM codes instead of WAV")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] output.wav\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
		return fmt.Errorf("missing output file")
	}
	output := args[0]

	session, err := openSession(uint32(*key), *rate, *channels, *freq, *snooper)
	if err != nil {
		return err
	}
	defer session.Close()

	if *verbose {
		info := session.Info()
		role := "snooper"
		if info.FirstInstance {
			role = "owner"
		}
		log.Printf("%s: %v %d ch %d Hz, buffer %d frames, period %d frames",
			role, info.Format, info.Channels, info.Rate, info.BufferSize, info.PeriodSize)
	}

	if err := session.Prepare(); err != nil {
		return err
	}
	if err := session.Start(); err != nil {
		return err
	}

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", output, err)
	}
	defer out.Close()

	start := time.Now()
	frames, err := record(session, out, *duration, *gain, *adpcm)
	if err != nil {
		return err
	}
	if *verbose {
		log.Printf("wrote %d frames in %v", frames, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// openSession opens the shared ring. Owners get a simulated realtime sine
// device behind the ring; snoopers attach with no device at all.
func openSession(key uint32, rate, channels int, freq float64, snooper bool) (*snoop.Session, error) {
	cfg := &snoop.Config{
		IPCKey: key,
		Format: snoop.FormatS16,
	}
	if !snooper {
		dev, err := snoop.NewSineDevice(snoop.SineConfig{
			Format:     snoop.FormatS16,
			Channels:   channels,
			Rate:       rate,
			BufferSize: uint64(rate), // one second of ring
			Freq:       freq,
			Realtime:   true,
		})
		if err != nil {
			return nil, err
		}
		cfg.Slave = dev
	}
	return snoop.Open(cfg)
}

// record runs the capture and writer goroutines until the duration
// elapses, connected by a bounded chunk queue so a slow disk never stalls
// pointer synchronization.
func record(session *snoop.Session, out *os.File, duration time.Duration, gain float64, asADPCM bool) (uint64, error) {
	info := session.Info()
	frameBytes := info.Format.BytesPerSample() * info.Channels
	chunks := make(chan []byte, chunkQueueLen)

	g, ctx := errgroup.WithContext(context.Background())
	deadline := time.After(duration)

	var captured uint64
	g.Go(func() error {
		defer close(chunks)
		buf := make([]byte, chunkFrames*frameBytes)
		for {
			select {
			case <-deadline:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			n, err := session.Read(buf)
			if err != nil {
				return fmt.Errorf("capture: %w", err)
			}
			captured += uint64(n / frameBytes)
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	g.Go(func() error {
		if asADPCM {
			return writeADPCM(out, chunks, info, frameBytes)
		}
		return writeWAV(out, chunks, info, frameBytes, gain)
	})

	if err := g.Wait(); err != nil {
		return captured, err
	}
	return captured, nil
}

// writeWAV drains chunks into a WAV encoder, applying the gain in the
// float domain.
func writeWAV(out *os.File, chunks <-chan []byte, info snoop.Info, frameBytes int, gain float64) error {
	enc := wav.NewEncoder(out, info.Rate, wavBitDepth, info.Channels, wavAudioFormat)
	for chunk := range chunks {
		samples := samplesFromBytes(chunk, info.Format)
		if gain != 1.0 {
			applyGain(samples, gain)
		}
		buf := &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: info.Channels, SampleRate: info.Rate},
			Data:           samples,
			SourceBitDepth: wavBitDepth,
		}
		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("wav write: %w", err)
		}
	}
	return enc.Close()
}

// writeADPCM drains chunks through the 4-bit codec into a raw code file.
func writeADPCM(out *os.File, chunks <-chan []byte, info snoop.Info, frameBytes int) error {
	codec, err := snoop.NewADPCMCodec(info.Format, info.Channels)
	if err != nil {
		return err
	}
	for chunk := range chunks {
		frames := len(chunk) / frameBytes
		coded := make([]byte, codec.CodedBytes(frames))
		if err := codec.Encode(coded, chunk, frames); err != nil {
			return fmt.Errorf("adpcm encode: %w", err)
		}
		if _, err := out.Write(coded); err != nil {
			return fmt.Errorf("adpcm write: %w", err)
		}
	}
	return nil
}

// samplesFromBytes decodes interleaved little-endian samples to ints.
func samplesFromBytes(p []byte, f snoop.Format) []int {
	bps := f.BytesPerSample()
	samples := make([]int, len(p)/bps)
	for i := range samples {
		off := i * bps
		if f == snoop.FormatS32 {
			v := int32(uint32(p[off]) | uint32(p[off+1])<<8 | uint32(p[off+2])<<16 | uint32(p[off+3])<<24)
			samples[i] = int(v >> 16) // WAV output stays 16-bit
		} else {
			samples[i] = int(int16(uint16(p[off]) | uint16(p[off+1])<<8))
		}
	}
	return samples
}

// applyGain scales samples in the float64 domain and clamps back.
func applyGain(samples []int, gain float64) {
	scaled := make([]float64, len(samples))
	for i, s := range samples {
		scaled[i] = float64(s)
	}
	f64.Scale(scaled, scaled, gain)
	for i, v := range scaled {
		switch {
		case v > maxInt16:
			samples[i] = maxInt16
		case v < -maxInt16-1:
			samples[i] = -maxInt16 - 1
		default:
			samples[i] = int(v)
		}
	}
}
