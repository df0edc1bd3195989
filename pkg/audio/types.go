// Package audio carries the PCM frames a stage client uploads and
// normalises them into the mono float stream the feature extractor
// consumes.
package audio

import "time"

// Frame is a single buffer of audio as received from the client.
type Frame struct {
	// PCM holds little-endian int16 samples, channel-interleaved.
	PCM []byte

	// SampleRate in Hz (e.g., 48000 for most phone microphones).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to the
	// start of the performance.
	Timestamp time.Duration
}

// SampleCount returns the number of per-channel sample frames in the buffer.
func (f Frame) SampleCount() int {
	if f.Channels <= 0 {
		return 0
	}
	return len(f.PCM) / 2 / f.Channels
}

// Samples decodes the PCM payload into float64 samples in [-1, 1).
// Stereo input is averaged down to mono during decode.
func (f Frame) Samples() []float64 {
	n := f.SampleCount()
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	switch f.Channels {
	case 1:
		for i := range out {
			s := int16(f.PCM[i*2]) | int16(f.PCM[i*2+1])<<8
			out[i] = float64(s) / 32768
		}
	default:
		for i := range out {
			var sum float64
			for ch := 0; ch < f.Channels; ch++ {
				off := (i*f.Channels + ch) * 2
				s := int16(f.PCM[off]) | int16(f.PCM[off+1])<<8
				sum += float64(s)
			}
			out[i] = sum / float64(f.Channels) / 32768
		}
	}
	return out
}
