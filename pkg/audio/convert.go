package audio

import (
	"log/slog"
	"sync"
)

// Normalizer converts incoming frames to mono at a fixed sample rate.
// It logs a warning on the first format mismatch and validates PCM data
// alignment. Create one per stream; not designed for shared use across
// goroutines.
type Normalizer struct {
	// TargetRate is the mono output sample rate in Hz.
	TargetRate int

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Normalize converts frame to mono at the target rate. If the source
// already matches, the frame is returned unchanged (zero allocation).
// Misaligned PCM payloads are dropped with an empty frame.
func (n *Normalizer) Normalize(frame Frame) Frame {
	if frame.Channels <= 0 {
		frame.Channels = 1
	}

	// Odd byte counts mean a torn int16 sample somewhere upstream.
	if len(frame.PCM)%(2*frame.Channels) != 0 {
		n.warnedCorrupt.Do(func() {
			slog.Warn("audio normalizer: misaligned PCM payload, dropping frame",
				"bytes", len(frame.PCM),
				"sample_rate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		return Frame{SampleRate: n.TargetRate, Channels: 1, Timestamp: frame.Timestamp}
	}

	if frame.SampleRate == n.TargetRate && frame.Channels == 1 {
		return frame
	}

	n.warnedMismatch.Do(func() {
		slog.Warn("audio normalizer: converting stream",
			"from_rate", frame.SampleRate,
			"from_channels", frame.Channels,
			"to_rate", n.TargetRate,
		)
	})

	pcm := frame.PCM
	if frame.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	pcm = ResampleMono16(pcm, frame.SampleRate, n.TargetRate)

	return Frame{
		PCM:        pcm,
		SampleRate: n.TargetRate,
		Channels:   1,
		Timestamp:  frame.Timestamp,
	}
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono
// output. Uses int32 arithmetic to prevent overflow and clamps to int16
// range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using
// linear interpolation. The input must be little-endian int16 samples.
// If srcRate == dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}
