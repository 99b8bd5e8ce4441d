package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// DefaultSilenceThreshold is an RMS level (out of 32767) below which a
// 10 ms window counts as silence.
const DefaultSilenceThreshold = 500

// LeadingSilence returns how long the audio stays below threshold before
// the first window of speech. All-silent audio returns its full duration.
func LeadingSilence(pcm []byte, f Format, threshold float64) time.Duration {
	if f.SampleWidth != 2 || f.SampleRate <= 0 {
		return 0
	}
	frame := max(f.SampleRate/100, 1) * f.SampleWidth * max(f.Channels, 1)

	for off := 0; off < len(pcm); off += frame {
		end := min(off+frame, len(pcm))
		if rms(pcm[off:end]) >= threshold {
			return f.Duration(off)
		}
	}
	return f.Duration(len(pcm))
}

func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
