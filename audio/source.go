package audio

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultChunkSize = 8 * 1024
	DefaultRate      = 16000
)

// Format describes raw PCM. Only 16-bit samples are supported.
type Format struct {
	SampleRate  int
	SampleWidth int
	Channels    int
}

var PCM16kMono = Format{SampleRate: DefaultRate, SampleWidth: 2, Channels: 1}

// BytesPerSecond is the amount of audio one second of playback represents.
func (f Format) BytesPerSecond() int {
	channels := f.Channels
	if channels == 0 {
		channels = 1
	}
	return f.SampleRate * f.SampleWidth * channels
}

func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(bps) * float64(time.Second))
}

// Chunks splits content into consecutive slices of at most size bytes.
func Chunks(content []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]byte, 0, (len(content)+size-1)/size)
	for i := 0; i < len(content); i += size {
		end := min(i+size, len(content))
		chunks = append(chunks, content[i:end])
	}
	return chunks
}

// Delay is how long a chunk of chunkSize bytes takes to play:
// 1000 / (rate * width / chunkSize) milliseconds.
func Delay(sampleRate, sampleWidth, chunkSize int) time.Duration {
	if sampleRate <= 0 || sampleWidth <= 0 || chunkSize <= 0 {
		return 0
	}
	chunksPerSecond := float64(sampleRate*sampleWidth) / float64(chunkSize)
	return time.Duration(float64(time.Second) / chunksPerSecond)
}

// Source hands audio to a sender. In realtime mode it slices the audio
// and waits between chunks so that it never goes out faster than it
// would play; otherwise everything goes out as one chunk.
type Source struct {
	Format    Format
	ChunkSize int
	Realtime  bool
	Clock     Clock
}

func NewSource(format Format, chunkSize int, realtime bool) (*Source, error) {
	if format.SampleWidth != 2 {
		return nil, fmt.Errorf("audio: sample width must be 2 bytes, got %d", format.SampleWidth)
	}
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", format.SampleRate)
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Source{
		Format:    format,
		ChunkSize: chunkSize,
		Realtime:  realtime,
		Clock:     SystemClock{},
	}, nil
}

func (s *Source) Delay() time.Duration {
	if !s.Realtime {
		return 0
	}
	return Delay(s.Format.SampleRate*max(s.Format.Channels, 1), s.Format.SampleWidth, s.ChunkSize)
}

// Stream calls fn with every chunk of content, in order. It stops at the
// first error from fn or when ctx is done.
func (s *Source) Stream(ctx context.Context, content []byte, fn func(chunk []byte) error) error {
	if !s.Realtime {
		if len(content) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(content)
	}

	clock := s.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	delay := s.Delay()
	chunks := Chunks(content, s.ChunkSize)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(chunk); err != nil {
			return err
		}
		if i == len(chunks)-1 {
			break
		}
		if err := clock.Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}
