package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

type MockClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (m *MockClock) Now() time.Time {
	return m.now
}

func (m *MockClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.sleeps = append(m.sleeps, d)
	m.now = m.now.Add(d)
	return nil
}

func TestDelay(t *testing.T) {
	tests := []struct {
		rate, width, chunk int
		want               time.Duration
	}{
		{16000, 2, 8192, 256 * time.Millisecond},
		{16000, 2, 4096, 128 * time.Millisecond},
		{16000, 2, 32000, time.Second},
		{8000, 2, 1600, 100 * time.Millisecond},
		{0, 2, 8192, 0},
	}
	for _, tt := range tests {
		if got := Delay(tt.rate, tt.width, tt.chunk); got != tt.want {
			t.Errorf("Delay(%d, %d, %d) = %v, want %v", tt.rate, tt.width, tt.chunk, got, tt.want)
		}
	}
}

func TestChunks(t *testing.T) {
	content := make([]byte, 32000)
	chunks := Chunks(content, 8192)
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	wantSizes := []int{8192, 8192, 8192, 7424}
	for i, c := range chunks {
		if len(c) != wantSizes[i] {
			t.Errorf("chunk %d has %d bytes, want %d", i, len(c), wantSizes[i])
		}
	}
	if got := Chunks(nil, 8192); len(got) != 0 {
		t.Errorf("Chunks(nil) = %d chunks", len(got))
	}
}

func TestStreamRealtime(t *testing.T) {
	src, err := NewSource(PCM16kMono, 8192, true)
	if err != nil {
		t.Fatal(err)
	}
	clock := &MockClock{now: time.Unix(0, 0)}
	src.Clock = clock

	content := bytes.Repeat([]byte{1, 2}, 16000)
	var got [][]byte
	var sentAt []time.Time
	err = src.Stream(context.Background(), content, func(chunk []byte) error {
		got = append(got, chunk)
		sentAt = append(sentAt, clock.Now())
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	if len(got) != 4 {
		t.Fatalf("sent %d chunks, want 4", len(got))
	}
	if !bytes.Equal(bytes.Join(got, nil), content) {
		t.Error("chunks do not reassemble to the original audio")
	}
	// no wait after the last chunk
	if len(clock.sleeps) != 3 {
		t.Errorf("slept %d times, want 3", len(clock.sleeps))
	}
	for i := 1; i < len(sentAt); i++ {
		if gap := sentAt[i].Sub(sentAt[i-1]); gap < 256*time.Millisecond {
			t.Errorf("chunk %d sent %v after the previous one", i, gap)
		}
	}
	total := sentAt[len(sentAt)-1].Sub(sentAt[0])
	if total < 3*256*time.Millisecond || total >= 3*3*256*time.Millisecond {
		t.Errorf("stream took %v, want between 768ms and 2.304s", total)
	}
}

func TestStreamRealtimeWallClock(t *testing.T) {
	// 1600 bytes of 16 kHz 16-bit audio is 50ms
	src, err := NewSource(PCM16kMono, 1600, true)
	if err != nil {
		t.Fatal(err)
	}

	chunks := 0
	begin := time.Now()
	err = src.Stream(context.Background(), make([]byte, 4*1600), func([]byte) error {
		chunks++
		return nil
	})
	elapsed := time.Since(begin)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if chunks != 4 {
		t.Fatalf("sent %d chunks, want 4", chunks)
	}
	if elapsed < 3*50*time.Millisecond || elapsed >= 3*3*50*time.Millisecond {
		t.Errorf("stream took %v, want between 150ms and 450ms", elapsed)
	}
}

func TestStreamNotRealtime(t *testing.T) {
	src, err := NewSource(PCM16kMono, 8192, false)
	if err != nil {
		t.Fatal(err)
	}
	clock := &MockClock{}
	src.Clock = clock

	content := make([]byte, 32000)
	calls := 0
	err = src.Stream(context.Background(), content, func(chunk []byte) error {
		calls++
		if len(chunk) != len(content) {
			t.Errorf("chunk has %d bytes, want %d", len(chunk), len(content))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
	if len(clock.sleeps) != 0 {
		t.Errorf("slept %d times in non-realtime mode", len(clock.sleeps))
	}
}

func TestStreamStopsOnError(t *testing.T) {
	src, _ := NewSource(PCM16kMono, 100, true)
	src.Clock = &MockClock{}
	boom := errors.New("boom")

	calls := 0
	err := src.Stream(context.Background(), make([]byte, 1000), func([]byte) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if calls != 2 {
		t.Errorf("fn called %d times, want 2", calls)
	}
}

func TestStreamCancelled(t *testing.T) {
	src, _ := NewSource(PCM16kMono, 100, true)
	src.Clock = &MockClock{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := src.Stream(ctx, make([]byte, 1000), func([]byte) error {
		t.Error("fn called after cancel")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewSourceRejectsFormats(t *testing.T) {
	tests := []struct {
		name   string
		format Format
	}{
		{"8-bit", Format{SampleRate: 16000, SampleWidth: 1, Channels: 1}},
		{"24-bit", Format{SampleRate: 16000, SampleWidth: 3, Channels: 1}},
		{"zero rate", Format{SampleRate: 0, SampleWidth: 2, Channels: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSource(tt.format, 8192, true); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestWAVRoundTrip(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x10, 0x20}, 500)
	encoded := EncodeWAV(pcm, PCM16kMono)
	if len(encoded) != 44+len(pcm) {
		t.Fatalf("encoded %d bytes, want %d", len(encoded), 44+len(pcm))
	}

	data, format, err := ReadWAV(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if format != PCM16kMono {
		t.Errorf("format = %+v, want %+v", format, PCM16kMono)
	}
	if !bytes.Equal(data, pcm) {
		t.Error("PCM did not round-trip")
	}
}

func TestReadWAVSkipsUnknownChunks(t *testing.T) {
	pcm := []byte{1, 0, 2, 0}
	encoded := EncodeWAV(pcm, PCM16kMono)

	// splice a LIST chunk with an odd size between fmt and data
	list := []byte("LIST")
	list = binary.LittleEndian.AppendUint32(list, 3)
	list = append(list, 'a', 'b', 'c', 0)
	spliced := append([]byte{}, encoded[:36]...)
	spliced = append(spliced, list...)
	spliced = append(spliced, encoded[36:]...)

	data, _, err := ReadWAV(bytes.NewReader(spliced))
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if !bytes.Equal(data, pcm) {
		t.Errorf("data = %v, want %v", data, pcm)
	}
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	_, _, err := ReadWAV(bytes.NewReader([]byte("definitely not a wav file")))
	if !errors.Is(err, ErrUnsupportedWAV) {
		t.Errorf("err = %v, want ErrUnsupportedWAV", err)
	}
}

func TestLeadingSilence(t *testing.T) {
	silent := make([]byte, PCM16kMono.BytesPerSecond()/2)
	loud := make([]byte, PCM16kMono.BytesPerSecond()/4)
	for i := 0; i < len(loud); i += 2 {
		binary.LittleEndian.PutUint16(loud[i:], uint16(int16(8000)))
	}

	got := LeadingSilence(append(silent, loud...), PCM16kMono, DefaultSilenceThreshold)
	if got != 500*time.Millisecond {
		t.Errorf("LeadingSilence = %v, want 500ms", got)
	}

	if got := LeadingSilence(silent, PCM16kMono, DefaultSilenceThreshold); got != 500*time.Millisecond {
		t.Errorf("all-silent LeadingSilence = %v, want 500ms", got)
	}
	if got := LeadingSilence(loud, PCM16kMono, DefaultSilenceThreshold); got != 0 {
		t.Errorf("LeadingSilence of speech = %v, want 0", got)
	}
}
