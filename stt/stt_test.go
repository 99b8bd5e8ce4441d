package stt

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"node.town/asrbench/audio"
	"node.town/asrbench/stream"
	"node.town/asrbench/transcript"
)

type mockStreaming struct {
	result transcript.Result
	err    error
	got    []byte
}

func (m *mockStreaming) Name() string { return "mocklive" }

func (m *mockStreaming) TranscribeStreaming(ctx context.Context, pcm []byte, realtime bool) (transcript.Result, error) {
	m.got = pcm
	return m.result, m.err
}

type mockBatch struct {
	got      []byte
	language string
}

func (m *mockBatch) Name() string { return "mockbatch" }

func (m *mockBatch) TranscribeBatch(ctx context.Context, wav []byte, language string) (string, []byte, error) {
	m.got = wav
	m.language = language
	return "batch text", []byte(`{"ok":true}`), nil
}

type MockTimeProvider struct {
	times []time.Time
}

func (m *MockTimeProvider) Now() time.Time {
	t := m.times[0]
	if len(m.times) > 1 {
		m.times = m.times[1:]
	}
	return t
}

func newTestRegistry(s *mockStreaming, b *mockBatch) *Registry {
	r := NewRegistry()
	t0 := time.Unix(100, 0)
	clock := &MockTimeProvider{times: []time.Time{t0, t0.Add(1500 * time.Millisecond)}}
	r.now = clock.Now
	r.AddStreaming(s)
	r.AddBatch(b)
	return r
}

func TestTranscribeStreaming(t *testing.T) {
	s := &mockStreaming{result: transcript.Result{Transcript: "hello", FirstLatency: 0.3}}
	r := newTestRegistry(s, &mockBatch{})

	out, err := r.Transcribe(context.Background(), "mocklive", Input{PCM: []byte{1, 2}, Format: audio.PCM16kMono})
	if err != nil {
		t.Fatal(err)
	}
	if out.Transcript != "hello" || out.Result == nil || out.Result.FirstLatency != 0.3 {
		t.Errorf("outcome = %+v", out)
	}
	if out.Elapsed != 1.5 {
		t.Errorf("Elapsed = %v, want 1.5", out.Elapsed)
	}
	if !bytes.Equal(s.got, []byte{1, 2}) {
		t.Errorf("backend got %v", s.got)
	}
	if !strings.Contains(string(out.Raw), `"first_latency":0.3`) {
		t.Errorf("Raw = %s", out.Raw)
	}
}

func TestTranscribeStreamingFailureKeepsPartial(t *testing.T) {
	partial := transcript.Result{Transcript: "half", FirstLatency: 0.2}
	s := &mockStreaming{
		result: partial,
		err:    &stream.Error{Kind: stream.ErrTransport, State: stream.Open, Partial: partial},
	}
	r := newTestRegistry(s, &mockBatch{})

	out, err := r.Transcribe(context.Background(), "mocklive", Input{Format: audio.PCM16kMono})
	if !errors.Is(err, stream.ErrTransport) {
		t.Fatalf("err = %v", err)
	}
	if !out.Unreachable || out.Transcript != "half" || out.Error == "" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestTranscribeBatch(t *testing.T) {
	b := &mockBatch{}
	r := newTestRegistry(&mockStreaming{}, b)

	out, err := r.Transcribe(context.Background(), "mockbatch", Input{PCM: []byte{1, 0}, Format: audio.PCM16kMono, Language: "en-US"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Transcript != "batch text" || string(out.Raw) != `{"ok":true}` {
		t.Errorf("outcome = %+v", out)
	}
	if !bytes.HasPrefix(b.got, []byte("RIFF")) || len(b.got) != 46 {
		t.Errorf("backend did not get a WAV file: %d bytes", len(b.got))
	}
	if b.language != "en-US" {
		t.Errorf("language = %q", b.language)
	}
}

func TestUnknownSystem(t *testing.T) {
	r := newTestRegistry(&mockStreaming{}, &mockBatch{})
	if _, err := r.Transcribe(context.Background(), "nope", Input{}); !errors.Is(err, ErrUnknownSystem) {
		t.Errorf("err = %v", err)
	}
	if got := strings.Join(r.Names(), ","); got != "mockbatch,mocklive" {
		t.Errorf("Names = %s", got)
	}
}
