// Package stt names the two ways a provider can transcribe a recording
// and keeps the configured providers by system name.
package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"node.town/asrbench/audio"
	"node.town/asrbench/stream"
	"node.town/asrbench/transcript"
)

// StreamingBackend transcribes raw 16-bit PCM over a live session.
type StreamingBackend interface {
	Name() string
	TranscribeStreaming(ctx context.Context, pcm []byte, realtime bool) (transcript.Result, error)
}

// BatchBackend posts a whole WAV file and parses one response.
type BatchBackend interface {
	Name() string
	TranscribeBatch(ctx context.Context, wav []byte, language string) (text string, raw []byte, err error)
}

var ErrUnknownSystem = errors.New("unknown asr system")

type Input struct {
	PCM      []byte
	Format   audio.Format
	Language string
	Realtime bool
}

// Outcome is one transcription attempt. Result is set for streaming
// systems, including the partial result of a failed session.
type Outcome struct {
	System      string             `json:"system"`
	Transcript  string             `json:"transcription"`
	Raw         json.RawMessage    `json:"transcription_json,omitempty"`
	Result      *transcript.Result `json:"streaming_result,omitempty"`
	Started     time.Time          `json:"asr_timestamp_started"`
	Ended       time.Time          `json:"asr_timestamp_ended"`
	Elapsed     float64            `json:"asr_time_elapsed"`
	Unreachable bool               `json:"asr_could_not_be_reached"`
	Error       string             `json:"error,omitempty"`
}

type Registry struct {
	streaming map[string]StreamingBackend
	batch     map[string]BatchBackend
	now       func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		streaming: make(map[string]StreamingBackend),
		batch:     make(map[string]BatchBackend),
		now:       time.Now,
	}
}

func (r *Registry) AddStreaming(b StreamingBackend) {
	r.streaming[b.Name()] = b
}

func (r *Registry) AddBatch(b BatchBackend) {
	r.batch[b.Name()] = b
}

func (r *Registry) Streaming(name string) (StreamingBackend, bool) {
	b, ok := r.streaming[name]
	return b, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.streaming)+len(r.batch))
	for name := range r.streaming {
		names = append(names, name)
	}
	for name := range r.batch {
		if _, dup := r.streaming[name]; !dup {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Transcribe runs in on the named system. A provider failure is recorded
// in the outcome, which is returned alongside the error.
func (r *Registry) Transcribe(ctx context.Context, system string, in Input) (Outcome, error) {
	out := Outcome{System: system, Started: r.now()}
	var err error

	if b, ok := r.streaming[system]; ok {
		var result transcript.Result
		result, err = b.TranscribeStreaming(ctx, in.PCM, in.Realtime)
		if err != nil {
			if partial, ok := stream.PartialResult(err); ok {
				result = partial
			}
		}
		out.Transcript = result.Transcript
		out.Result = &result
		if raw, merr := json.Marshal(result); merr == nil {
			out.Raw = raw
		}
	} else if b, ok := r.batch[system]; ok {
		var raw []byte
		out.Transcript, raw, err = b.TranscribeBatch(ctx, audio.EncodeWAV(in.PCM, in.Format), in.Language)
		if json.Valid(raw) {
			out.Raw = raw
		} else if len(raw) > 0 {
			out.Raw, _ = json.Marshal(string(raw))
		}
	} else {
		return out, fmt.Errorf("%w: %s", ErrUnknownSystem, system)
	}

	out.Ended = r.now()
	out.Elapsed = out.Ended.Sub(out.Started).Seconds()
	if err != nil {
		out.Unreachable = true
		out.Error = err.Error()
		return out, fmt.Errorf("%s: %w", system, err)
	}
	return out, nil
}
