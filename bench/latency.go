package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"node.town/asrbench/audio"
	"node.town/asrbench/report"
	"node.town/asrbench/stt"
	"node.town/asrbench/transcript"
	"node.town/asrbench/wer"
)

// SilenceOffsets caches the leading silence of speech files, keyed by
// path. It is owned by the caller and safe for concurrent use.
type SilenceOffsets struct {
	Threshold float64

	mu      sync.Mutex
	offsets map[string]float64
}

func NewSilenceOffsets(threshold float64) *SilenceOffsets {
	return &SilenceOffsets{Threshold: threshold, offsets: make(map[string]float64)}
}

// Offset returns the leading silence of path in seconds, loading the
// audio on first use.
func (s *SilenceOffsets) Offset(ctx context.Context, path string, conv Converter) (float64, error) {
	s.mu.Lock()
	v, ok := s.offsets[path]
	s.mu.Unlock()
	if ok {
		return v, nil
	}

	pcm, err := LoadAudio(ctx, path, conv)
	if err != nil {
		return 0, err
	}
	v = audio.LeadingSilence(pcm, audio.PCM16kMono, s.Threshold).Seconds()

	s.mu.Lock()
	s.offsets[path] = v
	s.mu.Unlock()
	return v, nil
}

// Set records a known offset, skipping the audio scan.
func (s *SilenceOffsets) Set(path string, seconds float64) {
	s.mu.Lock()
	s.offsets[path] = seconds
	s.mu.Unlock()
}

// CorrectLatency is transcript.CorrectLatency with the events and the
// gold transcript normalized for scoring first.
func CorrectLatency(events []transcript.Event, gold string) float64 {
	return transcript.CorrectLatency(normalizedEvents(events), wer.Normalize(gold))
}

func normalizedEvents(events []transcript.Event) []transcript.Event {
	out := make([]transcript.Event, len(events))
	for i, ev := range events {
		out[i] = ev
		if top, ok := ev.Top(); ok {
			top.Text = wer.Normalize(top.Text)
			out[i].Alternatives = []transcript.Alternative{top}
		}
	}
	return out
}

// EvaluateLatency reads the cached outcomes of the streaming systems and
// returns their first and correct latencies with the leading silence of
// each file. Files without a streaming outcome are skipped.
func (r *Runner) EvaluateLatency(ctx context.Context, files []string) ([]report.Latency, error) {
	var rows []report.Latency
	for _, system := range r.Settings.ASRSystems {
		if _, ok := r.Registry.Streaming(system); !ok {
			continue
		}
		for _, path := range files {
			_, _, jsonPath := Artifacts(path, system)
			ok, err := exists(jsonPath)
			if err != nil {
				return nil, err
			}
			if !ok {
				r.Logger.Debug("no cached outcome", "file", path, "system", system)
				continue
			}
			data, err := readText(jsonPath, r.Settings.PredictedEncoding)
			if err != nil {
				return nil, err
			}
			var out stt.Outcome
			if err := json.Unmarshal([]byte(data), &out); err != nil {
				return nil, fmt.Errorf("%s: %w", jsonPath, err)
			}
			if out.Result == nil {
				continue
			}

			row := report.Latency{
				File:           path,
				System:         system,
				FirstLatency:   out.Result.FirstLatency,
				CorrectLatency: -1,
			}
			_, goldPath, _ := Artifacts(path, GoldSystem)
			if gold, err := readText(goldPath, r.Settings.GoldEncoding); err == nil {
				row.CorrectLatency = CorrectLatency(out.Result.Events, gold)
			}
			if row.SilenceOffset, err = r.Offsets.Offset(ctx, path, r.Converter); err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}

	if r.Recorder != nil && len(rows) > 0 {
		if err := r.Recorder.RecordLatencies(ctx, r.RunID, rows); err != nil {
			r.Logger.Error("failed to record latencies", "error", err)
		}
	}
	return rows, nil
}
