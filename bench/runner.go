package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"node.town/asrbench/audio"
	"node.town/asrbench/config"
	"node.town/asrbench/report"
	"node.town/asrbench/stt"
)

// Recorder persists what a run produces. The database store is one.
type Recorder interface {
	RecordTranscription(ctx context.Context, runID uuid.UUID, file string, out stt.Outcome) error
	RecordScores(ctx context.Context, runID uuid.UUID, rows []report.Row) error
	RecordLatencies(ctx context.Context, runID uuid.UUID, rows []report.Latency) error
}

type Runner struct {
	Settings  config.Settings
	Registry  *stt.Registry
	Converter Converter
	Recorder  Recorder
	RunID     uuid.UUID
	OutDir    string
	Clock     audio.Clock
	Logger    *log.Logger
	Offsets   *SilenceOffsets
}

func NewRunner(settings config.Settings, registry *stt.Registry, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Runner{
		Settings:  settings,
		Registry:  registry,
		Converter: FFmpeg{},
		RunID:     uuid.New(),
		OutDir:    ".",
		Clock:     audio.SystemClock{},
		Logger:    logger,
		Offsets:   NewSilenceOffsets(audio.DefaultSilenceThreshold),
	}
}

// cached reports whether the transcript at textPath can be reused under
// the overwrite settings.
func (r *Runner) cached(textPath string) (bool, error) {
	ok, err := exists(textPath)
	if err != nil || !ok {
		return false, err
	}
	existing, err := readText(textPath, r.Settings.PredictedEncoding)
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(existing) == "" {
		return !r.Settings.OverwriteEmpty, nil
	}
	return !r.Settings.OverwriteNonEmpty, nil
}

func (r *Runner) save(speechPath string, out stt.Outcome) error {
	_, textPath, jsonPath := Artifacts(speechPath, out.System)
	if err := writeText(textPath, r.Settings.PredictedEncoding, out.Transcript); err != nil {
		return err
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return err
	}
	return writeText(jsonPath, r.Settings.PredictedEncoding, string(data))
}

// TranscribeFile runs every system on one speech file. It reports
// whether all of them were skipped because of cached transcripts. A
// provider failure is saved as an unreachable outcome and does not
// stop the benchmark.
func (r *Runner) TranscribeFile(ctx context.Context, path string) (bool, error) {
	logger := r.Logger.With("file", path)
	var pcm []byte
	skipped := true

	for _, system := range r.Settings.ASRSystems {
		_, textPath, _ := Artifacts(path, system)
		hit, err := r.cached(textPath)
		if err != nil {
			return false, err
		}
		if hit {
			logger.Debug("skipping cached transcript", "system", system)
			continue
		}
		skipped = false

		if pcm == nil {
			if pcm, err = LoadAudio(ctx, path, r.Converter); err != nil {
				return false, err
			}
		}

		out, err := r.Registry.Transcribe(ctx, system, stt.Input{
			PCM:      pcm,
			Format:   audio.PCM16kMono,
			Language: r.Settings.SpeechLanguage,
			Realtime: r.Settings.Realtime,
		})
		if errors.Is(err, stt.ErrUnknownSystem) || ctx.Err() != nil {
			return false, err
		}
		if err != nil {
			logger.Warn("asr could not be reached", "system", system, "error", err)
		} else {
			logger.Info("transcribed", "system", system, "elapsed", fmt.Sprintf("%.3fs", out.Elapsed))
		}

		if err := r.save(path, out); err != nil {
			return false, err
		}
		if r.Recorder != nil {
			if err := r.Recorder.RecordTranscription(ctx, r.RunID, path, out); err != nil {
				logger.Error("failed to record transcription", "error", err)
			}
		}
	}
	return skipped, nil
}

// TranscribeFiles transcribes files with at most Settings.Parallelism in
// flight, pausing Settings.Delay after each file that reached a provider.
func (r *Runner) TranscribeFiles(ctx context.Context, files []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.Settings.Parallelism, 1))

	var mu sync.Mutex
	done := 0
	for _, path := range files {
		path := path
		g.Go(func() error {
			skipped, err := r.TranscribeFile(gctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			mu.Lock()
			done++
			r.Logger.Info("progress", "done", done, "total", len(files))
			mu.Unlock()
			if !skipped && r.Settings.Delay > 0 {
				return r.Clock.Sleep(gctx, r.Settings.Delay)
			}
			return nil
		})
	}
	return g.Wait()
}
