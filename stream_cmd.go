package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"node.town/asrbench/audio"
	"node.town/asrbench/bench"
	"node.town/asrbench/config"
	"node.town/asrbench/stream"
	"node.town/asrbench/stt"
	"node.town/asrbench/transcript"
	"node.town/asrbench/tui"
	"node.town/asrbench/wer"
)

var streamCmd = &cobra.Command{
	Use:   "stream <audio>",
	Short: "Stream one recording to a live transcription service",
	Long: `Stream a recording to a streaming system, paced like a live microphone unless
--realtime=false, and print the transcript with its latencies.`,
	Args: cobra.ExactArgs(1),
	Run:  runStream,
}

var batchCmd = &cobra.Command{
	Use:   "batch <audio>",
	Short: "Transcribe one recording with any configured system",
	Args:  cobra.ExactArgs(1),
	Run:   runBatch,
}

func init() {
	streamCmd.Flags().String("system", "awslive", "Streaming system")
	streamCmd.Flags().Bool("tui", false, "Show the session live in the terminal")
	streamCmd.Flags().String("gold", "", "Gold transcript file for correct latency and WER")
	streamCmd.Flags().Bool("json", false, "Print the full result as JSON")

	batchCmd.Flags().String("system", "speechmatics", "System name")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runStream(cmd *cobra.Command, args []string) {
	mainLogger := logger.With().WithPrefix("main")
	s := settings()
	system, _ := cmd.Flags().GetString("system")
	useTUI, _ := cmd.Flags().GetBool("tui")
	goldPath, _ := cmd.Flags().GetString("gold")
	asJSON, _ := cmd.Flags().GetBool("json")

	ctx, cancel := signalContext()
	defer cancel()

	pcm, err := bench.LoadAudio(ctx, args[0], bench.FFmpeg{})
	if err != nil {
		mainLogger.Fatal("load audio", "error", err)
	}
	mainLogger.Info("loaded audio", "file", args[0], "duration", audio.PCM16kMono.Duration(len(pcm)))

	var result transcript.Result
	if useTUI {
		result, err = tui.Run(ctx, system, func(ctx context.Context, h tui.Hooks) (transcript.Result, error) {
			backend, err := streamingBackend(system, s, hooks{observe: h.Observe, onState: h.OnState})
			if err != nil {
				return transcript.Result{FirstLatency: -1}, err
			}
			return backend.TranscribeStreaming(ctx, pcm, s.Realtime)
		}, tea.WithAltScreen())
	} else {
		observe := func(ev transcript.Event) {
			if top, ok := ev.Top(); ok {
				mainLogger.Debug("event", "partial", ev.IsPartial, "latency", ev.Latency, "text", top.Text)
			}
		}
		onState := func(st stream.State) {
			mainLogger.Debug("session", "state", st)
		}
		var backend stt.StreamingBackend
		backend, err = streamingBackend(system, s, hooks{observe: observe, onState: onState})
		if err != nil {
			mainLogger.Fatal("configure backend", "system", system, "error", err)
		}
		result, err = backend.TranscribeStreaming(ctx, pcm, s.Realtime)
	}

	if err != nil {
		var serr *stream.Error
		if errors.As(err, &serr) {
			mainLogger.Error("session failed", "state", serr.State, "kind", serr.Kind, "error", serr.Err)
		} else {
			mainLogger.Error("session failed", "error", err)
		}
		if partial, ok := stream.PartialResult(err); ok {
			result = partial
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(result)
	} else {
		fmt.Println(result.Transcript)
	}

	fields := []interface{}{"events", len(result.Events), "first_latency", result.FirstLatency}
	if goldPath != "" {
		gold, rerr := os.ReadFile(goldPath)
		if rerr != nil {
			mainLogger.Fatal("read gold transcript", "error", rerr)
		}
		stats := wer.Score(string(gold), result.Transcript)
		fields = append(fields,
			"correct_latency", bench.CorrectLatency(result.Events, string(gold)),
			"wer", fmt.Sprintf("%.2f%%", stats.Rate()*100),
		)
	}
	mainLogger.Info("result", fields...)

	if err != nil {
		os.Exit(1)
	}
}

func streamingBackend(system string, s config.Settings, h hooks) (stt.StreamingBackend, error) {
	b, ok, err := newStreaming(system, s, h)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a streaming system (known: %s)",
			stt.ErrUnknownSystem, system, strings.Join(knownSystems(), ", "))
	}
	return b, nil
}

func runBatch(cmd *cobra.Command, args []string) {
	mainLogger := logger.With().WithPrefix("main")
	s := settings()
	system, _ := cmd.Flags().GetString("system")
	s.ASRSystems = []string{system}

	ctx, cancel := signalContext()
	defer cancel()

	registry, release, err := buildRegistry(ctx, s, hooks{})
	if err != nil {
		mainLogger.Fatal("configure backend", "system", system, "error", err)
	}
	defer release()

	pcm, err := bench.LoadAudio(ctx, args[0], bench.FFmpeg{})
	if err != nil {
		mainLogger.Fatal("load audio", "error", err)
	}

	out, err := registry.Transcribe(ctx, system, stt.Input{
		PCM:      pcm,
		Format:   audio.PCM16kMono,
		Language: s.SpeechLanguage,
		Realtime: s.Realtime,
	})
	if err != nil {
		mainLogger.Error("transcription failed", "error", err)
	}
	fmt.Println(out.Transcript)
	mainLogger.Info("done", "system", system, "elapsed", fmt.Sprintf("%.3fs", out.Elapsed))
	if err != nil {
		os.Exit(1)
	}
}
