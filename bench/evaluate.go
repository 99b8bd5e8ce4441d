package bench

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"node.town/asrbench/report"
	"node.town/asrbench/wer"
)

// Evaluation is the scoring of every system over one data folder.
type Evaluation struct {
	Rows      []report.Row
	Summaries []report.Summary
}

func (r *Runner) outPath(name string) string {
	return filepath.Join(r.OutDir, name)
}

// Evaluate scores the cached transcripts of files against their gold
// transcripts (<base>_gold.txt). It writes the normalized transcripts,
// one line per file, to all_predicted_transcriptions_<system>.txt and
// all_gold_transcriptions.txt, and every row to <exp_name>_summary.csv.
// A missing transcript scores as empty.
func (r *Runner) Evaluate(ctx context.Context, files []string) (Evaluation, error) {
	var ev Evaluation
	s := r.Settings

	golds := make([]string, len(files))
	var goldLines bytes.Buffer
	for i, path := range files {
		_, goldPath, _ := Artifacts(path, GoldSystem)
		gold, err := readText(goldPath, s.GoldEncoding)
		if err != nil {
			return ev, fmt.Errorf("gold transcript: %w", err)
		}
		golds[i] = wer.Normalize(gold)
		fmt.Fprintln(&goldLines, golds[i])
	}
	if err := writeText(r.outPath("all_gold_transcriptions.txt"), s.GoldEncoding, goldLines.String()); err != nil {
		return ev, err
	}

	for _, system := range s.ASRSystems {
		sum := report.Summary{System: system}
		var lines bytes.Buffer

		for i, path := range files {
			_, textPath, _ := Artifacts(path, system)
			predicted := ""
			ok, err := exists(textPath)
			if err != nil {
				return ev, err
			}
			if !ok {
				sum.Missing++
			} else {
				text, err := readText(textPath, s.PredictedEncoding)
				if err != nil {
					return ev, err
				}
				predicted = strings.TrimSpace(text)
				if predicted == "" {
					sum.Empty++
				}
			}
			predicted = wer.Normalize(predicted)
			fmt.Fprintln(&lines, predicted)

			row := report.Row{
				File:       path,
				Gold:       golds[i],
				Service:    system,
				Transcript: predicted,
				Stats:      wer.Distance(strings.Fields(golds[i]), strings.Fields(predicted)),
			}
			sum.Add(row)
			ev.Rows = append(ev.Rows, row)
		}

		name := fmt.Sprintf("all_predicted_transcriptions_%s.txt", system)
		if err := writeText(r.outPath(name), s.PredictedEncoding, lines.String()); err != nil {
			return ev, err
		}
		r.Logger.Info("evaluated",
			"system", system,
			"wer", fmt.Sprintf("%.5f%%", sum.Stats.Rate()*100),
			"deletions", sum.Stats.Deletions,
			"insertions", sum.Stats.Insertions,
			"substitutions", sum.Stats.Substitutions,
			"gold_tokens", sum.Stats.Reference,
			"files", sum.Files,
			"missing", sum.Missing,
			"empty", sum.Empty,
		)
		ev.Summaries = append(ev.Summaries, sum)
	}

	f, err := os.Create(r.outPath(s.ExpName + "_summary.csv"))
	if err != nil {
		return ev, err
	}
	if err := report.WriteCSV(f, ev.Rows); err != nil {
		f.Close()
		return ev, err
	}
	if err := f.Close(); err != nil {
		return ev, err
	}

	if r.Recorder != nil {
		if err := r.Recorder.RecordScores(ctx, r.RunID, ev.Rows); err != nil {
			r.Logger.Error("failed to record scores", "error", err)
		}
	}
	return ev, nil
}
