package bench

import (
	"context"
	"fmt"

	"node.town/asrbench/report"
)

type FolderResult struct {
	Folder     string
	FileType   string
	Files      []string
	Evaluation *Evaluation
	Latencies  []report.Latency
}

// Run works through every data folder: transcription, evaluation and
// latency evaluation, each as enabled in the settings.
func (r *Runner) Run(ctx context.Context) ([]FolderResult, error) {
	s := r.Settings
	r.Logger.Info("benchmark", "run", r.RunID, "systems", s.ASRSystems, "folders", s.DataFolders)

	var results []FolderResult
	for _, folder := range s.DataFolders {
		files, fileType, err := SpeechFiles(folder, s.SpeechFileType, s.MaxDataFiles)
		if err != nil {
			return results, err
		}
		r.Logger.Info("working on data folder", "folder", folder, "type", fileType, "files", len(files))
		res := FolderResult{Folder: folder, FileType: fileType, Files: files}

		if s.Transcribe {
			if err := r.TranscribeFiles(ctx, files); err != nil {
				return results, fmt.Errorf("transcribe %s: %w", folder, err)
			}
		}
		if s.EvaluateTranscriptions {
			ev, err := r.Evaluate(ctx, files)
			if err != nil {
				return results, fmt.Errorf("evaluate %s: %w", folder, err)
			}
			res.Evaluation = &ev
		}
		if s.EvaluateLatency {
			if res.Latencies, err = r.EvaluateLatency(ctx, files); err != nil {
				return results, fmt.Errorf("evaluate latency %s: %w", folder, err)
			}
		}
		results = append(results, res)
	}
	return results, nil
}
