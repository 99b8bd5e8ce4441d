package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"node.town/asrbench/bench"
	"node.town/asrbench/db"
	"node.town/asrbench/report"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the benchmark described by the settings file",
	Long: `Transcribe every speech file of the configured data folders with every
configured system, then score the transcripts and latencies as enabled in the
settings. Transcripts are cached next to the audio as <base>_<system>.txt/.json.`,
	Run: runBench,
}

func init() {
	benchCmd.Flags().String("out", ".", "Directory for the summary CSV and transcript lists")
	benchCmd.Flags().Bool("confirm-migrations", false, "Ask before applying database migrations")
}

func runBench(cmd *cobra.Command, args []string) {
	mainLogger := logger.With().WithPrefix("main")
	s := settings()
	outDir, _ := cmd.Flags().GetString("out")
	confirmMigrations, _ := cmd.Flags().GetBool("confirm-migrations")

	ctx, cancel := signalContext()
	defer cancel()

	registry, release, err := buildRegistry(ctx, s, hooks{})
	if err != nil {
		mainLogger.Fatal("configure systems", "error", err)
	}
	defer release()

	runner := bench.NewRunner(s, registry, logger.With().WithPrefix("bench"))
	runner.OutDir = outDir

	if s.DatabaseURL != "" {
		var confirm db.Confirm
		if confirmMigrations {
			confirm = confirmMigration
		}
		store, err := db.Open(ctx, s.DatabaseURL, confirm, logger.With().WithPrefix("data"))
		if err != nil {
			mainLogger.Fatal("open database", "error", err)
		}
		defer store.Close()

		runID, err := store.StartRun(ctx, s.ExpName, s.ASRSystems)
		if err != nil {
			mainLogger.Fatal("start run", "error", err)
		}
		runner.RunID = runID
		runner.Recorder = store
		defer func() {
			if err := store.FinishRun(context.Background(), runID); err != nil {
				mainLogger.Error("finish run", "error", err)
			}
		}()
	}

	results, err := runner.Run(ctx)
	for _, res := range results {
		fmt.Printf("\n%s (%d %s files)\n", res.Folder, len(res.Files), res.FileType)
		if res.Evaluation != nil {
			report.WriteSummaryTable(os.Stdout, res.Evaluation.Summaries)
		}
		if len(res.Latencies) > 0 {
			fmt.Println()
			report.WriteLatencyTable(os.Stdout, res.Latencies)
		}
	}
	if err != nil {
		mainLogger.Error("benchmark failed", "error", err)
		os.Exit(1)
	}
}

func confirmMigration(m db.Migration) (bool, error) {
	var confirm bool
	err := huh.NewConfirm().
		Title(fmt.Sprintf("New migration found: %s", m.ID)).
		Description(m.Description).
		Value(&confirm).
		Run()
	return confirm, err
}
