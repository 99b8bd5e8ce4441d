package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"node.town/asrbench/db"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded benchmark runs in a table",
	Run:   runListRuns,
}

func init() {
	runsCmd.Flags().Int32("limit", 20, "Number of runs to show")
}

func runListRuns(cmd *cobra.Command, args []string) {
	mainLogger := logger.With().WithPrefix("main")
	s := settings()
	limit, _ := cmd.Flags().GetInt32("limit")
	if s.DatabaseURL == "" {
		mainLogger.Fatal("no database configured", "hint", "set DATABASE_URL or --database-url")
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := db.Open(ctx, s.DatabaseURL, nil, logger.With().WithPrefix("data"))
	if err != nil {
		mainLogger.Fatal("open database", "error", err)
	}
	defer store.Close()

	runs, err := store.Queries.ListRuns(ctx, limit)
	if err != nil {
		mainLogger.Fatal("fetch runs", "error", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Started At", "Experiment", "Systems", "Duration", "Scores", "WER"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, run := range runs {
		duration := "running"
		if run.FinishedAt.Valid {
			duration = run.FinishedAt.Time.Sub(run.StartedAt).Round(time.Second).String()
		}
		table.Append([]string{
			run.ID.String()[:8],
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.ExpName,
			strings.Join(run.Systems, ","),
			duration,
			fmt.Sprintf("%d", run.Scores),
			fmt.Sprintf("%.2f%%", run.WER()*100),
		})
	}

	table.Render()
}
