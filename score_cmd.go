package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"node.town/asrbench/report"
	"node.town/asrbench/wer"
)

var scoreCmd = &cobra.Command{
	Use:   "score <gold.txt> <hypothesis.txt>",
	Short: "Word error rate of a hypothesis against a gold transcript",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		gold, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		hyp, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		writeScore(cmd.OutOrStdout(), args[1], string(gold), string(hyp))
		return nil
	},
}

func writeScore(w io.Writer, name, gold, hyp string) wer.EditStats {
	stats := wer.Score(gold, hyp)
	sum := report.Summary{System: name}
	sum.Add(report.Row{Stats: stats})
	report.WriteSummaryTable(w, []report.Summary{sum})
	fmt.Fprintf(w, "corrects: %d, changes: %d\n", stats.Corrects, stats.Changes)
	return stats
}
