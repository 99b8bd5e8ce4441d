// Package report writes benchmark results as CSV and terminal tables.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"node.town/asrbench/wer"
)

// Row is one file scored for one system.
type Row struct {
	File       string
	Gold       string
	Service    string
	Transcript string
	Stats      wer.EditStats
}

var csvHeader = []string{
	"file", "gold", "len", "service", "transcript",
	"wer", "changes", "corrects", "subs", "ins", "dels",
}

// WriteCSV writes rows under the summary header.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.File,
			r.Gold,
			strconv.Itoa(r.Stats.Reference),
			r.Service,
			r.Transcript,
			strconv.FormatFloat(r.Stats.Rate(), 'f', -1, 64),
			strconv.Itoa(r.Stats.Changes),
			strconv.Itoa(r.Stats.Corrects),
			strconv.Itoa(r.Stats.Substitutions),
			strconv.Itoa(r.Stats.Insertions),
			strconv.Itoa(r.Stats.Deletions),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary totals one system over a data folder.
type Summary struct {
	System  string
	Files   int
	Missing int
	Empty   int
	Stats   wer.EditStats
}

func (s *Summary) Add(r Row) {
	s.Files++
	s.Stats = s.Stats.Add(r.Stats)
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	return table
}

// WriteSummaryTable renders one line per system.
func WriteSummaryTable(w io.Writer, summaries []Summary) {
	table := newTable(w, []string{
		"System", "WER", "Deletions", "Insertions", "Substitutions",
		"Gold tokens", "Files", "Missing", "Empty",
	})
	for _, s := range summaries {
		table.Append([]string{
			s.System,
			fmt.Sprintf("%.5f%%", s.Stats.Rate()*100),
			strconv.Itoa(s.Stats.Deletions),
			strconv.Itoa(s.Stats.Insertions),
			strconv.Itoa(s.Stats.Substitutions),
			strconv.Itoa(s.Stats.Reference),
			strconv.Itoa(s.Files),
			strconv.Itoa(s.Missing),
			strconv.Itoa(s.Empty),
		})
	}
	table.Render()
}

// Latency is the latency of one file on one streaming system. Negative
// values mean no matching event was seen.
type Latency struct {
	File           string
	System         string
	FirstLatency   float64
	CorrectLatency float64
	SilenceOffset  float64
}

func seconds(v float64) string {
	if v < 0 {
		return "-"
	}
	return fmt.Sprintf("%.3f s", v)
}

// adjusted subtracts the leading silence from a latency.
func adjusted(latency, offset float64) float64 {
	if latency < 0 {
		return latency
	}
	return max(latency-offset, 0)
}

// WriteLatencyTable renders the latencies together with their values
// after the leading silence of the recording is removed.
func WriteLatencyTable(w io.Writer, rows []Latency) {
	table := newTable(w, []string{
		"File", "System", "First", "Correct", "Silence",
		"First (adj)", "Correct (adj)",
	})
	for _, r := range rows {
		table.Append([]string{
			r.File,
			r.System,
			seconds(r.FirstLatency),
			seconds(r.CorrectLatency),
			seconds(r.SilenceOffset),
			seconds(adjusted(r.FirstLatency, r.SilenceOffset)),
			seconds(adjusted(r.CorrectLatency, r.SilenceOffset)),
		})
	}
	table.Render()
}
