package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"node.town/asrbench/transcript"
)

type Span struct {
	Content string
	Style   lipgloss.Style
}

type Line struct {
	Spans     []Span
	StartTime float64
}

// TranscriptBuilder lays out final events one per line, followed by the
// latest partial hypothesis in gray.
type TranscriptBuilder struct {
	lines   []Line
	partial *Line
}

func NewTranscriptBuilder() *TranscriptBuilder {
	return &TranscriptBuilder{}
}

func (tb *TranscriptBuilder) Add(ev transcript.Event) {
	top, ok := ev.Top()
	if !ok || strings.TrimSpace(top.Text) == "" {
		if !ev.IsPartial {
			tb.partial = nil
		}
		return
	}

	style := lipgloss.NewStyle()
	if ev.IsPartial {
		style = style.Foreground(lipgloss.Color("240"))
	} else {
		style = style.Foreground(getConfidenceColor(top.Confidence))
	}

	line := Line{StartTime: ev.StartTime}
	for i, word := range strings.Fields(top.Text) {
		if i > 0 {
			line.Spans = append(line.Spans, Span{Content: " ", Style: lipgloss.NewStyle()})
		}
		line.Spans = append(line.Spans, Span{Content: word, Style: style})
	}

	if ev.IsPartial {
		tb.partial = &line
		return
	}
	tb.lines = append(tb.lines, line)
	tb.partial = nil
}

func (tb *TranscriptBuilder) GetLines() []Line {
	lines := tb.lines
	if tb.partial != nil {
		lines = append(lines[:len(lines):len(lines)], *tb.partial)
	}
	return lines
}

func (tb *TranscriptBuilder) RenderLines() string {
	var result strings.Builder
	for _, line := range tb.GetLines() {
		result.WriteString(fmt.Sprintf("(%s) ", clock(line.StartTime)))
		for _, span := range line.Spans {
			result.WriteString(span.Style.Render(span.Content))
		}
		result.WriteString("\n")
	}
	return result.String()
}

// clock formats an audio offset as mm:ss.s.
func clock(seconds float64) string {
	minutes := int(seconds) / 60
	return fmt.Sprintf("%02d:%04.1f", minutes, seconds-float64(minutes*60))
}

func getConfidenceColor(confidence float64) lipgloss.Color {
	switch {
	case confidence >= 0.9:
		return lipgloss.Color("#FFFFFF")
	case confidence >= 0.8:
		return lipgloss.Color("#FFFF00")
	default:
		return lipgloss.Color("#FF0000")
	}
}
