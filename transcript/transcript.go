// Package transcript holds recognition events and assembles them into a
// final transcript with latency measurements.
package transcript

import (
	"strings"
)

type Alternative struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Event is one hypothesis as decoded from a provider message. Latency is
// the number of seconds between the session opening and its arrival.
type Event struct {
	IsPartial    bool          `json:"is_partial"`
	StartTime    float64       `json:"start_time"`
	EndTime      float64       `json:"end_time"`
	Alternatives []Alternative `json:"alternatives"`
	Latency      float64       `json:"latency"`
}

// Top returns the provider's preferred alternative, if there is one.
func (e Event) Top() (Alternative, bool) {
	if len(e.Alternatives) == 0 {
		return Alternative{}, false
	}
	return e.Alternatives[0], true
}

func (e Event) hasText() bool {
	for _, alt := range e.Alternatives {
		if strings.TrimSpace(alt.Text) != "" {
			return true
		}
	}
	return false
}

type Result struct {
	Transcript   string  `json:"transcript"`
	FirstLatency float64 `json:"first_latency"`
	Events       []Event `json:"events"`
}

// Assembler accumulates events in arrival order. It has a single writer,
// the session's receiver, and is read once the session is over.
type Assembler struct {
	events       []Event
	firstLatency float64
}

func NewAssembler() *Assembler {
	return &Assembler{firstLatency: -1}
}

func (a *Assembler) Add(ev Event) {
	a.events = append(a.events, ev)
	if a.firstLatency < 0 && ev.hasText() {
		a.firstLatency = ev.Latency
	}
}

func (a *Assembler) Len() int {
	return len(a.events)
}

// Result joins the top alternative of every final event.
func (a *Assembler) Result() Result {
	var parts []string
	for _, ev := range a.events {
		if ev.IsPartial {
			continue
		}
		top, ok := ev.Top()
		if !ok {
			continue
		}
		if text := strings.TrimSpace(top.Text); text != "" {
			parts = append(parts, text)
		}
	}
	events := make([]Event, len(a.events))
	copy(events, a.events)
	return Result{
		Transcript:   strings.TrimSpace(strings.Join(parts, " ")),
		FirstLatency: a.firstLatency,
		Events:       events,
	}
}

// CorrectLatency is the latency of the first event whose top alternative
// starts with the same word as reference, ignoring case. It returns -1
// when no event matches.
func CorrectLatency(events []Event, reference string) float64 {
	want, ok := firstWord(reference)
	if !ok {
		return -1
	}
	for _, ev := range events {
		top, ok := ev.Top()
		if !ok {
			continue
		}
		if got, ok := firstWord(top.Text); ok && strings.EqualFold(got, want) {
			return ev.Latency
		}
	}
	return -1
}

func firstWord(s string) (string, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}
