package transcript

import (
	"testing"
)

func alt(text string) []Alternative {
	return []Alternative{{Text: text, Confidence: 0.9}}
}

func TestAssembler(t *testing.T) {
	t.Run("Partials Excluded", func(t *testing.T) {
		a := NewAssembler()
		a.Add(Event{IsPartial: true, Alternatives: alt("hel"), Latency: 0.4})
		a.Add(Event{IsPartial: false, Alternatives: alt("hello"), Latency: 0.9})
		a.Add(Event{IsPartial: false, Alternatives: alt("world"), Latency: 1.3})

		r := a.Result()
		if r.Transcript != "hello world" {
			t.Errorf("Transcript = %q, want %q", r.Transcript, "hello world")
		}
		if r.FirstLatency != 0.4 {
			t.Errorf("FirstLatency = %v, want 0.4", r.FirstLatency)
		}
		if len(r.Events) != 3 {
			t.Errorf("got %d events, want 3", len(r.Events))
		}
	})

	t.Run("No Events", func(t *testing.T) {
		r := NewAssembler().Result()
		if r.Transcript != "" {
			t.Errorf("Transcript = %q, want empty", r.Transcript)
		}
		if r.FirstLatency != -1 {
			t.Errorf("FirstLatency = %v, want -1", r.FirstLatency)
		}
	})

	t.Run("Empty Alternatives Do Not Count", func(t *testing.T) {
		a := NewAssembler()
		a.Add(Event{IsPartial: true, Latency: 0.1})
		a.Add(Event{IsPartial: true, Alternatives: alt("  "), Latency: 0.2})
		a.Add(Event{IsPartial: false, Alternatives: alt(" good morning "), Latency: 0.7})

		r := a.Result()
		if r.FirstLatency != 0.7 {
			t.Errorf("FirstLatency = %v, want 0.7", r.FirstLatency)
		}
		if r.Transcript != "good morning" {
			t.Errorf("Transcript = %q", r.Transcript)
		}
	})

	t.Run("Result Is A Snapshot", func(t *testing.T) {
		a := NewAssembler()
		a.Add(Event{Alternatives: alt("one")})
		r := a.Result()
		a.Add(Event{Alternatives: alt("two")})
		if len(r.Events) != 1 {
			t.Errorf("earlier result changed to %d events", len(r.Events))
		}
	})
}

func TestTop(t *testing.T) {
	if _, ok := (Event{}).Top(); ok {
		t.Error("Top of an event without alternatives reported ok")
	}
	ev := Event{Alternatives: []Alternative{{Text: "a"}, {Text: "b"}}}
	if top, ok := ev.Top(); !ok || top.Text != "a" {
		t.Errorf("Top = %q, %v", top.Text, ok)
	}
}

func TestCorrectLatency(t *testing.T) {
	events := []Event{
		{IsPartial: true, Alternatives: alt("the"), Latency: 0.3},
		{IsPartial: true, Alternatives: alt("Hello there"), Latency: 0.6},
		{IsPartial: false, Alternatives: alt("hello there friend"), Latency: 1.1},
	}
	tests := []struct {
		reference string
		want      float64
	}{
		{"hello there friend", 0.6},
		{"HELLO", 0.6},
		{"The cat", 0.3},
		{"goodbye", -1},
		{"", -1},
	}
	for _, tt := range tests {
		if got := CorrectLatency(events, tt.reference); got != tt.want {
			t.Errorf("CorrectLatency(%q) = %v, want %v", tt.reference, got, tt.want)
		}
	}
	if got := CorrectLatency(nil, "hello"); got != -1 {
		t.Errorf("CorrectLatency(nil) = %v, want -1", got)
	}
}
