package speechmatics

import (
	"encoding/json"
	"fmt"
	"strings"
)

type TranscriptResult struct {
	Alternatives []struct {
		Confidence float64 `json:"confidence"`
		Content    string  `json:"content"`
		Speaker    string  `json:"speaker,omitempty"`
	} `json:"alternatives"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Type      string  `json:"type"`
	IsEOS     bool    `json:"is_eos,omitempty"`
}

type Sentence struct {
	StartTime float64
	EndTime   float64
	Speaker   string
	Content   string
}

type Transcript struct {
	Sentences []Sentence
}

// Text joins all sentences with single spaces.
func (t *Transcript) Text() string {
	parts := make([]string, 0, len(t.Sentences))
	for _, s := range t.Sentences {
		if s.Content != "" {
			parts = append(parts, s.Content)
		}
	}
	return strings.Join(parts, " ")
}

// ParseTranscript groups the words of a json-v2 transcript into
// sentences, splitting at end-of-sentence markers and at ". ! ?".
func ParseTranscript(jsonData []byte) (*Transcript, error) {
	var rawTranscript struct {
		Results []TranscriptResult `json:"results"`
	}
	if err := json.Unmarshal(jsonData, &rawTranscript); err != nil {
		return nil, fmt.Errorf("error parsing JSON: %w", err)
	}
	return &Transcript{Sentences: sentences(rawTranscript.Results)}, nil
}

func sentences(results []TranscriptResult) []Sentence {
	var out []Sentence
	var current Sentence
	started := false

	for _, result := range results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]

		if !started {
			current.StartTime = result.StartTime
			current.Speaker = alt.Speaker
			started = true
		}

		if result.Type == "punctuation" {
			current.Content += alt.Content
		} else {
			if len(current.Content) > 0 && !strings.HasSuffix(current.Content, " ") {
				current.Content += " "
			}
			current.Content += alt.Content
		}
		current.EndTime = result.EndTime

		if result.IsEOS ||
			(result.Type == "punctuation" && (alt.Content == "." || alt.Content == "!" || alt.Content == "?")) {
			current.Content = strings.TrimSpace(current.Content)
			out = append(out, current)
			current = Sentence{}
			started = false
		}
	}

	if started && strings.TrimSpace(current.Content) != "" {
		current.Content = strings.TrimSpace(current.Content)
		out = append(out, current)
	}
	return out
}
