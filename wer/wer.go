// Package wer scores a hypothesis transcript against a gold transcript
// with a word-level edit distance.
package wer

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// EditStats counts the word edits that turn a reference into a
// hypothesis. Changes is Substitutions+Insertions+Deletions.
type EditStats struct {
	Corrects      int `json:"corrects"`
	Substitutions int `json:"substitutions"`
	Insertions    int `json:"insertions"`
	Deletions     int `json:"deletions"`
	Changes       int `json:"changes"`
	Reference     int `json:"reference"`
}

// Rate is Changes over the reference length. An empty reference scores 0
// against an empty hypothesis and 1 otherwise.
func (s EditStats) Rate() float64 {
	if s.Reference == 0 {
		if s.Changes == 0 {
			return 0
		}
		return 1
	}
	return float64(s.Changes) / float64(s.Reference)
}

// Add accumulates o into s.
func (s EditStats) Add(o EditStats) EditStats {
	return EditStats{
		Corrects:      s.Corrects + o.Corrects,
		Substitutions: s.Substitutions + o.Substitutions,
		Insertions:    s.Insertions + o.Insertions,
		Deletions:     s.Deletions + o.Deletions,
		Changes:       s.Changes + o.Changes,
		Reference:     s.Reference + o.Reference,
	}
}

var lower = cases.Lower(language.Und)

// Normalize folds text to lower case, drops punctuation and symbols and
// collapses whitespace. Hyphens and slashes separate words.
func Normalize(text string) string {
	t := transform.Chain(
		norm.NFKC,
		runes.Map(func(r rune) rune {
			if r == '-' || r == '/' || r == '_' {
				return ' '
			}
			return r
		}),
		runes.Remove(runes.Predicate(func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})),
	)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	return strings.Join(strings.Fields(lower.String(out)), " ")
}

// Words splits normalized text into words.
func Words(text string) []string {
	return strings.Fields(Normalize(text))
}

type op uint8

const (
	opNone op = iota
	opCorrect
	opSub
	opIns
	opDel
)

// Distance aligns hyp against ref with unit costs and counts each edit
// on one minimal path. Ties prefer a match or substitution, then a
// deletion, then an insertion.
func Distance(ref, hyp []string) EditStats {
	n, m := len(ref), len(hyp)
	cost := make([][]int, n+1)
	back := make([][]op, n+1)
	for i := range cost {
		cost[i] = make([]int, m+1)
		back[i] = make([]op, m+1)
		cost[i][0] = i
		if i > 0 {
			back[i][0] = opDel
		}
	}
	for j := 1; j <= m; j++ {
		cost[0][j] = j
		back[0][j] = opIns
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			best, how := cost[i-1][j-1], opCorrect
			if ref[i-1] != hyp[j-1] {
				best, how = best+1, opSub
			}
			if c := cost[i-1][j] + 1; c < best {
				best, how = c, opDel
			}
			if c := cost[i][j-1] + 1; c < best {
				best, how = c, opIns
			}
			cost[i][j] = best
			back[i][j] = how
		}
	}

	stats := EditStats{Reference: n}
	for i, j := n, m; i > 0 || j > 0; {
		switch back[i][j] {
		case opCorrect:
			stats.Corrects++
			i, j = i-1, j-1
		case opSub:
			stats.Substitutions++
			i, j = i-1, j-1
		case opDel:
			stats.Deletions++
			i--
		case opIns:
			stats.Insertions++
			j--
		}
	}
	stats.Changes = stats.Substitutions + stats.Insertions + stats.Deletions
	return stats
}

// Score normalizes both transcripts and returns their edit statistics.
func Score(gold, hyp string) EditStats {
	return Distance(Words(gold), Words(hyp))
}
