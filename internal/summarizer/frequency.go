// Package summarizer produces extractive summaries of ingested documents.
package summarizer

import (
	"math"
	"sort"
	"strings"

	"docmind/internal/textutil"
)

// DefaultMaxSentences is used when Summarize is asked for zero or fewer sentences.
const DefaultMaxSentences = 3

// FrequencySummarizer ranks sentences by normalised content-word frequency.
type FrequencySummarizer struct{}

func NewFrequencySummarizer() *FrequencySummarizer { return &FrequencySummarizer{} }

// Summarize picks the maxSentences highest scoring sentences and returns them
// in document order.
func (FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	sentences := textutil.Sentences(text)
	if len(sentences) <= maxSentences {
		return strings.Join(sentences, " "), nil
	}

	freq := termFrequencies(sentences)
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		tokens := textutil.Tokens(sent)
		s := 0.0
		for _, tok := range tokens {
			s += freq[tok]
		}
		// Length normalisation keeps long sentences from dominating.
		if l := float64(len(tokens)); l > 0 {
			s /= math.Sqrt(l)
		}
		scores[i] = scored{i, s}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

// Keywords returns the n most frequent content words of text, most frequent first.
func Keywords(text string, n int) []string {
	counts := map[string]int{}
	var order []string
	for _, tok := range textutil.ContentTokens(text) {
		if len([]rune(tok)) < 3 {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if n > len(order) {
		n = len(order)
	}
	return order[:n]
}

func termFrequencies(sentences []string) map[string]float64 {
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range textutil.ContentTokens(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	return freq
}
