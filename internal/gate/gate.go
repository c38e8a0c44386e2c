// Package gate decides per query whether answering needs document context.
//
// The gate is a pure function of the query and its configuration: an ordered
// rule list is evaluated first-match-wins, and queries no rule claims are
// scored by a question-word and length heuristic against a threshold.
package gate

import (
	"fmt"
	"strings"
)

// DefaultThreshold is the heuristic cutoff used when none is configured.
const DefaultThreshold = 0.7

var questionWords = map[string]struct{}{
	"what": {}, "who": {}, "where": {}, "when": {}, "why": {},
	"how": {}, "which": {}, "can": {}, "does": {}, "do": {},
}

// Decision is the outcome of evaluating one query.
type Decision struct {
	UseRetrieval bool
	Confidence   float64
	Stage        Stage
	// Rule is the name of the matching rule; empty for heuristic and disabled decisions.
	Rule      string
	Rationale string
}

// Gate is safe for concurrent use; it holds no mutable state.
type Gate struct {
	enabled   bool
	threshold float64
	rules     []Rule
}

type Option func(*Gate)

// WithThreshold sets the heuristic confidence cutoff.
func WithThreshold(t float64) Option { return func(g *Gate) { g.threshold = t } }

// WithRules replaces the default rule list.
func WithRules(rules []Rule) Option { return func(g *Gate) { g.rules = rules } }

// Disabled turns adaptive gating off: every query uses retrieval.
func Disabled() Option { return func(g *Gate) { g.enabled = false } }

func New(opts ...Option) *Gate {
	g := &Gate{enabled: true, threshold: DefaultThreshold, rules: DefaultRules}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Enabled reports whether adaptive gating is active.
func (g *Gate) Enabled() bool { return g.enabled }

// Threshold returns the heuristic cutoff.
func (g *Gate) Threshold() float64 { return g.threshold }

// Decide classifies query and returns whether to retrieve and with what confidence.
func (g *Gate) Decide(query string) (bool, float64) {
	d := g.Evaluate(query)
	return d.UseRetrieval, d.Confidence
}

// Explain returns the rationale for the decision Decide makes on query.
func (g *Gate) Explain(query string) string {
	return g.Evaluate(query).Rationale
}

// Evaluate runs the full evaluation and returns the decision with its rationale.
func (g *Gate) Evaluate(query string) Decision {
	if !g.enabled {
		return Decision{
			UseRetrieval: true,
			Confidence:   1.0,
			Stage:        StageDisabled,
			Rationale:    "Adaptive retrieval disabled (confidence: 1.00): retrieval is always used.",
		}
	}
	for _, r := range g.rules {
		if r.Match(query) {
			return withRationale(Decision{UseRetrieval: r.UseRetrieval, Confidence: r.Confidence, Stage: r.Stage, Rule: r.Name})
		}
	}
	confidence := Heuristic(query)
	return withRationale(Decision{
		UseRetrieval: confidence >= g.threshold,
		Confidence:   confidence,
		Stage:        StageHeuristic,
	})
}

// Heuristic scores a query that no rule matched:
// 0.5, plus 0.3 if it contains a question word, plus 0.2 scaled by length up to 20 words.
func Heuristic(query string) float64 {
	words := strings.Fields(strings.ToLower(query))
	hasQuestionWord := false
	for _, w := range words {
		if _, ok := questionWords[w]; ok {
			hasQuestionWord = true
			break
		}
	}
	bonus := 0.0
	if hasQuestionWord {
		bonus = 0.3
	}
	lengthFactor := min(float64(len(words))/20.0, 1.0)
	return 0.5 + bonus + 0.2*lengthFactor
}

func withRationale(d Decision) Decision {
	switch {
	case d.UseRetrieval && d.Confidence > 0.8:
		d.Rationale = fmt.Sprintf("Using retrieval (confidence: %.2f): Query strongly suggests document-specific information is needed.", d.Confidence)
	case d.UseRetrieval:
		d.Rationale = fmt.Sprintf("Using retrieval (confidence: %.2f): Query likely requires document context.", d.Confidence)
	default:
		d.Rationale = fmt.Sprintf("Skipping retrieval (confidence: %.2f): Query can likely be answered without document context.", d.Confidence)
	}
	return d
}
