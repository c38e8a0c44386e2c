package gate

import (
	"math"
	"regexp"
	"strings"
	"sync"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestDecide_PatternStages(t *testing.T) {
	g := New()
	cases := []struct {
		query      string
		use        bool
		confidence float64
		stage      Stage
	}{
		{"According to the document, what is the policy?", true, 0.9, StageDocumentPattern},
		{"Which section covers refunds", true, 0.9, StageDocumentPattern},
		{"what does the contract say about termination", true, 0.9, StageDocumentPattern},
		{"Please extract the totals from the invoice", true, 0.9, StageDocumentPattern},
		{"Hello, how are you?", false, 0.8, StageConversationalPattern},
		{"thanks a lot", false, 0.8, StageConversationalPattern},
		{"What can you do for me", false, 0.8, StageConversationalPattern},
		{"what is RAG", false, 0.8, StageConversationalPattern},
	}
	for _, c := range cases {
		d := g.Evaluate(c.query)
		if d.UseRetrieval != c.use || !approx(d.Confidence, c.confidence) || d.Stage != c.stage {
			t.Errorf("Evaluate(%q) = (%v, %.2f, %s), want (%v, %.2f, %s)",
				c.query, d.UseRetrieval, d.Confidence, d.Stage, c.use, c.confidence, c.stage)
		}
	}
}

func TestDecide_DocumentPatternWinsOverConversational(t *testing.T) {
	// "thank" is conversational, but the document reference is evaluated first.
	d := New().Evaluate("thank you, now what is mentioned in the pdf")
	if !d.UseRetrieval || d.Stage != StageDocumentPattern {
		t.Fatalf("expected document pattern to win, got %+v", d)
	}
}

func TestDecide_GreetingIsAnchored(t *testing.T) {
	d := New().Evaluate("so i said hello to them")
	if d.Stage == StageConversationalPattern {
		t.Fatalf("greeting pattern must only match at the start: %+v", d)
	}
}

func TestDecide_HeuristicArithmetic(t *testing.T) {
	g := New()
	query := "what colour were the old lighthouse keepers boats painted yesterday"
	if n := len(strings.Fields(query)); n != 10 {
		t.Fatalf("fixture must have 10 words, has %d", n)
	}
	use, confidence := g.Decide(query)
	if !approx(confidence, 0.9) || !use {
		t.Fatalf("Decide = (%v, %v), want (true, 0.9)", use, confidence)
	}
	if d := g.Evaluate(query); d.Stage != StageHeuristic {
		t.Fatalf("expected heuristic stage, got %s", d.Stage)
	}

	// No question word, 5 words: 0.5 + 0.2*0.25 = 0.55.
	use, confidence = g.Decide("lighthouse keepers painted boats yesterday")
	if !approx(confidence, 0.55) || use {
		t.Fatalf("Decide = (%v, %v), want (false, 0.55)", use, confidence)
	}
}

func TestHeuristic_LengthFactorCaps(t *testing.T) {
	long := strings.Repeat("word ", 40)
	if got := Heuristic(long); !approx(got, 0.7) {
		t.Fatalf("Heuristic(40 words) = %v, want 0.7", got)
	}
	if got := Heuristic(""); !approx(got, 0.5) {
		t.Fatalf("Heuristic(empty) = %v, want 0.5", got)
	}
}

func TestDecide_ThresholdIsConfigurable(t *testing.T) {
	query := "lighthouse keepers painted boats yesterday" // 0.55
	if use, _ := New(WithThreshold(0.5)).Decide(query); !use {
		t.Fatalf("expected retrieval with threshold 0.5")
	}
	if use, _ := New(WithThreshold(0.6)).Decide(query); use {
		t.Fatalf("expected no retrieval with threshold 0.6")
	}
}

func TestDecide_Deterministic(t *testing.T) {
	g := New()
	queries := []string{"Hello there", "which chapter introduces the villain", "why is the sky blue", ""}
	for _, q := range queries {
		u1, c1 := g.Decide(q)
		u2, c2 := g.Decide(q)
		if u1 != u2 || c1 != c2 || g.Explain(q) != g.Explain(q) {
			t.Fatalf("non-deterministic decision for %q", q)
		}
	}
}

func TestDecide_ConcurrentUse(t *testing.T) {
	g := New()
	want := g.Evaluate("According to the document, what is the policy?")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := g.Evaluate("According to the document, what is the policy?"); got != want {
					t.Errorf("concurrent decision differs: %+v", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestDisabled(t *testing.T) {
	g := New(Disabled())
	for _, q := range []string{"Hello, how are you?", "thanks", "", "According to the document?"} {
		use, confidence := g.Decide(q)
		if !use || confidence != 1.0 {
			t.Fatalf("disabled gate Decide(%q) = (%v, %v), want (true, 1.0)", q, use, confidence)
		}
		if !strings.Contains(g.Explain(q), "disabled") {
			t.Fatalf("disabled explanation missing: %q", g.Explain(q))
		}
	}
}

func TestExplain_Bands(t *testing.T) {
	cases := []struct {
		query     string
		threshold float64
		want      string
	}{
		{"According to the document, what is the policy?", 0.7, "Using retrieval (confidence: 0.90): Query strongly suggests document-specific information is needed."},
		{"Hello, how are you?", 0.7, "Skipping retrieval (confidence: 0.80): Query can likely be answered without document context."},
		// 20 words, no question word: 0.70.
		{strings.Repeat("token ", 20), 0.65, "Using retrieval (confidence: 0.70): Query likely requires document context."},
	}
	for _, c := range cases {
		if got := New(WithThreshold(c.threshold)).Explain(c.query); got != c.want {
			t.Errorf("Explain(%q) = %q, want %q", c.query, got, c.want)
		}
	}
}

func TestWithRules_FirstMatchWins(t *testing.T) {
	rules := []Rule{
		{Name: "first", Stage: StageConversationalPattern, Pattern: regexp.MustCompile(`(?i)policy`), UseRetrieval: false, Confidence: 0.8},
		documentRule("second", `policy`),
	}
	d := New(WithRules(rules)).Evaluate("what is the policy")
	if d.Rule != "first" || d.UseRetrieval {
		t.Fatalf("expected first rule to win, got %+v", d)
	}
}
