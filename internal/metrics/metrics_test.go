package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Counters(t *testing.T) {
	c := New()
	c.ObserveGate(true, "document_pattern")
	c.ObserveGate(true, "document_pattern")
	c.ObserveGate(false, "conversational_pattern")
	c.GenerationFailed("timeout")
	c.AddIngested(7)

	if got := testutil.ToFloat64(c.gateDecisions.WithLabelValues("retrieve", "document_pattern")); got != 2 {
		t.Fatalf("retrieve decisions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.gateDecisions.WithLabelValues("direct", "conversational_pattern")); got != 1 {
		t.Fatalf("direct decisions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.generationFailures.WithLabelValues("timeout")); got != 1 {
		t.Fatalf("timeout failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ingestedChunks); got != 7 {
		t.Fatalf("ingested = %v, want 7", got)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveGate(true, "heuristic")
	c.ObserveRetrieval("balanced", 3)
	c.ObserveGeneration("grounded", time.Second)
	c.GenerationFailed("error")
	c.AddIngested(1)
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.ObserveRetrieval("filtered", 4)
	c.ObserveGeneration("direct", 250*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"docmind_retrieved_chunks", "docmind_generation_duration_seconds"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in exposition output", name)
		}
	}
}
