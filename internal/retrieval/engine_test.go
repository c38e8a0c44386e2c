package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"docmind/internal/domain"
	"docmind/internal/embedding/tfidf"
	"docmind/internal/store"
)

func seed(counts map[string]int, order ...string) *store.Store {
	s := store.New()
	for _, src := range order {
		for i := 0; i < counts[src]; i++ {
			s.Insert(domain.Chunk{Content: fmt.Sprintf("%s%d", src, i), Source: src, ChunkIndex: i})
		}
	}
	return s
}

func contents(chunks []domain.Chunk) string {
	parts := make([]string, len(chunks))
	for i, ch := range chunks {
		parts[i] = ch.Content
	}
	return strings.Join(parts, " ")
}

func TestSearch_EdgeCases(t *testing.T) {
	ctx := context.Background()
	empty := NewEngine(Config{Store: store.New()})
	if res, err := empty.Search(ctx, "q", 4, ""); err != nil || len(res) != 0 {
		t.Fatalf("empty store: got %d results, err %v", len(res), err)
	}
	if res, err := empty.Search(ctx, "q", 4, "a"); err != nil || len(res) != 0 {
		t.Fatalf("empty store with filter: got %d results, err %v", len(res), err)
	}

	e := NewEngine(Config{Store: seed(map[string]int{"a": 3}, "a")})
	if res, err := e.Search(ctx, "q", 0, ""); err != nil || len(res) != 0 {
		t.Fatalf("k=0: got %d results, err %v", len(res), err)
	}
	if res, err := e.Search(ctx, "q", 3, "missing.pdf"); err != nil || len(res) != 0 {
		t.Fatalf("unknown filter: got %d results, err %v", len(res), err)
	}
	if _, err := e.Search(ctx, "q", -1, ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("negative k: expected ErrInvalidArgument, got %v", err)
	}
}

func TestSearch_FilterScopesResults(t *testing.T) {
	e := NewEngine(Config{Store: seed(map[string]int{"a": 3, "b": 5}, "a", "b")})
	for k := 0; k <= 7; k++ {
		res, err := e.Search(context.Background(), "q", k, "b")
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(res) != min(k, 5) {
			t.Fatalf("k=%d: got %d results", k, len(res))
		}
		for _, ch := range res {
			if ch.Source != "b" {
				t.Fatalf("k=%d: result from %q leaked through filter", k, ch.Source)
			}
		}
	}
}

func TestSearch_Balanced(t *testing.T) {
	cases := []struct {
		name   string
		counts map[string]int
		order  []string
		k      int
		want   string
	}{
		{"even split", map[string]int{"a": 3, "b": 3, "c": 3}, []string{"a", "b", "c"}, 6, "a0 a1 b0 b1 c0 c1"},
		{"remainder round robin", map[string]int{"a": 3, "b": 3, "c": 3}, []string{"a", "b", "c"}, 4, "a0 b0 c0 a1"},
		{"short source redistributes", map[string]int{"a": 1, "b": 5}, []string{"a", "b"}, 4, "a0 b0 b1 b2"},
		{"more sources than k", map[string]int{"a": 2, "b": 2, "c": 2}, []string{"a", "b", "c"}, 2, "a0 b0"},
		{"k above total", map[string]int{"a": 1, "b": 2}, []string{"a", "b"}, 10, "a0 b0 b1"},
		{"fair second pass", map[string]int{"a": 4, "b": 1, "c": 4}, []string{"a", "b", "c"}, 7, "a0 a1 b0 c0 c1 a2 c2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEngine(Config{Store: seed(tc.counts, tc.order...)})
			res, err := e.Search(context.Background(), "q", tc.k, "")
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if got := contents(res); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSearch_BalancedCoversEverySource(t *testing.T) {
	e := NewEngine(Config{Store: seed(map[string]int{"a": 10, "b": 2, "c": 2}, "a", "b", "c")})
	res, err := e.Search(context.Background(), "q", 6, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	seen := map[string]int{}
	for _, ch := range res {
		seen[ch.Source]++
	}
	for _, src := range []string{"a", "b", "c"} {
		if seen[src] == 0 {
			t.Fatalf("source %s starved: %v", src, seen)
		}
	}
	if len(res) > 6 {
		t.Fatalf("returned %d results for k=6", len(res))
	}
}

func TestLexicalRanker_PrefersOverlap(t *testing.T) {
	s := store.New()
	s.Insert(
		domain.Chunk{Content: "Shipping takes five days.", Source: "faq"},
		domain.Chunk{Content: "Refunds are issued within thirty days of purchase.", Source: "faq"},
		domain.Chunk{Content: "Our office is closed on Sundays.", Source: "faq"},
	)
	e := NewEngine(Config{Store: s, Ranker: LexicalRanker{}})
	res, err := e.Search(context.Background(), "when are refunds issued", 1, "faq")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || !strings.HasPrefix(res[0].Content, "Refunds") {
		t.Fatalf("unexpected top result %q", contents(res))
	}
}

// keywordEmbedder maps text onto counts of a fixed keyword list.
type keywordEmbedder struct {
	mu       sync.Mutex
	keywords []string
	calls    int
	err      error
}

func (k *keywordEmbedder) Name() string { return "keyword" }

func (k *keywordEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls++
	if k.err != nil {
		return nil, k.err
	}
	lower := strings.ToLower(text)
	v := make([]float64, len(k.keywords))
	for i, kw := range k.keywords {
		v[i] = float64(strings.Count(lower, kw))
	}
	return v, nil
}

func TestEmbeddingRanker_NearestFirstAndCached(t *testing.T) {
	emb := &keywordEmbedder{keywords: []string{"refund", "shipping"}}
	r, err := NewEmbeddingRanker(emb, 16)
	if err != nil {
		t.Fatalf("NewEmbeddingRanker: %v", err)
	}
	candidates := []domain.Chunk{
		{Content: "shipping shipping", Source: "a"},
		{Content: "refund", Source: "a"},
		{Content: "refund again", Source: "a"},
	}
	res, err := r.Rank(context.Background(), "refund", candidates)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	got := []string{res[0].Chunk.Content, res[1].Chunk.Content, res[2].Chunk.Content}
	want := []string{"refund", "refund again", "shipping shipping"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v (ties keep insertion order)", got, want)
	}
	if emb.calls != 4 {
		t.Fatalf("expected 4 embed calls, got %d", emb.calls)
	}
	if _, err := r.Rank(context.Background(), "shipping", candidates); err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if emb.calls != 5 {
		t.Fatalf("expected chunk vectors to be cached, got %d calls", emb.calls)
	}
}

func TestEmbeddingRanker_TFIDF(t *testing.T) {
	r, err := NewEmbeddingRanker(tfidf.NewEmbedder(), 0)
	if err != nil {
		t.Fatalf("NewEmbeddingRanker: %v", err)
	}
	s := store.New()
	s.Insert(
		domain.Chunk{Content: "The warranty covers manufacturing defects for two years.", Source: "manual.pdf"},
		domain.Chunk{Content: "Battery replacement requires a certified technician.", Source: "manual.pdf"},
	)
	e := NewEngine(Config{Store: s, Ranker: r})
	res, err := e.Search(context.Background(), "battery technician", 1, "manual.pdf")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || !strings.HasPrefix(res[0].Content, "Battery") {
		t.Fatalf("unexpected result %q", contents(res))
	}
}

func TestFallbackRanker(t *testing.T) {
	emb := &keywordEmbedder{err: errors.New("service down")}
	primary, err := NewEmbeddingRanker(emb, 4)
	if err != nil {
		t.Fatalf("NewEmbeddingRanker: %v", err)
	}
	e := NewEngine(Config{
		Store:  seed(map[string]int{"a": 2, "b": 2}, "a", "b"),
		Ranker: NewFallbackRanker(primary, OrderRanker{}, nil),
	})
	res, err := e.Search(context.Background(), "q", 4, "")
	if err != nil {
		t.Fatalf("expected graceful degradation, got %v", err)
	}
	if got := contents(res); got != "a0 a1 b0 b1" {
		t.Fatalf("fallback order = %q", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Search(ctx, "q", 4, ""); !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("cancelled search: expected ErrTimeout, got %v", err)
	}
}

func TestEmbeddingRanker_ZeroVectorsAreDegenerate(t *testing.T) {
	emb := &keywordEmbedder{keywords: []string{"refund", "shipping"}}
	r, err := NewEmbeddingRanker(emb, 8)
	if err != nil {
		t.Fatalf("NewEmbeddingRanker: %v", err)
	}
	candidates := []domain.Chunk{
		{Content: "shipping takes five days", Source: "faq"},
		{Content: "refund within thirty days", Source: "faq"},
	}
	if _, err := r.Rank(context.Background(), "office hours", candidates); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("zero query vector: expected ErrDegenerate, got %v", err)
	}
	blank := []domain.Chunk{{Content: "office hours"}, {Content: "closed on sundays"}}
	if _, err := r.Rank(context.Background(), "refund", blank); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("zero chunk vectors: expected ErrDegenerate, got %v", err)
	}
}

func TestEmbeddingRanker_ZeroChunkRanksLast(t *testing.T) {
	emb := &keywordEmbedder{keywords: []string{"refund", "shipping"}}
	r, err := NewEmbeddingRanker(emb, 8)
	if err != nil {
		t.Fatalf("NewEmbeddingRanker: %v", err)
	}
	candidates := []domain.Chunk{
		{Content: "the and of", Source: "faq"},
		{Content: "shipping shipping shipping", Source: "faq"},
		{Content: "refund", Source: "faq"},
	}
	res, err := r.Rank(context.Background(), "refund", candidates)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if last := res[len(res)-1]; last.Chunk.Content != "the and of" || last.Score != 0 {
		t.Fatalf("expected the zero-vector chunk last with score 0, got %+v", last)
	}
	if res[0].Chunk.Content != "refund" {
		t.Fatalf("top result = %q", res[0].Chunk.Content)
	}
}

func TestFallbackRanker_DegenerateTFIDFUsesLexical(t *testing.T) {
	primary, err := NewEmbeddingRanker(tfidf.NewEmbedder(), 0)
	if err != nil {
		t.Fatalf("NewEmbeddingRanker: %v", err)
	}
	s := store.New()
	s.Insert(
		domain.Chunk{Content: "Battery replacement requires a certified technician.", Source: "manual.pdf"},
		domain.Chunk{Content: "The warranty is in the box.", Source: "manual.pdf"},
	)
	e := NewEngine(Config{Store: s, Ranker: NewFallbackRanker(primary, LexicalRanker{}, nil)})
	// No query word is in the TF-IDF vocabulary, so only word overlap can rank.
	res, err := e.Search(context.Background(), "what is in the", 1, "manual.pdf")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || !strings.HasPrefix(res[0].Content, "The warranty") {
		t.Fatalf("expected the lexical match first, got %q", contents(res))
	}
}
