package retrieval

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"docmind/internal/domain"
	"docmind/internal/textutil"
)

// Ranker orders candidate chunks by relevance to a query. Implementations
// must be stable: equally relevant chunks keep their input order.
type Ranker interface {
	Name() string
	Rank(ctx context.Context, query string, candidates []domain.Chunk) ([]domain.SearchResult, error)
}

// OrderRanker keeps insertion order. It is the fallback when no embedding
// service is available and the deterministic ranker for tests.
type OrderRanker struct{}

func (OrderRanker) Name() string { return "order" }

func (OrderRanker) Rank(_ context.Context, _ string, candidates []domain.Chunk) ([]domain.SearchResult, error) {
	out := make([]domain.SearchResult, len(candidates))
	for i, ch := range candidates {
		out[i] = domain.SearchResult{Chunk: ch, Score: 1 / float64(i+1)}
	}
	return out, nil
}

// LexicalRanker scores chunks by token overlap with the query using the
// Ochiai coefficient |A∩B| / sqrt(|A||B|).
type LexicalRanker struct{}

func (LexicalRanker) Name() string { return "lexical" }

func (LexicalRanker) Rank(_ context.Context, query string, candidates []domain.Chunk) ([]domain.SearchResult, error) {
	qset := textutil.TokenSet(query)
	out := make([]domain.SearchResult, len(candidates))
	for i, ch := range candidates {
		out[i] = domain.SearchResult{Chunk: ch, Score: ochiai(qset, textutil.TokenSet(ch.Content))}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range b {
		if _, ok := a[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}

// ErrDegenerate is returned by EmbeddingRanker when the query vector, or every
// chunk vector, is zero and distances carry no signal.
var ErrDegenerate = errors.New("degenerate embeddings")

// EmbeddingRanker ranks by Euclidean distance between the query embedding and
// each chunk embedding, nearest first. Score is 1/(1+distance); chunks whose
// vector is zero score 0 and rank last.
type EmbeddingRanker struct {
	embedder domain.Embedder
	cache    *lru.Cache[string, []float64]
	// prepMu serialises prepare+embed for corpus-dependent embedders.
	prepMu sync.Mutex
}

// NewEmbeddingRanker wraps an embedder. Chunk vectors from embedders that do
// not need corpus preparation are cached in an LRU of cacheSize entries.
func NewEmbeddingRanker(embedder domain.Embedder, cacheSize int) (*EmbeddingRanker, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedding ranker needs an embedder", domain.ErrConfiguration)
	}
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, []float64](cacheSize)
	if err != nil {
		return nil, err
	}
	return &EmbeddingRanker{embedder: embedder, cache: cache}, nil
}

func (r *EmbeddingRanker) Name() string { return "embedding/" + r.embedder.Name() }

func (r *EmbeddingRanker) Rank(ctx context.Context, query string, candidates []domain.Chunk) ([]domain.SearchResult, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	preparer, local := r.embedder.(domain.Preparer)
	if local {
		r.prepMu.Lock()
		defer r.prepMu.Unlock()
		corpus := make([]string, len(candidates))
		for i, ch := range candidates {
			corpus[i] = ch.Content
		}
		if err := preparer.Prepare(corpus); err != nil {
			return nil, fmt.Errorf("prepare %s: %w", r.embedder.Name(), err)
		}
	}
	qvec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if isZero(qvec) {
		return nil, fmt.Errorf("%w: zero query vector", ErrDegenerate)
	}
	out := make([]domain.SearchResult, len(candidates))
	informative := false
	for i, ch := range candidates {
		vec, err := r.chunkVector(ctx, ch, !local)
		if err != nil {
			return nil, err
		}
		out[i] = domain.SearchResult{Chunk: ch}
		if isZero(vec) {
			continue
		}
		informative = true
		out[i].Score = 1 / (1 + euclidean(qvec, vec))
	}
	if !informative {
		return nil, fmt.Errorf("%w: every chunk vector is zero", ErrDegenerate)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (r *EmbeddingRanker) chunkVector(ctx context.Context, ch domain.Chunk, cacheable bool) ([]float64, error) {
	if !cacheable {
		return r.embedder.Embed(ctx, ch.Content)
	}
	key := hashString(r.embedder.Name() + "\x00" + ch.Content)
	if v, ok := r.cache.Get(key); ok {
		return v, nil
	}
	v, err := r.embedder.Embed(ctx, ch.Content)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, v)
	return v, nil
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func euclidean(a, b []float64) float64 {
	n := max(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		var x, y float64
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		sum += (x - y) * (x - y)
	}
	return math.Sqrt(sum)
}

// FallbackRanker uses primary and degrades to fallback when primary fails for
// any reason other than the caller giving up, ErrDegenerate included.
type FallbackRanker struct {
	primary  Ranker
	fallback Ranker
	logger   *slog.Logger
}

func NewFallbackRanker(primary, fallback Ranker, logger *slog.Logger) *FallbackRanker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FallbackRanker{primary: primary, fallback: fallback, logger: logger}
}

func (f *FallbackRanker) Name() string { return f.primary.Name() + "+" + f.fallback.Name() }

func (f *FallbackRanker) Rank(ctx context.Context, query string, candidates []domain.Chunk) ([]domain.SearchResult, error) {
	res, err := f.primary.Rank(ctx, query, candidates)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, ctx.Err())
	}
	f.logger.Warn("ranking degraded", "ranker", f.primary.Name(), "fallback", f.fallback.Name(), "error", err)
	return f.fallback.Rank(ctx, query, candidates)
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}
