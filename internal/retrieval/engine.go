// Package retrieval selects the chunks a query is answered from.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"docmind/internal/domain"
	"docmind/internal/metrics"
	"docmind/internal/store"
)

// Engine searches a chunk store. With a source filter it returns the best
// chunks of that source; without one it samples sources round-robin so a
// large document cannot crowd out the others.
type Engine struct {
	store   *store.Store
	ranker  Ranker
	logger  *slog.Logger
	metrics *metrics.Collector
}

type Config struct {
	Store   *store.Store
	Ranker  Ranker // defaults to OrderRanker
	Logger  *slog.Logger
	Metrics *metrics.Collector
}

func NewEngine(cfg Config) *Engine {
	if cfg.Ranker == nil {
		cfg.Ranker = OrderRanker{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: cfg.Store, ranker: cfg.Ranker, logger: cfg.Logger, metrics: cfg.Metrics}
}

// Ranker returns the ranking strategy in use.
func (e *Engine) Ranker() Ranker { return e.ranker }

// Search returns at most k chunks relevant to query. An empty sourceFilter
// searches every document. An empty store or a filter naming no stored
// source yields an empty result, not an error.
func (e *Engine) Search(ctx context.Context, query string, k int, sourceFilter string) ([]domain.Chunk, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: k must be >= 0, got %d", domain.ErrInvalidArgument, k)
	}
	if k == 0 {
		return nil, nil
	}
	// The snapshot is taken under the store lock; ranking may call an
	// embedding service and runs without it.
	chunks, sources := e.store.Snapshot()
	if len(chunks) == 0 {
		e.logger.Debug("search skipped", "reason", domain.ErrEmptyStore)
		return nil, nil
	}

	if sourceFilter != "" {
		var candidates []domain.Chunk
		for _, ch := range chunks {
			if ch.Source == sourceFilter {
				candidates = append(candidates, ch)
			}
		}
		if len(candidates) == 0 {
			e.logger.Debug("search skipped", "reason", domain.ErrUnknownSource, "source", sourceFilter)
			return nil, nil
		}
		ranked, err := e.ranker.Rank(ctx, query, candidates)
		if err != nil {
			return nil, err
		}
		out := make([]domain.Chunk, 0, min(k, len(ranked)))
		for _, r := range ranked[:min(k, len(ranked))] {
			out = append(out, r.Chunk)
		}
		e.metrics.ObserveRetrieval("filtered", len(out))
		return out, nil
	}

	ranked, err := e.ranker.Rank(ctx, query, chunks)
	if err != nil {
		return nil, err
	}
	out := balance(ranked, sources, k)
	e.metrics.ObserveRetrieval("balanced", len(out))
	e.logger.Debug("search", "ranker", e.ranker.Name(), "sources", len(sources), "k", k, "returned", len(out))
	return out, nil
}

// balance takes max(1, k/len(sources)) of the best chunks from each source in
// order, stopping once k are collected. Remaining slots are then handed out
// one chunk at a time, round-robin, to sources that still have chunks left.
func balance(ranked []domain.SearchResult, sources []string, k int) []domain.Chunk {
	groups := make(map[string][]domain.Chunk, len(sources))
	for _, r := range ranked {
		groups[r.Chunk.Source] = append(groups[r.Chunk.Source], r.Chunk)
	}
	perSource := max(1, k/len(sources))
	offsets := make(map[string]int, len(sources))
	out := make([]domain.Chunk, 0, k)

	for _, src := range sources {
		take := min(perSource, len(groups[src]))
		out = append(out, groups[src][:take]...)
		offsets[src] = take
		if len(out) >= k {
			break
		}
	}
	for len(out) < k {
		progressed := false
		for _, src := range sources {
			if offsets[src] >= len(groups[src]) {
				continue
			}
			out = append(out, groups[src][offsets[src]])
			offsets[src]++
			progressed = true
			if len(out) == k {
				break
			}
		}
		if !progressed {
			break
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}
