package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"docmind/internal/answer"
	"docmind/internal/chunker"
	"docmind/internal/config"
	"docmind/internal/domain"
	"docmind/internal/embedding/openai"
	"docmind/internal/embedding/tfidf"
	"docmind/internal/extract"
	"docmind/internal/gate"
	"docmind/internal/llm"
	"docmind/internal/metrics"
	"docmind/internal/retrieval"
	"docmind/internal/session"
	"docmind/internal/summarizer"
)

// newLogger writes to the configured log file when toFile is set, since the
// chat UI owns the terminal, and to stderr otherwise.
func newLogger(cfg *config.AppConfig, toFile bool) (*slog.Logger, io.Closer, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if toFile {
		if cfg.Log.File == "" {
			return slog.New(slog.DiscardHandler), closer, nil
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), closer, nil
}

func buildChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "recursive", "":
		return chunker.NewRecursiveChunker(cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap), nil
	case "sentence":
		return chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences), nil
	}
	return nil, fmt.Errorf("%w: unknown chunker %q", domain.ErrConfiguration, cfg.Chunker.Type)
}

func buildEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		o := cfg.Embedder.OpenAI
		if o == nil {
			return nil, fmt.Errorf("%w: openai embedder config missing", domain.ErrConfiguration)
		}
		return openai.NewClient(openai.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Timeout:   time.Duration(o.TimeoutSecs) * time.Second,
		})
	}
	return nil, fmt.Errorf("%w: unknown embedder %q", domain.ErrConfiguration, cfg.Embedder.Type)
}

// buildRanker returns the configured ranking strategy. Embedding ranking falls
// back to lexical overlap when the embedder fails or yields zero vectors;
// lexical ranking keeps insertion order among chunks sharing no query word.
func buildRanker(cfg *config.AppConfig, logger *slog.Logger) (retrieval.Ranker, error) {
	switch cfg.Retrieval.Ranker {
	case "order", "":
		return retrieval.OrderRanker{}, nil
	case "lexical":
		return retrieval.LexicalRanker{}, nil
	case "embedding":
		emb, err := buildEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		r, err := retrieval.NewEmbeddingRanker(emb, cfg.Embedder.CacheSize)
		if err != nil {
			return nil, err
		}
		return retrieval.NewFallbackRanker(r, retrieval.LexicalRanker{}, logger), nil
	}
	return nil, fmt.Errorf("%w: unknown ranker %q", domain.ErrConfiguration, cfg.Retrieval.Ranker)
}

func buildGate(cfg *config.AppConfig) *gate.Gate {
	if !cfg.Gate.Enabled {
		return gate.New(gate.Disabled())
	}
	return gate.New(gate.WithThreshold(cfg.Gate.ConfidenceThreshold))
}

func buildGenerator(cfg *config.AppConfig) (domain.Generator, error) {
	return llm.NewClient(llm.Config{
		BaseURL:     cfg.Generator.BaseURL,
		APIKeyEnv:   cfg.Generator.APIKeyEnv,
		Model:       cfg.Generator.Model,
		Temperature: cfg.Generator.Temperature,
		MaxTokens:   cfg.Generator.MaxTokens,
		Timeout:     cfg.GeneratorTimeout(),
	})
}

// buildSession assembles a chat session. It fails before any query is
// processed when the generator is not configured.
func buildSession(cfg *config.AppConfig, logger *slog.Logger, m *metrics.Collector) (*session.Session, error) {
	gen, err := buildGenerator(cfg)
	if err != nil {
		return nil, err
	}
	orch, err := answer.New(answer.Config{Gate: buildGate(cfg), Generator: gen, Logger: logger, Metrics: m})
	if err != nil {
		return nil, err
	}
	ch, err := buildChunker(cfg)
	if err != nil {
		return nil, err
	}
	ranker, err := buildRanker(cfg, logger)
	if err != nil {
		return nil, err
	}
	return session.New(session.Config{
		Extractor:        extract.NewFileExtractor(),
		Chunker:          ch,
		Ranker:           ranker,
		Orchestrator:     orch,
		Summarizer:       summarizer.NewFrequencySummarizer(),
		SummarySentences: cfg.Summarizer.MaxSentences,
		K:                cfg.Retrieval.K,
		Settings: &session.Settings{
			UseGate:             cfg.Gate.Enabled,
			ConfidenceThreshold: cfg.Gate.ConfidenceThreshold,
			SelectedDocument:    session.AllDocuments,
		},
		Logger:  logger,
		Metrics: m,
	})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
