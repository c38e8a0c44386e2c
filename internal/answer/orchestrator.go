// Package answer composes the retrieval gate, retrieved chunks and the
// generation service into a final answer.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docmind/internal/domain"
	"docmind/internal/gate"
	"docmind/internal/metrics"
)

const (
	// NoDocumentsMessage is returned, without calling the generator, when
	// retrieval is needed but no chunks were supplied.
	NoDocumentsMessage = "I don't have any documents to reference for answering your question."
	// TimeoutMessage is returned when the generation service does not answer in time.
	TimeoutMessage = "The answer service did not respond in time. Please try again."
)

var tracer = otel.Tracer("docmind/answer")

// Orchestrator never returns generation failures as errors: they are folded
// into the answer text.
type Orchestrator struct {
	gate      *gate.Gate
	generator domain.Generator
	logger    *slog.Logger
	metrics   *metrics.Collector
}

type Config struct {
	Gate      *gate.Gate // defaults to gate.New()
	Generator domain.Generator
	Logger    *slog.Logger
	Metrics   *metrics.Collector
}

// Response is the full outcome of answering one query.
type Response struct {
	Text     string
	Decision gate.Decision
	// Grounded is true when the answer was generated from document context.
	Grounded bool
	// Err holds the generation failure folded into Text, if any.
	Err error
}

// New fails with domain.ErrConfiguration when no generator is supplied.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Generator == nil {
		return nil, fmt.Errorf("%w: answer orchestrator needs a generator", domain.ErrConfiguration)
	}
	if cfg.Gate == nil {
		cfg.Gate = gate.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{gate: cfg.Gate, generator: cfg.Generator, logger: cfg.Logger, metrics: cfg.Metrics}, nil
}

// WithGate returns a copy of o that decides with g.
func (o *Orchestrator) WithGate(g *gate.Gate) *Orchestrator {
	cp := *o
	cp.gate = g
	return &cp
}

// Gate returns the gate the orchestrator decides with.
func (o *Orchestrator) Gate() *gate.Gate { return o.gate }

// Answer returns the answer text for query.
func (o *Orchestrator) Answer(ctx context.Context, query string, chunks []domain.Chunk) string {
	return o.Respond(ctx, query, chunks).Text
}

// Respond decides whether to ground the answer in chunks and calls the generator accordingly.
func (o *Orchestrator) Respond(ctx context.Context, query string, chunks []domain.Chunk) Response {
	decision := o.gate.Evaluate(query)
	o.metrics.ObserveGate(decision.UseRetrieval, string(decision.Stage))

	ctx, span := tracer.Start(ctx, "answer.respond", trace.WithAttributes(
		attribute.Bool("docmind.gate.use_retrieval", decision.UseRetrieval),
		attribute.Float64("docmind.gate.confidence", decision.Confidence),
		attribute.String("docmind.gate.stage", string(decision.Stage)),
		attribute.Int("docmind.chunks", len(chunks)),
	))
	defer span.End()

	resp := Response{Decision: decision}
	if decision.UseRetrieval && len(chunks) == 0 {
		resp.Text = NoDocumentsMessage
		return resp
	}

	mode := "direct"
	data := promptData{Question: query}
	tmpl := directPrompt
	if decision.UseRetrieval {
		mode = "grounded"
		data.Context = FormatContext(chunks)
		tmpl = groundedPrompt
		resp.Grounded = true
	}
	prompt, err := render(tmpl, data)
	if err != nil {
		resp.Err = err
		resp.Text = "Error generating response: " + err.Error()
		return resp
	}

	start := time.Now()
	text, err := o.generator.Generate(ctx, prompt)
	o.metrics.ObserveGeneration(mode, time.Since(start))
	if err != nil {
		resp.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		if errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			o.metrics.GenerationFailed("timeout")
			o.logger.Warn("generation timed out", "mode", mode, "error", err)
			resp.Text = TimeoutMessage
			return resp
		}
		o.metrics.GenerationFailed("error")
		o.logger.Error("generation failed", "mode", mode, "error", err)
		resp.Text = "Error generating response: " + err.Error()
		return resp
	}
	o.logger.Debug("answered", "mode", mode, "stage", decision.Stage, "confidence", decision.Confidence, "chunks", len(chunks))
	resp.Text = text
	return resp
}
