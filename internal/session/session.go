// Package session holds the per-user state of a chat over uploaded documents:
// the chunk store, loaded files, chat history and retrieval settings.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"docmind/internal/answer"
	"docmind/internal/domain"
	"docmind/internal/gate"
	"docmind/internal/metrics"
	"docmind/internal/retrieval"
	"docmind/internal/store"
	"docmind/internal/summarizer"
)

// AllDocuments selects every loaded document.
const AllDocuments = "All Documents"

// NoDocumentsLoadedMessage answers questions asked before any upload.
const NoDocumentsLoadedMessage = "Please upload PDF documents first before asking questions."

// DefaultK is the number of chunks retrieved per question.
const DefaultK = 4

const reportKeywords = 8

// Settings are the user-adjustable knobs of a session.
type Settings struct {
	UseGate             bool
	ConfidenceThreshold float64
	ShowDebug           bool
	SelectedDocument    string
}

// DefaultSettings enables the gate at the default threshold across all documents.
func DefaultSettings() Settings {
	return Settings{UseGate: true, ConfidenceThreshold: gate.DefaultThreshold, SelectedDocument: AllDocuments}
}

// Turn is one chat history entry.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Reply is the outcome of Ask.
type Reply struct {
	Text     string
	Decision gate.Decision
	// Chunks are the retrieved chunks the answer was grounded in, if any.
	Chunks []domain.Chunk
	// Debug holds the gate rationale when ShowDebug is on.
	Debug string
}

// FileResult reports the ingestion of one file.
type FileResult struct {
	Name    string
	Chunks  int
	Skipped bool
	Err     error
}

// IngestReport summarises an Ingest call.
type IngestReport struct {
	Files   []FileResult
	Summary string
	// Keywords are the most frequent content words of the newly ingested text.
	Keywords []string
}

// Added returns the total number of chunks inserted.
func (r IngestReport) Added() int {
	n := 0
	for _, f := range r.Files {
		n += f.Chunks
	}
	return n
}

// Failed returns the files that could not be ingested.
func (r IngestReport) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

type Config struct {
	Extractor    domain.Extractor
	Chunker      domain.Chunker
	Ranker       retrieval.Ranker
	Orchestrator *answer.Orchestrator
	// Summarizer is optional; without it Ingest reports no summary.
	Summarizer       domain.Summarizer
	SummarySentences int
	K                int // defaults to DefaultK
	Settings         *Settings
	Logger           *slog.Logger
	Metrics          *metrics.Collector
}

// Session is safe for concurrent use. Ask does not hold the session lock while
// retrieving or generating.
type Session struct {
	id           string
	store        *store.Store
	engine       *retrieval.Engine
	orchestrator *answer.Orchestrator
	extractor    domain.Extractor
	chunker      domain.Chunker
	summarizer   domain.Summarizer
	summaryN     int
	k            int
	logger       *slog.Logger
	metrics      *metrics.Collector

	mu       sync.Mutex
	files    []string
	history  []Turn
	settings Settings
}

func New(cfg Config) (*Session, error) {
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("%w: session needs an answer orchestrator", domain.ErrConfiguration)
	}
	if cfg.Extractor == nil || cfg.Chunker == nil {
		return nil, fmt.Errorf("%w: session needs an extractor and a chunker", domain.ErrConfiguration)
	}
	if cfg.K < 0 {
		return nil, fmt.Errorf("%w: k must be >= 0, got %d", domain.ErrInvalidArgument, cfg.K)
	}
	if cfg.K == 0 {
		cfg.K = DefaultK
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	settings := DefaultSettings()
	if cfg.Settings != nil {
		settings = *cfg.Settings
		if settings.SelectedDocument == "" {
			settings.SelectedDocument = AllDocuments
		}
	}
	id := uuid.NewString()
	logger := cfg.Logger.With("session", id)
	st := store.New()
	engine := retrieval.NewEngine(retrieval.Config{
		Store:   st,
		Ranker:  cfg.Ranker,
		Logger:  logger,
		Metrics: cfg.Metrics,
	})
	logger.Debug("session created", "ranker", engine.Ranker().Name(), "k", cfg.K)
	return &Session{
		id:           id,
		store:        st,
		engine:       engine,
		orchestrator: cfg.Orchestrator,
		extractor:    cfg.Extractor,
		chunker:      cfg.Chunker,
		summarizer:   cfg.Summarizer,
		summaryN:     cfg.SummarySentences,
		k:            cfg.K,
		logger:       logger,
		metrics:      cfg.Metrics,
		settings:     settings,
	}, nil
}

func (s *Session) ID() string { return s.id }

// Ingest extracts, chunks and stores each file. A file whose name is already
// loaded is skipped; a file that fails is reported and does not stop the rest.
// The returned error is non-nil only when ctx ends.
func (s *Session) Ingest(ctx context.Context, paths ...string) (IngestReport, error) {
	var (
		report IngestReport
		texts  []string
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := filepath.Base(p)
		if s.isLoaded(name) {
			report.Files = append(report.Files, FileResult{Name: name, Skipped: true})
			continue
		}
		n, text, err := s.ingestFile(ctx, p, name)
		if err != nil {
			s.logger.Error("ingest failed", "file", name, "error", err)
			report.Files = append(report.Files, FileResult{Name: name, Err: err})
			continue
		}
		s.logger.Info("ingested", "file", name, "chunks", n)
		report.Files = append(report.Files, FileResult{Name: name, Chunks: n})
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return report, nil
	}
	all := strings.Join(texts, "\n")
	report.Keywords = summarizer.Keywords(all, reportKeywords)
	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(all, s.summaryN)
		if err != nil {
			s.logger.Warn("summary failed", "error", err)
		}
		report.Summary = summary
	}
	return report, nil
}

func (s *Session) ingestFile(ctx context.Context, path, name string) (int, string, error) {
	text, err := s.extractor.Extract(ctx, path)
	if err != nil {
		return 0, "", err
	}
	chunks, err := s.chunker.Chunk(domain.Document{Source: name, Path: path, Content: text})
	if err != nil {
		return 0, "", err
	}
	if len(chunks) == 0 {
		return 0, "", fmt.Errorf("%s: document produced no chunks", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A concurrent Ingest may have loaded the same name meanwhile.
	for _, f := range s.files {
		if f == name {
			return 0, "", fmt.Errorf("%s: already loaded", name)
		}
	}
	s.store.Insert(chunks...)
	s.files = append(s.files, name)
	s.metrics.AddIngested(len(chunks))
	return len(chunks), text, nil
}

func (s *Session) isLoaded(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f == name {
			return true
		}
	}
	return false
}

// Ask answers question with the current settings and records both turns in
// the history.
func (s *Session) Ask(ctx context.Context, question string) Reply {
	s.mu.Lock()
	settings := s.settings
	loaded := len(s.files) > 0
	display := question
	if settings.SelectedDocument != AllDocuments {
		display = fmt.Sprintf("[Regarding: %s] %s", settings.SelectedDocument, question)
	}
	s.history = append(s.history, Turn{Role: "user", Content: display})
	s.mu.Unlock()

	reply := s.answer(ctx, question, settings, loaded)

	s.mu.Lock()
	s.history = append(s.history, Turn{Role: "assistant", Content: reply.Text})
	s.mu.Unlock()
	return reply
}

func (s *Session) answer(ctx context.Context, question string, settings Settings, loaded bool) Reply {
	if !loaded {
		return Reply{Text: NoDocumentsLoadedMessage}
	}
	g := gateFor(settings)
	decision := g.Evaluate(question)
	reply := Reply{Decision: decision}
	if settings.ShowDebug {
		reply.Debug = decision.Rationale
	}

	if decision.UseRetrieval {
		filter := ""
		if settings.SelectedDocument != AllDocuments {
			filter = settings.SelectedDocument
		}
		chunks, err := s.engine.Search(ctx, question, s.k, filter)
		if err != nil {
			s.logger.Error("retrieval failed", "error", err)
			if errors.Is(err, domain.ErrTimeout) {
				reply.Text = answer.TimeoutMessage
			} else {
				reply.Text = "Error: " + err.Error()
			}
			return reply
		}
		reply.Chunks = chunks
	}

	resp := s.orchestrator.WithGate(g).Respond(ctx, question, reply.Chunks)
	reply.Text = resp.Text
	return reply
}

func gateFor(settings Settings) *gate.Gate {
	if !settings.UseGate {
		return gate.New(gate.Disabled())
	}
	return gate.New(gate.WithThreshold(settings.ConfidenceThreshold))
}

// Explain returns the gate rationale for query under the current settings.
func (s *Session) Explain(query string) string {
	return gateFor(s.Settings()).Explain(query)
}

// Clear empties the store, the loaded files and the history. Settings are kept
// except the document selection, which returns to AllDocuments.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Clear()
	s.files = nil
	s.history = nil
	s.settings.SelectedDocument = AllDocuments
	s.logger.Info("session cleared")
}

// Sources returns the distinct chunk sources in first-insertion order.
func (s *Session) Sources() []string { return s.store.Sources() }

// ChunkCount returns the number of stored chunks.
func (s *Session) ChunkCount() int { return s.store.Len() }

// LoadedFiles returns the loaded file names in upload order.
func (s *Session) LoadedFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.files...)
}

// History returns a copy of the chat history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings applies fn to a copy of the settings and stores the result if
// it is valid: the threshold must lie in [0,1] and the selected document must
// be AllDocuments or a loaded file.
func (s *Session) UpdateSettings(fn func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.settings
	fn(&next)
	if next.SelectedDocument == "" {
		next.SelectedDocument = AllDocuments
	}
	if t := next.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("%w: confidence threshold must be within [0,1], got %g", domain.ErrInvalidArgument, t)
	}
	if next.SelectedDocument != AllDocuments {
		found := false
		for _, f := range s.files {
			if f == next.SelectedDocument {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", domain.ErrUnknownSource, next.SelectedDocument)
		}
	}
	s.settings = next
	return nil
}
