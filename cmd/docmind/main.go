package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"docmind/internal/config"
	"docmind/internal/domain"
	"docmind/internal/extract"
	"docmind/internal/metrics"
	"docmind/internal/session"
	"docmind/internal/store"
	"docmind/internal/tui"
)

var (
	configPath string
	envFile    string
)

func main() {
	root := &cobra.Command{
		Use:           "docmind",
		Short:         "DocuMind: ask questions about your PDF documents",
		Long:          "DocuMind answers questions about uploaded PDFs, deciding per question whether document retrieval is needed.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ./config.yaml, then ~/.config/docmind/config.yaml)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with API keys")

	root.AddCommand(chatCmd())
	root.AddCommand(askCmd())
	root.AddCommand(gateCmd())
	root.AddCommand(ingestCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}
	if configPath != "" {
		return config.Load(configPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// runtime bundles what every command needs after loading the config.
type runtime struct {
	cfg     *config.AppConfig
	logger  *slog.Logger
	metrics *metrics.Collector
	closers []io.Closer
}

func setup(ctx context.Context, logToFile bool) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, closer, err := newLogger(cfg, logToFile)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, metrics: metrics.New(), closers: []io.Closer{closer}}
	if cfg.Metrics.Addr != "" {
		rt.serveMetrics(ctx, cfg.Metrics.Addr)
	}
	return rt, nil
}

func (rt *runtime) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		rt.logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func (rt *runtime) Close() {
	for _, c := range rt.closers {
		_ = c.Close()
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [files...]",
		Short: "Open the interactive chat, optionally loading documents first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			sess, err := buildSession(rt.cfg, rt.logger, rt.metrics)
			if err != nil {
				return err
			}
			summary := ""
			if len(args) > 0 {
				report, err := sess.Ingest(ctx, args...)
				if err != nil {
					return err
				}
				for _, f := range report.Failed() {
					fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", f.Name, f.Err)
				}
				summary = report.Summary
			}
			rt.logger.Info("chat started", "session", sess.ID(), "files", len(sess.LoadedFiles()))
			_, err = tea.NewProgram(tui.New(ctx, sess, summary), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
}

func askCmd() *cobra.Command {
	var (
		files       []string
		doc         string
		debug       bool
		noGate      bool
		showContext bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question about the given documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()
			sess, err := buildSession(rt.cfg, rt.logger, rt.metrics)
			if err != nil {
				return err
			}
			if len(files) > 0 {
				report, err := sess.Ingest(ctx, files...)
				if err != nil {
					return err
				}
				for _, f := range report.Failed() {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error processing %s: %v\n", f.Name, f.Err)
				}
			}
			err = sess.UpdateSettings(func(s *session.Settings) {
				s.SelectedDocument = doc
				s.ShowDebug = debug
				if noGate {
					s.UseGate = false
				}
			})
			if err != nil {
				return err
			}
			reply := sess.Ask(ctx, strings.Join(args, " "))
			out := cmd.OutOrStdout()
			if reply.Debug != "" {
				fmt.Fprintf(out, "RAGate: %s\n\n", reply.Debug)
			}
			fmt.Fprintln(out, reply.Text)
			if showContext {
				for i, ch := range reply.Chunks {
					fmt.Fprintf(out, "\n--- Chunk %d from %s ---\n%s\n", i+1, ch.Source, ch.Content)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&files, "file", "f", nil, "PDF or text file to load (repeatable)")
	cmd.Flags().StringVar(&doc, "doc", "", "restrict retrieval to this loaded document name")
	cmd.Flags().BoolVar(&debug, "debug", false, "print the retrieval decision")
	cmd.Flags().BoolVar(&noGate, "no-gate", false, "always retrieve, skipping adaptive retrieval")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "print the retrieved chunks")
	return cmd
}

func gateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gate [query]",
		Short: "Show whether a query would use document retrieval",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			d := buildGate(cfg).Evaluate(strings.Join(args, " "))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "use_retrieval: %t\nconfidence:    %.2f\nstage:         %s\n", d.UseRetrieval, d.Confidence, d.Stage)
			if d.Rule != "" {
				fmt.Fprintf(out, "rule:          %s\n", d.Rule)
			}
			fmt.Fprintln(out, d.Rationale)
			return nil
		},
	}
}

// ingestCmd chunks files into a throwaway store and reports what would be indexed.
func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Extract and chunk documents, printing chunk counts per source",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close()
			ch, err := buildChunker(rt.cfg)
			if err != nil {
				return err
			}
			ex := extract.NewFileExtractor()
			st := store.New()
			out := cmd.OutOrStdout()
			failed := 0
			for _, p := range args {
				name := filepath.Base(p)
				if st.HasSource(name) {
					fmt.Fprintf(out, "%-40s skipped (already loaded)\n", name)
					continue
				}
				text, err := ex.Extract(ctx, p)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%-40s error: %v\n", name, err)
					continue
				}
				chunks, err := ch.Chunk(domain.Document{Source: name, Path: p, Content: text})
				if err != nil {
					failed++
					fmt.Fprintf(out, "%-40s error: %v\n", name, err)
					continue
				}
				st.Insert(chunks...)
				rt.metrics.AddIngested(len(chunks))
				fmt.Fprintf(out, "%-40s %d chunks\n", name, len(chunks))
			}
			fmt.Fprintf(out, "\n%d chunks from sources: %s\n", st.Len(), strings.Join(st.Sources(), ", "))
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}
