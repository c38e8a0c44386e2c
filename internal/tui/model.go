package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"docmind/internal/session"
)

// SessionPort is the TUI-facing subset of a chat session.
type SessionPort interface {
	Ingest(ctx context.Context, paths ...string) (session.IngestReport, error)
	Ask(ctx context.Context, question string) session.Reply
	Explain(query string) string
	Clear()
	LoadedFiles() []string
	Settings() session.Settings
	UpdateSettings(fn func(*session.Settings)) error
}

type entry struct {
	role   string // "user", "assistant" or "system"
	text   string
	debug  string
	chunks []string
	err    bool
}

type answerMsg struct {
	question string
	reply    session.Reply
}

type ingestMsg struct {
	report session.IngestReport
	err    error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx      context.Context
	session  SessionPort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	entries  []entry
	status   string
	busy     bool
	ready    bool
}

// New creates a chat model over s. summary, if non-empty, is shown as the
// first system message.
func New(ctx context.Context, s SessionPort, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about your PDFs... (/help for commands)"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	m := Model{ctx: ctx, session: s, input: ti, viewport: viewport.New(0, 0), spinner: sp}
	if summary != "" {
		m.entries = append(m.entries, entry{role: "system", text: "Summary: " + summary})
	}
	if len(s.LoadedFiles()) == 0 {
		m.entries = append(m.entries, entry{role: "system", text: "Upload a PDF with /load <path> and start asking questions!"})
	}
	m.status = m.settingsLine()
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and async result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 2 + 1 + ih + 1 // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.busy = false
		e := entry{role: "assistant", text: msg.reply.Text, debug: msg.reply.Debug}
		for _, ch := range msg.reply.Chunks {
			body := highlightBestSentence(preview(ch.Content, previewRunes), msg.question)
			e.chunks = append(e.chunks, fmt.Sprintf("%s #%d: %s", ch.Source, ch.ChunkIndex, body))
		}
		m.entries = append(m.entries, e)
		m.status = m.settingsLine()
		m.refresh()
		return m, nil
	case ingestMsg:
		m.busy = false
		m.entries = append(m.entries, ingestEntries(msg)...)
		m.status = m.settingsLine()
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			if line == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			if strings.HasPrefix(line, "/") {
				return m.command(line)
			}
			return m.ask(line)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) (tea.Model, tea.Cmd) {
	display := question
	if doc := m.session.Settings().SelectedDocument; doc != session.AllDocuments {
		display = fmt.Sprintf("[Regarding: %s] %s", doc, question)
	}
	m.entries = append(m.entries, entry{role: "user", text: display})
	m.busy = true
	m.status = "Generating response..."
	m.refresh()
	ctx, s := m.ctx, m.session
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		return answerMsg{question: question, reply: s.Ask(ctx, question)}
	})
}

func (m Model) command(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	switch name {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/help":
		m.system(helpText)
	case "/load":
		if len(args) == 0 {
			m.fail("usage: /load <file.pdf> [more files...]")
			break
		}
		m.busy = true
		m.status = "Processing documents..."
		ctx, s := m.ctx, m.session
		m.refresh()
		return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
			report, err := s.Ingest(ctx, args...)
			return ingestMsg{report: report, err: err}
		})
	case "/docs":
		files := m.session.LoadedFiles()
		if len(files) == 0 {
			m.system("No documents loaded.")
			break
		}
		m.system("Loaded documents: " + strings.Join(files, ", "))
	case "/doc":
		doc := strings.Join(args, " ")
		if err := m.session.UpdateSettings(func(s *session.Settings) { s.SelectedDocument = doc }); err != nil {
			m.fail(err.Error())
			break
		}
		m.system("Querying: " + m.session.Settings().SelectedDocument)
	case "/all":
		_ = m.session.UpdateSettings(func(s *session.Settings) { s.SelectedDocument = session.AllDocuments })
		m.system("Querying: " + session.AllDocuments)
	case "/clear":
		m.session.Clear()
		m.entries = nil
		m.system("Database cleared successfully!")
	case "/debug":
		show := false
		_ = m.session.UpdateSettings(func(s *session.Settings) { s.ShowDebug = !s.ShowDebug; show = s.ShowDebug })
		m.system(fmt.Sprintf("Debug info: %s", onOff(show)))
	case "/ragate":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			m.fail("usage: /ragate on|off")
			break
		}
		_ = m.session.UpdateSettings(func(s *session.Settings) { s.UseGate = args[0] == "on" })
		m.system("Adaptive retrieval: " + args[0])
	case "/threshold":
		if len(args) != 1 {
			m.fail("usage: /threshold <0..1>")
			break
		}
		t, err := strconv.ParseFloat(args[0], 64)
		if err == nil {
			err = m.session.UpdateSettings(func(s *session.Settings) { s.ConfidenceThreshold = t })
		}
		if err != nil {
			m.fail("invalid threshold: " + err.Error())
			break
		}
		m.system(fmt.Sprintf("Confidence threshold: %.2f", t))
	case "/explain":
		if len(args) == 0 {
			m.fail("usage: /explain <query>")
			break
		}
		m.system("RAGate: " + m.session.Explain(strings.Join(args, " ")))
	default:
		m.fail("unknown command " + name + " (try /help)")
	}
	m.status = m.settingsLine()
	m.refresh()
	return m, nil
}

func (m *Model) system(text string) { m.entries = append(m.entries, entry{role: "system", text: text}) }

func (m *Model) fail(text string) {
	m.entries = append(m.entries, entry{role: "system", text: text, err: true})
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) settingsLine() string {
	s := m.session.Settings()
	gate := fmt.Sprintf("ragate %s (%.2f)", onOff(s.UseGate), s.ConfidenceThreshold)
	if !s.UseGate {
		gate = "ragate off"
	}
	return fmt.Sprintf("%d docs | %s | %s | debug %s", len(m.session.LoadedFiles()), s.SelectedDocument, gate, onOff(s.ShowDebug))
}

// View renders the transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("DocuMind - chat with your PDFs")
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(status)
}

func ingestEntries(msg ingestMsg) []entry {
	if msg.err != nil {
		return []entry{{role: "system", text: "Ingest interrupted: " + msg.err.Error(), err: true}}
	}
	var out []entry
	for _, f := range msg.report.Files {
		switch {
		case f.Err != nil:
			out = append(out, entry{role: "system", text: fmt.Sprintf("Error processing %s: %v", f.Name, f.Err), err: true})
		case f.Skipped:
			out = append(out, entry{role: "system", text: fmt.Sprintf("%s is already loaded", f.Name)})
		default:
			out = append(out, entry{role: "system", text: fmt.Sprintf("%s processed and added to database (%d chunks)", f.Name, f.Chunks)})
		}
	}
	if msg.report.Summary != "" {
		out = append(out, entry{role: "system", text: "Summary: " + msg.report.Summary})
	}
	if len(msg.report.Keywords) > 0 {
		out = append(out, entry{role: "system", text: "Key terms: " + strings.Join(msg.report.Keywords, ", ")})
	}
	return out
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

const helpText = `Commands:
  /load <files...>   ingest PDF or text files
  /docs              list loaded documents
  /doc <name>        restrict questions to one document
  /all               query all documents
  /ragate on|off     toggle adaptive retrieval
  /threshold <x>     set the confidence threshold (0..1)
  /debug             toggle retrieval decision info
  /explain <query>   show the retrieval decision for a query
  /clear             clear documents and history
  /quit              exit`
