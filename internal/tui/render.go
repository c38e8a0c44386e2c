package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"docmind/internal/textutil"
)

const previewRunes = 200

var (
	headerStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	assistantStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	systemStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	debugStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Italic(true)
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

func (m Model) renderTranscript() string {
	if len(m.entries) == 0 {
		return systemStyle.Render("No messages yet.")
	}
	var b strings.Builder
	width := max(20, m.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)
	for i, e := range m.entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch e.role {
		case "user":
			b.WriteString(userStyle.Render("You") + "\n" + wrap.Render(e.text))
		case "assistant":
			b.WriteString(assistantStyle.Render("Assistant") + "\n")
			if e.debug != "" {
				b.WriteString(debugStyle.Render(wrap.Render("RAGate: "+e.debug)) + "\n")
			}
			b.WriteString(wrap.Render(e.text))
			if len(e.chunks) > 0 {
				b.WriteString("\n" + systemStyle.Render("Retrieved context:"))
				for _, c := range e.chunks {
					b.WriteString("\n" + wrap.Render("  - "+c))
				}
			}
		default:
			style := systemStyle
			if e.err {
				style = errorStyle
			}
			b.WriteString(style.Render(wrap.Render(e.text)))
		}
	}
	return b.String()
}

// preview cuts s to n runes, appending "..." when it was longer.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// highlightBestSentence emphasises the sentence of text sharing the most
// words with query.
func highlightBestSentence(text, query string) string {
	sentences := textutil.Sentences(text)
	if len(sentences) < 2 {
		return text
	}
	qTokens := textutil.TokenSet(query)
	if len(qTokens) == 0 {
		return text
	}
	best, bestScore := "", 0
	for _, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			best, bestScore = s, score
		}
	}
	if best == "" {
		return text
	}
	return strings.Replace(text, best, highlightStyle.Render(best), 1)
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	for t := range textutil.TokenSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
