package tui

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"unihelp/internal/llm"
	"unihelp/internal/service"
)

// ChatFunc answers a question given the earlier turns. The caller binds the
// context the answers run under.
type ChatFunc func(question string, history []llm.Message) (service.Answer, error)

type exchange struct {
	question string
	answer   service.Answer
	err      error
}

type answerMsg struct {
	exchange
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	chat         ChatFunc
	input        textinput.Model
	viewport     viewport.Model
	history      []llm.Message
	exchanges    []exchange
	header       string
	status       string
	pending      bool
	showPassages bool
	ready        bool
}

// New creates a chat screen. header is shown above the conversation.
func New(chat ChatFunc, header string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Posez votre question et appuyez sur Entrée"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		chat:     chat,
		input:    ti,
		viewport: vp,
		header:   header,
		status:    "Ready. Tab shows retrieved passages, Ctrl+C quits.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) ask(question string) tea.Cmd {
	history := append([]llm.Message(nil), m.history...)
	return func() tea.Msg {
		ans, err := m.chat(question, history)
		return answerMsg{exchange{question: question, answer: ans, err: err}}
	}
}

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + qh + 1 // header, status, input box
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil
	case answerMsg:
		m.pending = false
		m.exchanges = append(m.exchanges, msg.exchange)
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.history = append(m.history,
				llm.Message{Role: llm.RoleUser, Content: msg.question},
				llm.Message{Role: llm.RoleAssistant, Content: msg.answer.Text})
			m.status = fmt.Sprintf("%d source(s)", len(msg.answer.Sources))
			if msg.answer.Fallback {
				m.status += ", generation unavailable: showing retrieved context"
			}
		}
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.input.SetValue("")
			m.pending = true
			m.status = "Searching documents..."
			return m, m.ask(q)
		case "tab":
			m.showPassages = !m.showPassages
			m.refresh()
			return m, nil
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the header, transcript, input and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render(m.header)
	transcript := transcriptStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.exchanges) == 0 {
		return "Aucune question pour le moment."
	}
	var b strings.Builder
	for i, ex := range m.exchanges {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("Vous: " + ex.question))
		b.WriteString("\n")
		if ex.err != nil {
			b.WriteString(errorStyle.Render(ex.err.Error()))
			continue
		}
		b.WriteString("UniHelp: " + ex.answer.Text)
		if len(ex.answer.Sources) > 0 {
			b.WriteString("\n")
			b.WriteString(sourceStyle.Render("Sources: " + strings.Join(ex.answer.Sources, ", ")))
		}
		if m.showPassages {
			for j, r := range ex.answer.Results {
				fmt.Fprintf(&b, "\n  [%d] %s  score=%.3f\n  %s", j+1, r.Metadata.Source, r.Score, highlightBestSentence(r.Text, ex.question))
			}
		}
	}
	return b.String()
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	highlightStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe   = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe      = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
)

// highlightBestSentence marks the sentence of text sharing the most words
// with query.
func highlightBestSentence(text, query string) string {
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	qTokens := toTokenSet(query)
	bestIdx, bestScore := -1, 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	out := make([]string, 0, len(sentences))
	for i, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if i == bestIdx {
			s = highlightStyle.Render(s)
		}
		out = append(out, s)
	}
	return strings.Join(out, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := make(map[string]struct{})
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
