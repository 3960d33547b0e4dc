// Package tui is the interactive chat surface: a Bubble Tea program
// with a scrollback viewport, a single-line prompt and markdown-rendered
// answers. Each program instance is bound to one session, so history
// never leaks across chats.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"

	"github.com/nyayalabs/nyaya/internal/rag"
)

// Asker is the TUI-facing slice of the pipeline.
type Asker interface {
	Ask(ctx context.Context, sessionID uuid.UUID, question string) (*rag.Answer, error)
}

// entry is one rendered exchange in the transcript.
type entry struct {
	question string
	answer   *rag.Answer
	err      error
}

// answerMsg delivers an async pipeline result back into Update.
type answerMsg struct {
	question string
	answer   *rag.Answer
	err      error
}

// Model is the Bubble Tea model for the chat UI.
type Model struct {
	pipeline  Asker
	sessionID uuid.UUID
	title     string

	input    textinput.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer

	transcript []entry
	status     string
	thinking   bool
	ready      bool
	width      int
}

// New creates a chat model bound to one session.
func New(pipeline Asker, sessionID uuid.UUID, title string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about a statute, e.g. \"section 27\""
	ti.Focus()
	ti.CharLimit = 0

	return Model{
		pipeline:  pipeline,
		sessionID: sessionID,
		title:     title,
		input:     ti,
		viewport:  viewport.New(0, 0),
		status:    "Ready. Type a question and press Enter.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + ih + 1 + 1 // header, input frame, input line, status
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.renderer = newRenderer(m.viewport.Width)
		m.refreshTranscript()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.String() == "esc" {
			return m, tea.Quit
		}
		if msg.String() == "enter" && !m.thinking {
			question := strings.TrimSpace(m.input.Value())
			if question == "" {
				break
			}
			m.input.Reset()
			m.thinking = true
			m.status = "Thinking..."
			return m, askCmd(m.pipeline, m.sessionID, question)
		}

	case answerMsg:
		m.thinking = false
		m.transcript = append(m.transcript, entry{
			question: msg.question,
			answer:   msg.answer,
			err:      msg.err,
		})
		if msg.err != nil {
			m.status = errorStyle.Render("Error: " + msg.err.Error())
		} else if msg.answer.Refused {
			m.status = "No relevant statute found."
		} else {
			m.status = fmt.Sprintf("Answered from %d chunks in %s.",
				msg.answer.Retrieved, msg.answer.Elapsed.Round(10*time.Millisecond))
		}
		m.refreshTranscript()
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Nyaya") + " " + titleStyle.Render(m.title)
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Width(max(20, m.width-2)).Render(m.input.View()) + "\n" +
		statusStyle.Render(m.status)
}

func askCmd(pipeline Asker, sessionID uuid.UUID, question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := pipeline.Ask(context.Background(), sessionID, question)
		return answerMsg{question: question, answer: answer, err: err}
	}
}

func (m *Model) refreshTranscript() {
	m.viewport.SetContent(renderTranscript(m.transcript, m.renderer))
}

func renderTranscript(transcript []entry, renderer *glamour.TermRenderer) string {
	if len(transcript) == 0 {
		return "No questions yet."
	}
	blocks := make([]string, 0, len(transcript))
	for _, e := range transcript {
		blocks = append(blocks, renderEntry(e, renderer))
	}
	return strings.Join(blocks, "\n")
}

func renderEntry(e entry, renderer *glamour.TermRenderer) string {
	var b strings.Builder
	b.WriteString(questionStyle.Render("You: "+e.question) + "\n")

	switch {
	case e.err != nil:
		b.WriteString(errorStyle.Render("Error: "+e.err.Error()) + "\n")
	case e.answer.Refused:
		b.WriteString(refusalStyle.Render(e.answer.Text) + "\n")
	default:
		b.WriteString(renderMarkdown(e.answer.Text, renderer))
		if len(e.answer.Sources) > 0 {
			b.WriteString(sourceStyle.Render(formatSources(e.answer.Sources)) + "\n")
		}
	}
	return b.String()
}

// renderMarkdown falls back to plain text when glamour is unavailable
// or fails (e.g. dumb terminals).
func renderMarkdown(text string, renderer *glamour.TermRenderer) string {
	if renderer == nil {
		return text + "\n"
	}
	out, err := renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

func formatSources(sources []rag.Source) string {
	parts := make([]string, 0, len(sources))
	for _, src := range sources {
		parts = append(parts, fmt.Sprintf("%s#%s (%.1f)", src.Source, src.Chunk, src.Score))
	}
	return "Sources: " + strings.Join(parts, ", ")
}

func newRenderer(width int) *glamour.TermRenderer {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return renderer
}

// Run starts the program in the alternate screen and blocks until the
// user quits.
func Run(pipeline Asker, sessionID uuid.UUID, title string) error {
	program := tea.NewProgram(New(pipeline, sessionID, title), tea.WithAltScreen())
	_, err := program.Run()
	return err
}
