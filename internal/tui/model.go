package tui

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"studymate/internal/domain"
	"studymate/internal/session"
)

// SessionPort is the TUI-facing subset of the session.
type SessionPort interface {
	ProcessPDFs(ctx context.Context, uploads []domain.Upload) (session.ProcessResult, error)
	Ask(ctx context.Context, question string) (session.AskResult, error)
	Status() session.Status
	Transcript() string
}

// UploadReader turns path arguments into uploads.
type UploadReader func(patterns []string) ([]domain.Upload, error)

type focus int

const (
	focusQuestion focus = iota
	focusFiles
)

type (
	processedMsg struct {
		res session.ProcessResult
		err error
	}
	answeredMsg struct {
		res session.AskResult
		err error
	}
	savedMsg struct {
		path string
		err  error
	}
)

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx            context.Context
	session        SessionPort
	readUploads    UploadReader
	transcriptPath string

	files    textinput.Model
	question textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	focus    focus

	last     *session.AskResult
	overview string
	status   string
	cursor   int
	busy     bool
	ready    bool
}

// New creates a new TUI model instance. Preload, when non-empty, is processed
// as soon as the program starts.
func New(ctx context.Context, s SessionPort, read UploadReader, transcriptPath string, preload []string) Model {
	fi := textinput.New()
	fi.Prompt = "files> "
	fi.Placeholder = "PDF paths or globs, Enter to process"
	fi.SetValue(strings.Join(preload, " "))

	qi := textinput.New()
	qi.Prompt = "ask> "
	qi.Placeholder = "Type a question and press Enter"
	qi.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:            ctx,
		session:        s,
		readUploads:    read,
		transcriptPath: transcriptPath,
		files:          fi,
		question:       qi,
		viewport:       viewport.New(0, 0),
		spinner:        sp,
		status:         "Tab switches between files and question. Ctrl+S saves history.",
	}
	if len(preload) > 0 {
		m.busy = true
		m.status = "Processing documents..."
	}
	return m
}

// Init starts the cursor blink and any preload.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if m.busy {
		cmds = append(cmds, m.spinner.Tick, m.processCmd(strings.Fields(m.files.Value())))
	}
	return tea.Batch(cmds...)
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + 2*(qh+1) + 1 // header, sidebar, two inputs, status
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderAnswer())
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case processedMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
		case msg.res.NoChunks:
			m.status = "No text chunks could be extracted. " + skippedSummary(msg.res.Skipped)
		default:
			m.overview = msg.res.Overview
			m.status = fmt.Sprintf("Processed %d file(s) into %d chunks. %s", len(msg.res.Processed), msg.res.ChunkCount, skippedSummary(msg.res.Skipped))
			m.files.SetValue("")
			m.setFocus(focusQuestion)
		}
		m.viewport.SetContent(m.renderAnswer())
		return m, nil

	case answeredMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			return m, nil
		}
		res := msg.res
		m.last = &res
		m.cursor = 0
		m.status = fmt.Sprintf("Answered with %d source(s)", len(res.Sources))
		m.question.SetValue("")
		m.viewport.SetContent(m.renderAnswer())
		return m, nil

	case savedMsg:
		if msg.err != nil {
			m.status = "Save failed: " + msg.err.Error()
		} else {
			m.status = "History saved to " + msg.path
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+s":
			return m, m.saveCmd()
		case "tab", "shift+tab":
			if m.focus == focusQuestion {
				m.setFocus(focusFiles)
			} else {
				m.setFocus(focusQuestion)
			}
			return m, nil
		case "enter":
			return m.submit()
		case "down":
			if m.last != nil && len(m.last.Sources) > 0 {
				m.cursor = (m.cursor + 1) % len(m.last.Sources)
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		case "up":
			if m.last != nil && len(m.last.Sources) > 0 {
				m.cursor = (m.cursor - 1 + len(m.last.Sources)) % len(m.last.Sources)
				m.viewport.SetContent(m.renderAnswer())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	if m.focus == focusFiles {
		m.files, cmd = m.files.Update(msg)
	} else {
		m.question, cmd = m.question.Update(msg)
	}
	return m, cmd
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	if f == focusFiles {
		m.question.Blur()
		m.files.Focus()
	} else {
		m.files.Blur()
		m.question.Focus()
	}
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.focus == focusFiles {
		paths := strings.Fields(m.files.Value())
		if len(paths) == 0 {
			return m, nil
		}
		m.busy = true
		m.status = "Processing documents..."
		return m, tea.Batch(m.spinner.Tick, m.processCmd(paths))
	}
	q := strings.TrimSpace(m.question.Value())
	if q == "" {
		return m, nil
	}
	m.busy = true
	m.status = "Thinking..."
	return m, tea.Batch(m.spinner.Tick, m.askCmd(q))
}

func (m Model) processCmd(paths []string) tea.Cmd {
	return func() tea.Msg {
		uploads, err := m.readUploads(paths)
		if err != nil {
			return processedMsg{err: err}
		}
		res, err := m.session.ProcessPDFs(m.ctx, uploads)
		return processedMsg{res: res, err: err}
	}
}

func (m Model) askCmd(q string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.session.Ask(m.ctx, q)
		return answeredMsg{res: res, err: err}
	}
}

func (m Model) saveCmd() tea.Cmd {
	path, transcript := m.transcriptPath, m.session.Transcript()
	return func() tea.Msg {
		return savedMsg{path: path, err: os.WriteFile(path, []byte(transcript), 0o644)}
	}
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("StudyMate")
	sidebar := sidebarStyle.Render(m.renderStatus())
	body := resultBoxStyle.Render(m.viewport.View())
	files := queryBoxStyle.Render(m.files.View())
	question := queryBoxStyle.Render(m.question.View())
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	status = statusStyle.Render(status)
	return header + "\n" + sidebar + "\n" + body + "\n" + files + "\n" + question + "\n" + status
}

func (m Model) renderStatus() string {
	st := m.session.Status()
	files := "none"
	if len(st.Files) > 0 {
		files = strings.Join(st.Files, ", ")
	}
	ready := "no"
	if st.Ready {
		ready = "yes"
	}
	return fmt.Sprintf("Files: %s | Ready: %s | Questions: %d | Model: %s", files, ready, st.Questions, st.Mode)
}

func (m Model) renderAnswer() string {
	var b strings.Builder
	if m.overview != "" {
		b.WriteString(dimStyle.Render("Overview: "+m.overview) + "\n\n")
	}
	if m.last == nil {
		b.WriteString("No answers yet.")
		return b.String()
	}
	b.WriteString(answerStyle.Render("Q: "+m.last.Question) + "\n")
	b.WriteString("A: " + m.last.Answer + "\n")
	if len(m.last.Sources) == 0 {
		return b.String()
	}
	src := m.last.Sources[m.cursor]
	fmt.Fprintf(&b, "\nSource %d/%d  %s #%d  distance=%.3f\n\n", m.cursor+1, len(m.last.Sources), src.Source, src.ChunkID, src.Distance)
	b.WriteString(highlightBestSentence(src.Preview, m.last.Question))
	return b.String()
}

func skippedSummary(skipped []session.SkippedFile) string {
	if len(skipped) == 0 {
		return ""
	}
	parts := make([]string, len(skipped))
	for i, s := range skipped {
		parts[i] = s.Name + " (" + s.Reason + ")"
	}
	return "Skipped: " + strings.Join(parts, ", ")
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	sidebarStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sent = highlightStyle.Render(sent)
		}
		sentences[i] = sent
	}
	return strings.Join(sentences, " ")
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
	seen := map[string]struct{}{}
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
