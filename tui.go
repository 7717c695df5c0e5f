package main

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"mediassist/fault"
)

// TUI message types
type noticeMsg struct {
	Level Level
	Text  string
}
type busyMsg struct{ Label string }
type chatMsg struct{ From, Text string }
type composeMsg struct{ Text string }
type lockMsg struct{ Locked bool }
type showMsg struct {
	Title string
	Lines []string
}
type commandDoneMsg struct{ Err error }

// tuiDisplay forwards display calls into the Bubble Tea event loop.
type tuiDisplay struct {
	p *tea.Program
}

func (d *tuiDisplay) send(msg tea.Msg) {
	if d.p != nil {
		d.p.Send(msg)
	}
}

func (d *tuiDisplay) Notice(level Level, text string) { d.send(noticeMsg{level, text}) }
func (d *tuiDisplay) Busy(label string)               { d.send(busyMsg{label}) }
func (d *tuiDisplay) Chat(from, text string)          { d.send(chatMsg{from, text}) }
func (d *tuiDisplay) Compose(text string)             { d.send(composeMsg{text}) }
func (d *tuiDisplay) LockCompose(locked bool)         { d.send(lockMsg{locked}) }
func (d *tuiDisplay) Show(title string, lines []string) {
	d.send(showMsg{title, lines})
}

const maxChatLines = 500

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	youStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	botStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	busyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("245")).Padding(0, 1)
	noticeStyles = map[Level]lipgloss.Style{
		LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		LevelSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

type chatEntry struct{ from, text string }

type tuiModel struct {
	ctx     context.Context
	a       *app
	input   textinput.Model
	spinner spinner.Model

	width, height int
	device        string
	backend       string

	chat        []chatEntry
	notice      string
	noticeLevel Level
	busy        string
	locked      bool
	panelTitle  string
	panel       []string
}

func newModel(ctx context.Context, a *app, device, backend string) tuiModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message or /help"
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(busyStyle))
	return tuiModel{ctx: ctx, a: a, input: ti, spinner: sp, device: device, backend: backend}
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// submit runs a compose line off the event loop; display calls made while
// it runs come back as messages.
func (m tuiModel) submit(line string) tea.Cmd {
	a, ctx := m.a, m.ctx
	return func() tea.Msg {
		return commandDoneMsg{a.submit(ctx, line)}
	}
}

func (m tuiModel) dismiss() tea.Cmd {
	a := m.a
	return func() tea.Msg {
		a.dismiss()
		return nil
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(msg.Width-4, 10)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.notice = ""
			return m, m.dismiss()
		case "enter":
			if m.locked {
				m.notice, m.noticeLevel = errComposeLocked.Error(), LevelError
				return m, nil
			}
			line := m.input.Value()
			m.input.Reset()
			return m, m.submit(line)
		}
		if m.locked {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case commandDoneMsg:
		if errors.Is(msg.Err, errQuit) {
			return m, tea.Quit
		}
		if msg.Err != nil {
			m.notice, m.noticeLevel = fault.Message(msg.Err), LevelError
		}

	case noticeMsg:
		m.notice, m.noticeLevel = msg.Text, msg.Level

	case busyMsg:
		m.busy = msg.Label

	case chatMsg:
		m.chat = append(m.chat, chatEntry{msg.From, msg.Text})
		if len(m.chat) > maxChatLines {
			m.chat = m.chat[len(m.chat)-maxChatLines:]
		}

	case composeMsg:
		m.input.SetValue(msg.Text)
		m.input.CursorEnd()

	case lockMsg:
		m.locked = msg.Locked
		if m.locked {
			m.input.Blur()
			return m, nil
		}
		return m, m.input.Focus()

	case showMsg:
		m.panelTitle, m.panel = msg.Title, msg.Lines
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	width := m.width

	header := titleStyle.Render("MediAssist") + dimStyle.Render("  "+m.backend+"  mic: "+m.device)

	var footer []string
	if m.busy != "" {
		footer = append(footer, m.spinner.View()+busyStyle.Render(m.busy))
	}
	if m.notice != "" {
		footer = append(footer, noticeStyles[m.noticeLevel].Width(width).Render(m.notice))
	}
	footer = append(footer, m.input.View())
	footer = append(footer, keyStyle.Render("Ctrl+Space")+helpStyle.Render(" hold to dictate and send  ")+
		keyStyle.Render("+Shift")+helpStyle.Render(" dictate into compose  ")+
		keyStyle.Render("Esc")+helpStyle.Render(" close panel  /help"))
	footerView := strings.Join(footer, "\n")

	var panelView string
	if m.panelTitle != "" {
		body := titleStyle.Render(m.panelTitle) + "\n" + strings.Join(m.panel, "\n")
		panelView = panelStyle.Width(width - 2).Render(body)
	}

	avail := m.height - lipgloss.Height(header) - lipgloss.Height(footerView) - 1
	if panelView != "" {
		avail -= lipgloss.Height(panelView)
	}
	chat := m.renderChat(width, max(avail, 0))

	parts := []string{header, chat}
	if panelView != "" {
		parts = append(parts, panelView)
	}
	parts = append(parts, footerView)
	return strings.Join(parts, "\n")
}

// renderChat returns the newest chat lines that fit in height rows.
func (m tuiModel) renderChat(width, height int) string {
	var lines []string
	if len(m.chat) == 0 {
		lines = []string{dimStyle.Render("No messages yet")}
	}
	body := lipgloss.NewStyle().Width(max(width-2, 10))
	for _, e := range m.chat {
		label := youStyle.Render("you")
		if e.from != "you" {
			label = botStyle.Render(e.from)
		}
		lines = append(lines, label)
		lines = append(lines, strings.Split(body.Render(e.text), "\n")...)
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
