package main

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"scribe/format"
	"scribe/hotkey"
	"scribe/session"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// snapshotMsg carries the controller's latest published state.
type snapshotMsg session.Snapshot

// panelController is the part of the session controller the panel drives.
type panelController interface {
	Start()
	Stop()
	Toggle()
	Clear()
	FormatText()
	AutoPunctuate()
	Copy()
	SetText(text string)
	SetLanguage(lang string)
	SetLevel(level format.Level)
}

type panelModel struct {
	ctrl      panelController
	languages []string
	device    string
	hotkey    bool

	snap session.Snapshot

	// text is the editor contents. While the user is typing it runs ahead
	// of the controller, so snapshots are not applied until they catch up
	// with lastSent.
	text     string
	editing  bool
	lastSent string

	confirmClear  bool
	width, height int
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	colorRed    = lipgloss.Color("196")
	colorOrange = lipgloss.Color("208")
	colorGreen  = lipgloss.Color("42")
	colorBlue   = lipgloss.Color("39")
	colorGray   = lipgloss.Color("245")
	colorDim    = lipgloss.Color("241")
	colorFaint  = lipgloss.Color("239")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	recStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	idleStyle     = lipgloss.NewStyle().Foreground(colorDim)
	textStyle     = lipgloss.NewStyle()
	interimStyle  = lipgloss.NewStyle().Foreground(colorDim).Italic(true)
	infoStyle     = lipgloss.NewStyle().Foreground(colorGray)
	helpStyle     = lipgloss.NewStyle().Foreground(colorFaint)
	helpKeyStyle  = lipgloss.NewStyle().Foreground(colorFaint).Bold(true)
	guidanceStyle = lipgloss.NewStyle().Foreground(colorGray).Italic(true)
	confirmStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorOrange)
)

func statusStyle(kind session.StatusKind) lipgloss.Style {
	s := lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder())
	switch kind {
	case session.StatusRecording:
		return s.BorderForeground(colorRed).Foreground(colorRed)
	case session.StatusSuccess:
		return s.BorderForeground(colorGreen).Foreground(colorGreen)
	case session.StatusWarning:
		return s.BorderForeground(colorOrange).Foreground(colorOrange)
	case session.StatusError:
		return s.BorderForeground(colorRed).Foreground(colorRed).Bold(true)
	}
	return s.BorderForeground(colorDim).Foreground(colorGray)
}

func newPanelModel(ctrl panelController, snap session.Snapshot, languages []string, device string, hotkeyOn bool) panelModel {
	return panelModel{
		ctrl:      ctrl,
		languages: languages,
		device:    device,
		hotkey:    hotkeyOn,
		snap:      snap,
		text:      snap.Text,
	}
}

func NewTUIProgram(m panelModel, opts ...tea.ProgramOption) *tea.Program {
	return tea.NewProgram(m, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
}

// sendToTUI delivers msg to the running program, if any.
func sendToTUI(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (m panelModel) Init() tea.Cmd { return nil }

func (m panelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		if m.editing && m.snap.Text == m.lastSent {
			m.editing = false
		}
		if !m.editing || m.snap.State.Active() {
			m.editing = false
			m.text = m.snap.Text
		}

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m panelModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == KeyQuit {
		return m, tea.Quit
	}
	if m.confirmClear {
		m.confirmClear = false
		if key == KeyConfirm || key == KeyConfirmUp {
			m.editing = false
			m.ctrl.Clear()
		}
		return m, nil
	}

	switch key {
	case KeyQuitEsc:
		return m, tea.Quit
	case KeyStart:
		m.editing = false
		m.ctrl.Start()
	case KeyStop:
		m.ctrl.Stop()
	case KeyToggle:
		m.editing = false
		m.ctrl.Toggle()
	case KeyFormat:
		m.editing = false
		m.ctrl.FormatText()
	case KeyPunctuate:
		m.editing = false
		m.ctrl.AutoPunctuate()
	case KeyCopy:
		m.ctrl.Copy()
	case KeyLanguage:
		if !m.snap.State.Active() {
			m.ctrl.SetLanguage(nextLanguage(m.languages, m.snap.Language))
		}
	case KeyLevel:
		m.ctrl.SetLevel(m.snap.Level.Next())
	case KeyClear:
		if strings.TrimSpace(m.text) != "" {
			m.confirmClear = true
		}
	case KeyBackspace:
		if m.text != "" {
			_, size := utf8.DecodeLastRuneInString(m.text)
			m.edit(m.text[:len(m.text)-size])
		}
	case KeyEnter:
		m.edit(m.text + "\n")
	default:
		switch msg.Type {
		case tea.KeyRunes:
			m.edit(m.text + string(msg.Runes))
		case tea.KeySpace:
			m.edit(m.text + " ")
		}
	}
	return m, nil
}

// edit replaces the editor text. The controller refuses edits while a
// recording is active, so the panel does not send them either.
func (m *panelModel) edit(text string) {
	if m.snap.State.Active() {
		return
	}
	m.text = text
	m.editing = true
	m.lastSent = text
	m.ctrl.SetText(text)
}

func nextLanguage(languages []string, current string) string {
	if len(languages) == 0 {
		return current
	}
	for i, l := range languages {
		if l == current {
			return languages[(i+1)%len(languages)]
		}
	}
	return languages[0]
}

func (m panelModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	width := max(m.width-2, 20)

	var b strings.Builder

	header := titleStyle.Render("Scribe")
	if m.snap.State == session.StateRecording || m.snap.State == session.StateStopping {
		header += "  " + recStyle.Render("● REC "+format.FormatElapsed(m.snap.Elapsed))
	} else if m.snap.State.Active() {
		header += "  " + idleStyle.Render("◌ "+strings.ReplaceAll(m.snap.State.String(), "_", " "))
	} else {
		header += "  " + idleStyle.Render("○ idle")
	}
	b.WriteString(header + "\n")

	st := m.snap.Status
	b.WriteString(statusStyle(st.Kind).Width(width-2).Render(st.Text) + "\n")
	if st.Guidance != "" {
		for _, line := range wrapText(st.Guidance, width) {
			b.WriteString(guidanceStyle.Render(line) + "\n")
		}
	}
	b.WriteString("\n")

	b.WriteString(m.renderText(width))
	b.WriteString("\n")

	stats := fmt.Sprintf("%d words · %d chars", format.CountWords(m.text), format.CountChars(m.text))
	b.WriteString(infoStyle.Render(stats) + "\n")
	settings := fmt.Sprintf("lang: %s  punctuation: %s", m.snap.Language, m.snap.Level)
	if m.device != "" {
		settings += "  mic: " + m.device
	}
	b.WriteString(infoStyle.Render(settings) + "\n\n")

	if m.confirmClear {
		b.WriteString(confirmStyle.Render("Clear all text? (y/n)") + "\n")
	} else {
		b.WriteString(m.renderHelp() + "\n")
	}
	b.WriteString(helpStyle.Render("scribe " + version))

	return lipgloss.NewStyle().Padding(0, 1).Render(b.String())
}

func (m panelModel) renderText(width int) string {
	var b strings.Builder
	if m.snap.State.Active() {
		final := strings.TrimRight(m.snap.Final, " ")
		if final != "" {
			for _, line := range wrapText(final, width) {
				b.WriteString(textStyle.Render(line) + "\n")
			}
		}
		if m.snap.Interim != "" {
			for _, line := range wrapText(m.snap.Interim, width) {
				b.WriteString(interimStyle.Render(line) + "\n")
			}
		}
		if b.Len() == 0 {
			b.WriteString(idleStyle.Render("Listening...") + "\n")
		}
		return b.String()
	}
	if m.text == "" {
		start := "F1"
		if m.hotkey {
			start += " or " + hotkey.Combo
		}
		return idleStyle.Render("Press "+start+" and start speaking, or type here.") + "\n"
	}
	for _, line := range wrapText(m.text, width) {
		b.WriteString(textStyle.Render(line) + "\n")
	}
	return b.String()
}

func (m panelModel) renderHelp() string {
	pairs := [][2]string{
		{"F1", "start"}, {"F2", "stop"}, {"F3", "format"}, {"F4", "punctuate"},
		{"F5", "copy"}, {"F6", "language"}, {"F7", "punctuation"}, {"^L", "clear"}, {"Esc", "quit"},
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = helpKeyStyle.Render(p[0]) + helpStyle.Render(" "+p[1])
	}
	return strings.Join(parts, helpStyle.Render("  "))
}

// wrapText splits text into lines of at most width runes, breaking at the
// last space where possible. Newlines in text always start a new line.
func wrapText(text string, width int) []string {
	if width <= 0 {
		width = 1
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		rs := []rune(para)
		if len(rs) == 0 {
			lines = append(lines, "")
			continue
		}
		for len(rs) > width {
			splitAt := width
			for i := width; i > 0; i-- {
				if rs[i] == ' ' {
					splitAt = i
					break
				}
			}
			lines = append(lines, string(rs[:splitAt]))
			rs = rs[splitAt:]
			for len(rs) > 0 && rs[0] == ' ' {
				rs = rs[1:]
			}
		}
		if len(rs) > 0 {
			lines = append(lines, string(rs))
		}
	}
	return lines
}
