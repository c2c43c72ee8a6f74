// Package ui provides the terminal interface for narrate.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/engine"
	"github.com/dgnsrekt/narrate/internal/narration"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	te "github.com/muesli/termenv"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	ellipsis             = "…"
	defaultWidth         = 80
)

// Player is the part of the engine the UI drives.
type Player interface {
	TogglePlayPause()
	SkipNext()
	SkipPrevious()
	Stop()
	ClearQueue()
	Snapshot() engine.Snapshot
	Subscribe(fn func()) (unsubscribe func())
}

// NewProgram returns a new Tea program. start, when not nil, runs once the
// program is up; use it to enqueue the initial articles.
func NewProgram(cfg Config, p Player, start func()) *tea.Program {
	log.Debug("starting narrate ui", "glamour", cfg.GlamourEnabled, "alt_screen", cfg.AltScreen)

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, p, start), opts...)
}

// Sender receives messages for a running program.
type Sender interface {
	Send(msg tea.Msg)
}

// Attach forwards engine changes and signals to s until detach is called.
// Player mutations made from Update run as commands, so a blocking Send
// never waits on the event loop it is feeding.
func Attach(s Sender, p Player, sig *engine.Signals) (detach func(), err error) {
	var unsubs []func()
	detach = func() {
		for i := len(unsubs) - 1; i >= 0; i-- {
			unsubs[i]()
		}
	}

	unsubs = append(unsubs, p.Subscribe(func() {
		s.Send(snapshotMsg(p.Snapshot()))
	}))
	if sig == nil {
		return detach, nil
	}

	hooks := []func() (func(), error){
		func() (func(), error) {
			return sig.OnDuplicate(func(id string) { s.Send(signalMsg{kind: signalDuplicate, id: id}) })
		},
		func() (func(), error) {
			return sig.OnListened(func(id string) { s.Send(signalMsg{kind: signalListened, id: id}) })
		},
		func() (func(), error) {
			return sig.OnFallback(func(id, reason string) { s.Send(signalMsg{kind: signalFallback, id: id, reason: reason}) })
		},
		func() (func(), error) {
			return sig.OnDropped(func(id, reason string) { s.Send(signalMsg{kind: signalDropped, id: id, reason: reason}) })
		},
	}
	for _, h := range hooks {
		unsub, err := h()
		if err != nil {
			detach()
			return nil, fmt.Errorf("unable to subscribe to signals: %w", err)
		}
		unsubs = append(unsubs, unsub)
	}
	return detach, nil
}

type signalKind int

const (
	signalDuplicate signalKind = iota
	signalListened
	signalFallback
	signalDropped
)

type (
	snapshotMsg engine.Snapshot
	signalMsg   struct {
		kind   signalKind
		id     string
		reason string
	}
	summaryRenderedMsg struct {
		id  string
		out string
	}
	statusMessageTimeoutMsg int
	errMsg                  struct{ err error }
)

func (e errMsg) Error() string { return e.err.Error() }

type model struct {
	cfg    Config
	player Player
	start  func()

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	width  int
	height int

	snap   engine.Snapshot
	titles map[string]string

	summaryID string
	summary   string

	startedID string
	startedAt time.Time

	statusMessage string
	statusIsError bool
	statusSeq     int
	statusTimeout time.Duration
}

func newModel(cfg Config, p Player, start func()) model {
	if cfg.GlamourStyle == "" || cfg.GlamourStyle == styles.AutoStyle {
		if te.HasDarkBackground() {
			cfg.GlamourStyle = styles.DarkStyle
		} else {
			cfg.GlamourStyle = styles.LightStyle
		}
	}

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(fuchsia)

	m := model{
		cfg:     cfg,
		player:  p,
		start:   start,
		keys:    newKeyMap(),
		help:    help.New(),
		spinner: sp,
		width:   defaultWidth,
		titles:  map[string]string{},

		statusTimeout: statusMessageTimeout,
	}
	m.applySnapshot(p.Snapshot())
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.start != nil {
		start := m.start
		cmds = append(cmds, func() tea.Msg {
			start()
			return nil
		})
	}
	return tea.Batch(cmds...)
}

// act runs a player mutation off the event loop.
func act(fn func()) tea.Cmd {
	return func() tea.Msg {
		fn()
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Toggle):
			return m, act(m.player.TogglePlayPause)
		case key.Matches(msg, m.keys.Next):
			return m, act(m.player.SkipNext)
		case key.Matches(msg, m.keys.Previous):
			return m, act(m.player.SkipPrevious)
		case key.Matches(msg, m.keys.Stop):
			return m, act(m.player.Stop)
		case key.Matches(msg, m.keys.Clear):
			cmd := m.showStatusMessage("Queue cleared", false)
			return m, tea.Batch(act(m.player.ClearQueue), cmd)
		case key.Matches(msg, m.keys.Copy):
			a, ok := m.snap.Current()
			if !ok {
				cmd := m.showStatusMessage("Nothing to copy", true)
				return m, cmd
			}
			text := a.Title
			if a.Source != "" {
				text += " (" + a.Source + ")"
			}
			// Copy using OSC 52
			te.Copy(text)
			// Copy using native system clipboard
			_ = clipboard.WriteAll(text)
			cmd := m.showStatusMessage("Copied title", false)
			return m, cmd
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}

	case tea.WindowSizeMsg:
		resized := msg.Width != m.width
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		if resized {
			m.summaryID = ""
			cmds = append(cmds, m.refreshSummary())
		}

	case snapshotMsg:
		m.applySnapshot(engine.Snapshot(msg))
		cmds = append(cmds, m.refreshSummary())

	case signalMsg:
		text, isErr := m.describeSignal(msg)
		cmds = append(cmds, m.showStatusMessage(text, isErr))

	case summaryRenderedMsg:
		if a, ok := m.snap.Current(); ok && a.ID == msg.id {
			m.summary = msg.out
		}

	case statusMessageTimeoutMsg:
		if int(msg) == m.statusSeq {
			m.statusMessage = ""
			m.statusIsError = false
		}

	case errMsg:
		log.Error("ui error", "error", msg.err)
		cmds = append(cmds, m.showStatusMessage(msg.Error(), true))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) applySnapshot(s engine.Snapshot) {
	m.snap = s
	for _, a := range s.Queue {
		m.titles[a.ID] = a.Title
	}
	a, ok := s.Current()
	switch {
	case !ok || s.State == narration.StateStopped:
		m.startedID = ""
	case a.ID != m.startedID:
		m.startedID = a.ID
		m.startedAt = time.Now()
	}
}

func (m *model) refreshSummary() tea.Cmd {
	a, ok := m.snap.Current()
	if !ok {
		m.summaryID, m.summary = "", ""
		return nil
	}
	if a.ID == m.summaryID {
		return nil
	}
	m.summaryID = a.ID
	m.summary = ""
	if strings.TrimSpace(a.Summary) == "" {
		return nil
	}
	cfg, id, src, width := m.cfg, a.ID, a.Summary, m.contentWidth()
	return func() tea.Msg {
		out, err := renderMarkdown(cfg, src, width)
		if err != nil {
			return errMsg{err}
		}
		return summaryRenderedMsg{id: id, out: out}
	}
}

func (m *model) showStatusMessage(text string, isError bool) tea.Cmd {
	m.statusSeq++
	m.statusMessage = text
	m.statusIsError = isError
	seq := m.statusSeq
	return tea.Tick(m.statusTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg(seq)
	})
}

func (m model) titleOf(id string) string {
	if t := m.titles[id]; t != "" {
		return t
	}
	return id
}

func (m model) describeSignal(s signalMsg) (string, bool) {
	title := m.titleOf(s.id)
	switch s.kind {
	case signalDuplicate:
		return "Already queued: " + title, false
	case signalListened:
		return "Finished: " + title, false
	case signalFallback:
		return "Remote failed, narrating on device: " + title, false
	case signalDropped:
		return fmt.Sprintf("Skipped %s: %s", title, s.reason), true
	default:
		return title, false
	}
}

func (m model) contentWidth() int {
	w := m.width
	if limit := int(m.cfg.GlamourMaxWidth); limit > 0 && w > limit { //nolint:gosec
		w = limit
	}
	if w <= 0 {
		w = defaultWidth
	}
	return w
}

func renderMarkdown(cfg Config, md string, width int) (string, error) {
	if !cfg.GlamourEnabled {
		return md, nil
	}
	opts := []glamour.TermRendererOption{
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		glamour.WithWordWrap(width),
	}
	if styles.DefaultStyles[cfg.GlamourStyle] != nil {
		opts = append(opts, glamour.WithStandardStyle(cfg.GlamourStyle))
	} else {
		opts = append(opts, glamour.WithStylePath(cfg.GlamourStyle))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("unable to render markdown: %w", err)
	}
	return strings.TrimRight(out, "\n"), nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n\n")
	b.WriteString(m.queueView())
	b.WriteString("\n\n")
	if a, ok := m.snap.Current(); ok && strings.TrimSpace(a.Summary) != "" {
		b.WriteString(sectionStyle.Render("Summary"))
		b.WriteString("\n")
		if m.summary != "" {
			b.WriteString(m.summary)
		} else {
			b.WriteString(headerNoteStyle.Render("rendering" + ellipsis))
		}
		b.WriteString("\n\n")
	}
	b.WriteString(m.statusBarView())
	return b.String()
}

func (m model) headerView() string {
	s := m.snap
	state := stateStyle(s.State).Render(stateIcon(s.State) + " " + s.State.String())
	if s.State == narration.StatePlaying {
		state = m.spinner.View() + state
	}

	var notes []string
	if p := s.Phase.String(); p != "" {
		notes = append(notes, p)
	}
	if s.Backend != "" && s.State != narration.StateStopped {
		notes = append(notes, string(s.Backend))
	}
	if m.startedID != "" {
		notes = append(notes, "started "+humanize.Time(m.startedAt))
	}

	line := logoStyle.Render("narrate") + " " + state
	if len(notes) > 0 {
		line += headerNoteStyle.Render(" · " + strings.Join(notes, " · "))
	}
	return truncate.StringWithTail(line, uint(max(0, m.width)), ellipsis) //nolint:gosec
}

func (m model) queueView() string {
	q := m.snap.Queue
	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Queue (%d)", len(q))))
	b.WriteString("\n")
	if len(q) == 0 {
		b.WriteString(headerNoteStyle.Render("  Nothing queued."))
		return b.String()
	}

	from, to := m.visibleRange(len(q))
	if from > 0 {
		b.WriteString(headerNoteStyle.Render(fmt.Sprintf("  %s %d more", ellipsis, from)))
		b.WriteString("\n")
	}
	for i := from; i < to; i++ {
		a := q[i]
		prefix, style := "  ", itemStyle
		if i == m.snap.CurrentIndex {
			prefix, style = "› ", currentItemStyle
		}
		line := style.Render(fmt.Sprintf("%s%d. %s", prefix, i+1, a.Title))
		if a.Source != "" {
			line += itemSourceStyle.Render(" · " + a.Source)
		}
		b.WriteString(truncate.StringWithTail(line, uint(max(0, m.width)), ellipsis)) //nolint:gosec
		if i < to-1 {
			b.WriteString("\n")
		}
	}
	if to < len(q) {
		b.WriteString("\n")
		b.WriteString(headerNoteStyle.Render(fmt.Sprintf("  %s %d more", ellipsis, len(q)-to)))
	}
	return b.String()
}

// visibleRange keeps the current item on screen when the queue is longer
// than the space left for it.
func (m model) visibleRange(n int) (int, int) {
	rows := n
	if m.height > 0 {
		rows = max(3, m.height/2)
	}
	if n <= rows {
		return 0, n
	}
	from := max(0, m.snap.CurrentIndex-rows/2)
	to := from + rows
	if to > n {
		to = n
		from = n - rows
	}
	return from, to
}

func (m model) statusBarView() string {
	if m.statusMessage != "" {
		msg := truncate.StringWithTail(" "+m.statusMessage+" ", uint(max(0, m.width)), ellipsis) //nolint:gosec
		if m.statusIsError {
			return statusBarErrorStyle(msg)
		}
		return statusBarMessageStyle(msg)
	}
	return m.help.View(m.keys)
}
