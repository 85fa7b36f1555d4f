// Package tui renders the live interview view and maps keys to session commands.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/souhaylelhammadi/entretien/internal/fsm"
	"github.com/souhaylelhammadi/entretien/internal/ipc"
	"github.com/souhaylelhammadi/entretien/internal/media"
	"github.com/souhaylelhammadi/entretien/internal/session"
)

// Commander accepts session commands.
type Commander interface {
	Handle(ctx context.Context, req ipc.Request) ipc.Response
}

type viewMsg session.View

type previewMsg struct {
	info  media.Info
	bound bool
}

type noticeMsg struct {
	text  string
	isErr bool
}

type tickMsg time.Time

var keyCommands = map[string]string{
	"n":      ipc.CommandNext,
	"right":  ipc.CommandNext,
	"p":      ipc.CommandPrevious,
	"left":   ipc.CommandPrevious,
	"r":      ipc.CommandNarrate,
	"m":      ipc.CommandMute,
	"t":      ipc.CommandRetry,
	"q":      ipc.CommandHangup,
	"ctrl+c": ipc.CommandHangup,
}

// UI is the bubbletea program plus the session Observer and media Preview
// it exposes.
type UI struct {
	program *tea.Program
	updates chan tea.Msg
	done    chan struct{}

	mu        sync.Mutex
	commander Commander
	latest    *viewMsg
	started   bool
}

// Options configures the live view.
type Options struct {
	MaxDuration time.Duration
	Input       io.Reader
	Output      io.Writer
	AltScreen   bool
}

// New builds a UI. Call Attach before Start.
func New(opts Options) *UI {
	u := &UI{
		updates: make(chan tea.Msg, 16),
		done:    make(chan struct{}),
	}
	m := newModel(opts.MaxDuration, u.send)
	programOpts := []tea.ProgramOption{}
	if opts.AltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	}
	u.program = tea.NewProgram(m, programOpts...)
	return u
}

// Attach sets the command target for key bindings.
func (u *UI) Attach(c Commander) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.commander = c
}

// Observe implements session.Observer. Only the newest view is kept when
// the program lags behind.
func (u *UI) Observe(v session.View) {
	msg := viewMsg(v)
	u.mu.Lock()
	u.latest = &msg
	u.mu.Unlock()
	select {
	case u.updates <- nil:
	default:
	}
}

// Bind implements media.Preview.
func (u *UI) Bind(info media.Info) {
	u.enqueue(previewMsg{info: info, bound: true})
}

// Unbind implements media.Preview.
func (u *UI) Unbind() {
	u.enqueue(previewMsg{})
}

func (u *UI) enqueue(msg tea.Msg) {
	select {
	case u.updates <- msg:
	default:
	}
}

// Start runs the program until Stop. The returned channel carries the
// program exit error.
func (u *UI) Start() <-chan error {
	errCh := make(chan error, 1)
	u.mu.Lock()
	u.started = true
	u.mu.Unlock()

	go u.pump()
	go func() {
		_, err := u.program.Run()
		close(u.done)
		errCh <- err
	}()
	return errCh
}

// Stop quits the program and waits for it to release the terminal.
func (u *UI) Stop() {
	u.mu.Lock()
	started := u.started
	u.mu.Unlock()
	if !started {
		return
	}
	u.program.Quit()
	<-u.done
}

// pump forwards queued messages so Observe never blocks the session loop.
func (u *UI) pump() {
	for {
		select {
		case <-u.done:
			return
		case msg := <-u.updates:
			if msg == nil {
				u.mu.Lock()
				latest := u.latest
				u.latest = nil
				u.mu.Unlock()
				if latest == nil {
					continue
				}
				msg = *latest
			}
			u.program.Send(msg)
		}
	}
}

func (u *UI) send(command string) ipc.Response {
	u.mu.Lock()
	c := u.commander
	u.mu.Unlock()
	if c == nil {
		return ipc.Response{OK: false, Error: "session not ready"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return c.Handle(ctx, ipc.Request{Command: command})
}

type model struct {
	send        func(string) ipc.Response
	maxDuration time.Duration

	view    session.View
	preview media.Info
	bound   bool
	notice  noticeMsg
	width   int
	frame   int
}

func newModel(maxDuration time.Duration, send func(string) ipc.Response) model {
	return model{send: send, maxDuration: maxDuration, view: session.View{Phase: fsm.StateIdle}}
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case tea.KeyMsg:
		command, ok := keyCommands[msg.String()]
		if !ok {
			return m, nil
		}
		send := m.send
		return m, func() tea.Msg {
			resp := send(command)
			if !resp.OK {
				return noticeMsg{text: resp.Error, isErr: true}
			}
			return noticeMsg{text: resp.Message}
		}
	case tickMsg:
		m.frame++
		return m, tick()
	case viewMsg:
		m.view = session.View(msg)
	case previewMsg:
		m.preview = msg.info
		m.bound = msg.bound
	case noticeMsg:
		m.notice = msg
	}
	return m, nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	liveStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKey     = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	phaseColors = map[fsm.State]string{
		fsm.StateRecording:     "114",
		fsm.StateNarrating:     "141",
		fsm.StateListening:     "78",
		fsm.StateTransitioning: "221",
		fsm.StateFinalizing:    "221",
		fsm.StateError:         "203",
	}
)

func (m model) View() string {
	st := m.view.State
	var lines []string

	title := m.view.Title
	if title == "" {
		title = "Interview"
	}
	lines = append(lines, titleStyle.Render(title)+"  "+m.phaseBadge())

	progress := fmt.Sprintf("%s elapsed", clock(st.ElapsedSeconds))
	if m.maxDuration > 0 {
		progress = fmt.Sprintf("%s / %s", clock(st.ElapsedSeconds), clock(int(m.maxDuration.Seconds())))
	}
	if len(st.Questions) > 0 {
		progress = fmt.Sprintf("Question %d/%d · %s · %d answered", st.CurrentQuestionIndex+1, len(st.Questions), progress, len(st.Transcripts))
	}
	lines = append(lines, dimStyle.Render(progress))
	lines = append(lines, dimStyle.Render(m.deviceLine()))
	lines = append(lines, "")

	if question, ok := st.CurrentQuestion(); ok {
		lines = append(lines, textStyle.Render(wrap(question.Text, m.wrapWidth())))
		lines = append(lines, "")
	}

	answer := strings.TrimSpace(st.LiveTranscript + " " + st.InterimTranscript)
	switch {
	case answer != "":
		live := liveStyle.Render(wrap(st.LiveTranscript, m.wrapWidth()))
		if st.InterimTranscript != "" {
			live = strings.TrimSpace(live + " " + dimStyle.Render(st.InterimTranscript))
		}
		lines = append(lines, live)
	case st.IsListening:
		lines = append(lines, dimStyle.Render("Listening…"))
	}

	if st.ErrorMessage != "" {
		lines = append(lines, "", errorStyle.Render(st.ErrorMessage))
	}
	if m.notice.isErr && m.notice.text != "" {
		lines = append(lines, errorStyle.Render(m.notice.text))
	}

	lines = append(lines, "", m.helpLine())
	return strings.Join(lines, "\n") + "\n"
}

func (m model) phaseBadge() string {
	label := strings.ToUpper(string(m.view.Phase))
	if m.view.Phase == fsm.StateRecording || m.view.Phase == fsm.StateListening {
		dot := "●"
		if m.frame%2 == 1 {
			dot = "○"
		}
		label = dot + " " + label
	}
	color, ok := phaseColors[m.view.Phase]
	if !ok {
		color = "245"
	}
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(color)).Render(label)
}

func (m model) deviceLine() string {
	var parts []string
	if m.bound {
		parts = append(parts, "camera "+m.preview.VideoDevice)
	} else if m.view.State.CameraError {
		parts = append(parts, "camera unavailable")
	} else {
		parts = append(parts, "camera off")
	}
	mic := m.view.AudioDevice
	if mic == "" {
		mic = m.preview.AudioDevice
	}
	if mic != "" {
		parts = append(parts, "mic "+mic)
	}
	if m.view.State.IsMuted {
		parts = append(parts, "MUTED")
	}
	return strings.Join(parts, " · ")
}

func (m model) helpLine() string {
	bindings := []struct{ key, label string }{
		{"n", " next"},
		{"p", " previous"},
		{"r", " repeat"},
		{"m", " mute"},
	}
	if m.view.Phase == fsm.StateError {
		bindings = append(bindings, struct{ key, label string }{"t", " retry"})
	}
	bindings = append(bindings, struct{ key, label string }{"q", " hang up"})

	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		parts = append(parts, helpKey.Render(b.key)+helpStyle.Render(b.label))
	}
	return strings.Join(parts, helpStyle.Render("  "))
}

func (m model) wrapWidth() int {
	if m.width <= 0 {
		return 80
	}
	return max(m.width-2, 20)
}

func clock(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func wrap(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	lineLen := 0
	for i, word := range words {
		if i > 0 {
			if lineLen+1+len(word) > width {
				b.WriteByte('\n')
				lineLen = 0
			} else {
				b.WriteByte(' ')
				lineLen++
			}
		}
		b.WriteString(word)
		lineLen += len(word)
	}
	return b.String()
}
