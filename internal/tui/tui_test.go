package tui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/souhaylelhammadi/entretien/internal/fsm"
	"github.com/souhaylelhammadi/entretien/internal/interview"
	"github.com/souhaylelhammadi/entretien/internal/ipc"
	"github.com/souhaylelhammadi/entretien/internal/media"
	"github.com/souhaylelhammadi/entretien/internal/session"
)

type fakeCommander struct {
	mu       sync.Mutex
	commands []string
	resp     ipc.Response
}

func (f *fakeCommander) Handle(_ context.Context, req ipc.Request) ipc.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, req.Command)
	return f.resp
}

func (f *fakeCommander) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func sampleView() session.View {
	return session.View{
		Phase:       fsm.StateListening,
		Title:       "Backend Engineer",
		AudioDevice: "USB Mic",
		State: interview.State{
			Questions: []interview.Question{
				{ID: "q1", Text: "Tell me about yourself."},
				{ID: "q2", Text: "Why this role?"},
			},
			CurrentQuestionIndex: 1,
			Transcripts:          map[int]interview.TranscriptEntry{0: {AnswerText: "I build things."}},
			LiveTranscript:       "Because I like",
			InterimTranscript:    "distributed systems",
			IsListening:          true,
			ElapsedSeconds:       75,
		},
	}
}

func keyMsg(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewRendersQuestionAndTranscript(t *testing.T) {
	m := newModel(30*time.Minute, nil)
	updated, _ := m.Update(viewMsg(sampleView()))
	out := updated.View()

	require.Contains(t, out, "Backend Engineer")
	require.Contains(t, out, "LISTENING")
	require.Contains(t, out, "Question 2/2")
	require.Contains(t, out, "01:15 / 30:00")
	require.Contains(t, out, "1 answered")
	require.Contains(t, out, "Why this role?")
	require.Contains(t, out, "Because I like")
	require.Contains(t, out, "distributed systems")
	require.Contains(t, out, "mic USB Mic")
	require.Contains(t, out, "camera off")
	require.NotContains(t, out, "retry")
}

func TestViewShowsPreviewMuteAndError(t *testing.T) {
	m := newModel(0, nil)
	v := sampleView()
	v.Phase = fsm.StateError
	v.State.IsMuted = true
	v.State.ErrorMessage = "Camera access denied"

	var updated tea.Model = m
	updated, _ = updated.Update(viewMsg(v))
	updated, _ = updated.Update(previewMsg{info: media.Info{VideoDevice: "/dev/video0"}, bound: true})
	out := updated.View()

	require.Contains(t, out, "camera /dev/video0")
	require.Contains(t, out, "MUTED")
	require.Contains(t, out, "Camera access denied")
	require.Contains(t, out, "retry")
	require.Contains(t, out, "01:15 elapsed")

	updated, _ = updated.Update(previewMsg{})
	require.Contains(t, updated.View(), "camera off")
}

func TestViewListeningPlaceholder(t *testing.T) {
	v := sampleView()
	v.State.LiveTranscript = ""
	v.State.InterimTranscript = ""

	updated, _ := newModel(0, nil).Update(viewMsg(v))
	require.Contains(t, updated.View(), "Listening")
}

func TestKeysDispatchCommands(t *testing.T) {
	commander := &fakeCommander{resp: ipc.Response{OK: true, Message: "ok"}}
	u := New(Options{})
	u.Attach(commander)
	m := newModel(0, u.send)

	for _, key := range []string{"n", "p", "r", "m", "t", "q", "ctrl+c"} {
		_, cmd := m.Update(keyMsg(key))
		require.NotNil(t, cmd, key)
		msg := cmd()
		require.Equal(t, noticeMsg{text: "ok"}, msg)
	}

	_, cmd := m.Update(keyMsg("x"))
	require.Nil(t, cmd)

	require.Equal(t, []string{"next", "previous", "narrate", "mute", "retry", "hangup", "hangup"}, commander.seen())
}

func TestRejectedCommandShowsNotice(t *testing.T) {
	commander := &fakeCommander{resp: ipc.Response{OK: false, Error: "cannot next from state idle"}}
	u := New(Options{})
	u.Attach(commander)

	var m tea.Model = newModel(0, u.send)
	_, cmd := m.Update(keyMsg("n"))
	m, _ = m.Update(cmd())
	require.Contains(t, m.View(), "cannot next from state idle")
}

func TestSendWithoutCommander(t *testing.T) {
	u := New(Options{})
	resp := u.send("next")
	require.False(t, resp.OK)
	require.Equal(t, "session not ready", resp.Error)
}

func TestObserveNeverBlocks(t *testing.T) {
	u := New(Options{})
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			u.Observe(sampleView())
			u.Bind(media.Info{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Observe blocked without a running program")
	}
	u.Stop()
}

func TestTickAdvancesFrame(t *testing.T) {
	m := newModel(0, nil)
	m.view.Phase = fsm.StateRecording
	first := m.phaseBadge()

	updated, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
	require.NotEqual(t, first, updated.(model).phaseBadge())
}

func TestWrap(t *testing.T) {
	require.Equal(t, "", wrap("   ", 10))
	require.Equal(t, "one two\nthree", wrap("one two three", 8))
	require.Equal(t, "averyverylongword", wrap("averyverylongword", 4))
	require.Equal(t, 3, strings.Count(wrap("a b c d e f g h", 3), "\n"))
}

func TestClock(t *testing.T) {
	require.Equal(t, "00:00", clock(0))
	require.Equal(t, "02:05", clock(125))
}
