package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/souhaylelhammadi/entretien/internal/api"
	"github.com/souhaylelhammadi/entretien/internal/fsm"
	"github.com/souhaylelhammadi/entretien/internal/interview"
	"github.com/souhaylelhammadi/entretien/internal/media"
	"github.com/souhaylelhammadi/entretien/internal/narrator"
	"github.com/souhaylelhammadi/entretien/internal/recorder"
	"github.com/souhaylelhammadi/entretien/internal/speech"
)

type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *callLog) count(prefix string) int {
	n := 0
	for _, entry := range l.snapshot() {
		if strings.HasPrefix(entry, prefix) {
			n++
		}
	}
	return n
}

type fakeBackend struct {
	questions []interview.Question
	getErr    error

	mu       sync.Mutex
	saveErrs []error
	saves    []api.SaveRequest
}

func (b *fakeBackend) GetInterview(_ context.Context, id string) (api.Interview, error) {
	if b.getErr != nil {
		return api.Interview{}, b.getErr
	}
	return api.Interview{ID: id, Title: "Backend engineer", Questions: b.questions}, nil
}

func (b *fakeBackend) SaveInterview(_ context.Context, req api.SaveRequest) (api.SaveResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves = append(b.saves, req)
	if len(b.saveErrs) > 0 {
		err := b.saveErrs[0]
		b.saveErrs = b.saveErrs[1:]
		if err != nil {
			return api.SaveResult{}, err
		}
	}
	return api.SaveResult{VideoURL: "https://cdn.example.com/v.webm", Status: "completed", Recordings: len(b.saves)}, nil
}

func (b *fakeBackend) savedRequests() []api.SaveRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]api.SaveRequest(nil), b.saves...)
}

type fakeAudio struct{}

func (fakeAudio) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte)
	return ch, func() {}
}
func (fakeAudio) SetMuted(bool) {}
func (fakeAudio) Muted() bool   { return false }
func (fakeAudio) Stop() error   { return nil }

type fakeSegment struct{}

func (fakeSegment) Read([]byte) (int, error) { return 0, io.EOF }
func (fakeSegment) Finish() error            { return nil }
func (fakeSegment) Close() error             { return nil }

type fakeStream struct {
	log *callLog

	mu       sync.Mutex
	muted    bool
	released int
	segments int
}

func (s *fakeStream) Info() media.Info {
	return media.Info{ID: "stream-1", VideoDevice: "/dev/video0", AudioDevice: "USB Mic", MimeType: "video/webm"}
}

func (s *fakeStream) Audio() media.AudioTrack { return fakeAudio{} }

func (s *fakeStream) NextSegment(context.Context) (media.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments++
	return fakeSegment{}, nil
}

func (s *fakeStream) ToggleMute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = !s.muted
	return s.muted
}

func (s *fakeStream) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
	s.log.add("media.release")
	return nil
}

func (s *fakeStream) releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type fakeMedia struct {
	log    *callLog
	stream *fakeStream

	mu   sync.Mutex
	errs []error
}

func (m *fakeMedia) Acquire(context.Context) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.add("media.acquire")
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return m.stream, nil
}

type fakeRecorder struct {
	log *callLog

	mu        sync.Mutex
	starts    int
	recording bool
	stopErrs  []error
}

func (r *fakeRecorder) Start(src recorder.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if src == nil {
		return fmt.Errorf("nil source")
	}
	r.starts++
	r.recording = true
	r.log.add("recorder.start")
	return nil
}

func (r *fakeRecorder) Stop(context.Context) (recorder.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return recorder.Artifact{}, recorder.ErrNotRecording
	}
	r.recording = false
	r.log.add("recorder.stop")
	if len(r.stopErrs) > 0 {
		err := r.stopErrs[0]
		r.stopErrs = r.stopErrs[1:]
		if err != nil {
			return recorder.Artifact{}, err
		}
	}
	return recorder.Artifact{Data: []byte("webm-bytes"), Chunks: 3, Duration: time.Second}, nil
}

func (r *fakeRecorder) startCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

type fakeBridge struct {
	log *callLog

	mu       sync.Mutex
	sink     speech.Sink
	gen      uint64
	active   bool
	index    int
	seed     string
	answers  map[int]string
	startErr error
	seeds    []string
}

func (b *fakeBridge) Start(_ context.Context, index int, seed string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.startErr != nil {
		return 0, b.startErr
	}
	b.gen++
	b.active = true
	b.index = index
	b.seed = seed
	b.seeds = append(b.seeds, seed)
	b.log.add("bridge.start:%d", index)
	return b.gen, nil
}

func (b *fakeBridge) Stop(context.Context) (speech.StopResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return speech.StopResult{}, nil
	}
	b.active = false
	text := b.answers[b.index]
	if text == "" {
		text = b.seed
	}
	b.log.add("bridge.stop:%d", b.index)
	return speech.StopResult{Generation: b.gen, QuestionIndex: b.index, Text: text}, nil
}

func (b *fakeBridge) current() (uint64, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen, b.index
}

func (b *fakeBridge) emit(update speech.Update) {
	b.mu.Lock()
	sink := b.sink
	b.mu.Unlock()
	sink.OnTranscript(update)
}

func (b *fakeBridge) end(end speech.End) {
	b.mu.Lock()
	b.active = false
	sink := b.sink
	b.mu.Unlock()
	sink.OnRecognitionEnd(end)
}

type fakeNarrator struct {
	log      *callLog
	listener narrator.Listener

	mu      sync.Mutex
	token   uint64
	current uint64
	hold    bool
	failErr error
	spoken  []string
}

func (n *fakeNarrator) Speak(_ context.Context, text string) uint64 {
	n.mu.Lock()
	n.token++
	token := n.token
	n.current = token
	n.spoken = append(n.spoken, text)
	hold := n.hold
	failErr := n.failErr
	n.mu.Unlock()

	n.log.add("narrate:%s", text)
	if !hold {
		go n.finish(token, false, failErr)
	}
	return token
}

func (n *fakeNarrator) finish(token uint64, cancelled bool, err error) {
	n.mu.Lock()
	if n.current != token {
		n.mu.Unlock()
		return
	}
	n.current = 0
	n.mu.Unlock()

	n.log.add("narration-end:%d", token)
	n.listener.OnEnd(narrator.End{Utterance: narrator.Utterance{Token: token}, Cancelled: cancelled, Err: err})
}

func (n *fakeNarrator) Cancel() {
	n.mu.Lock()
	token := n.current
	n.mu.Unlock()
	if token != 0 {
		n.finish(token, true, nil)
	}
}

func (n *fakeNarrator) Speaking() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current != 0
}

func (n *fakeNarrator) spokenTexts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.spoken...)
}

type fakeIndicator struct {
	log *callLog
}

func (i fakeIndicator) ShowRecording(context.Context)         { i.log.add("indicator.recording") }
func (i fakeIndicator) ShowNarrating(context.Context)         { i.log.add("indicator.narrating") }
func (i fakeIndicator) ShowListening(context.Context)         { i.log.add("indicator.listening") }
func (i fakeIndicator) ShowUploading(context.Context)         { i.log.add("indicator.uploading") }
func (i fakeIndicator) ShowError(_ context.Context, m string) { i.log.add("indicator.error:%s", m) }
func (i fakeIndicator) CueStart(context.Context)              { i.log.add("cue.start") }
func (i fakeIndicator) CueNext(context.Context)               { i.log.add("cue.next") }
func (i fakeIndicator) CueComplete(context.Context)           { i.log.add("cue.complete") }
func (i fakeIndicator) CueCancel(context.Context)             { i.log.add("cue.cancel") }
func (i fakeIndicator) Hide(context.Context)                  { i.log.add("indicator.hide") }

type harness struct {
	t        *testing.T
	log      *callLog
	backend  *fakeBackend
	stream   *fakeStream
	media    *fakeMedia
	recorder *fakeRecorder
	bridge   *fakeBridge
	narrator *fakeNarrator
	ctrl     *Controller

	cancel context.CancelFunc
	done   chan Result
}

func questions(n int) []interview.Question {
	out := make([]interview.Question, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, interview.Question{ID: fmt.Sprintf("q%d", i), Text: fmt.Sprintf("Question %d?", i), Order: i})
	}
	return out
}

func newHarness(t *testing.T, n int, tweak func(*harness, *Options)) *harness {
	t.Helper()
	log := &callLog{}
	stream := &fakeStream{log: log}
	h := &harness{
		t:        t,
		log:      log,
		backend:  &fakeBackend{questions: questions(n)},
		stream:   stream,
		media:    &fakeMedia{log: log, stream: stream},
		recorder: &fakeRecorder{log: log},
		bridge:   &fakeBridge{log: log, answers: map[int]string{}},
		narrator: &fakeNarrator{log: log},
	}
	opts := Options{
		InterviewID:  "iv-42",
		Filename:     "interview.webm",
		MaxDurationS: 1800,
		SettleDelay:  5 * time.Millisecond,
		TickInterval: time.Hour,
		StopTimeout:  time.Second,
		Now:          func() time.Time { return time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC) },
	}
	if tweak != nil {
		tweak(h, &opts)
	}

	h.ctrl = NewController(Deps{
		Backend:  h.backend,
		Media:    h.media,
		Recorder: h.recorder,
		Bridge: func(_ speech.AudioFeed, sink speech.Sink) (Bridge, error) {
			h.bridge.mu.Lock()
			h.bridge.sink = sink
			h.bridge.mu.Unlock()
			return h.bridge, nil
		},
		Narrator: func(listener narrator.Listener) Narrator {
			h.narrator.listener = listener
			return h.narrator
		},
		Indicator: fakeIndicator{log: log},
	}, opts)
	return h
}

func (h *harness) start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan Result, 1)
	go func() { h.done <- h.ctrl.Run(ctx) }()
	h.t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
		}
	})
}

func (h *harness) send(command string) {
	h.t.Helper()
	resp := h.ctrl.Handle(context.Background(), ipcRequest(command))
	require.True(h.t, resp.OK, "command %s rejected: %s", command, resp.Error)
}

func (h *harness) waitListening(index int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		st := h.ctrl.Snapshot()
		return h.ctrl.State() == fsm.StateListening && st.CurrentQuestionIndex == index && !st.IsProcessing
	}, 2*time.Second, 2*time.Millisecond, "never listened on question %d (state %s)", index, h.ctrl.State())
}

func (h *harness) waitState(state fsm.State) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.ctrl.State() == state }, 2*time.Second, 2*time.Millisecond, "never reached %s (at %s)", state, h.ctrl.State())
}

func (h *harness) result() Result {
	h.t.Helper()
	select {
	case res := <-h.done:
		h.done <- res
		return res
	case <-time.After(2 * time.Second):
		h.t.Fatalf("session did not finish (state %s)", h.ctrl.State())
		return Result{}
	}
}

// requireNarrationPrecedesListening checks that every recognizer start
// follows the end of the latest narration.
func requireNarrationPrecedesListening(t *testing.T, entries []string) {
	t.Helper()
	ended := true
	for i, entry := range entries {
		switch {
		case strings.HasPrefix(entry, "narrate:"):
			ended = false
		case strings.HasPrefix(entry, "narration-end:"):
			ended = true
		case strings.HasPrefix(entry, "bridge.start:"):
			require.True(t, ended, "entry %d %q started before narration ended: %v", i, entry, entries)
		}
	}
}
