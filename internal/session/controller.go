// Package session runs one interview: it fetches the questions, holds the
// camera and microphone, narrates each question, captures the spoken answer,
// and uploads the recording with its transcripts.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/souhaylelhammadi/entretien/internal/api"
	"github.com/souhaylelhammadi/entretien/internal/fsm"
	"github.com/souhaylelhammadi/entretien/internal/interview"
	"github.com/souhaylelhammadi/entretien/internal/ipc"
)

// ErrMissingArtifact means the recorder produced nothing to upload.
var ErrMissingArtifact = errors.New("no recording available to upload")

const (
	defaultTickInterval = time.Second
	defaultStopTimeout  = 10 * time.Second
)

// Options configures one Controller.
type Options struct {
	InterviewID string
	Filename    string
	// MaxDurationS is counted in ticks; one tick is one elapsed second.
	MaxDurationS          int
	SettleDelay           time.Duration
	TickInterval          time.Duration
	StopTimeout           time.Duration
	RestartWithinQuestion bool
	Logger                *slog.Logger
	Now                   func() time.Time
}

// Result is the complete lifecycle output returned by one Run invocation.
type Result struct {
	State       fsm.State
	InterviewID string
	Title       string
	Cancelled   bool
	TimedOut    bool
	Err         error
	Metadata    interview.Metadata
	Saved       api.SaveResult
	VideoBytes  int
	AudioDevice string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Controller orchestrates one interview session. All session work runs on
// the goroutine that called Run; everything else posts events to it.
type Controller struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	store  *interview.Store
	events *queue

	mu    sync.RWMutex
	state fsm.State

	helpers       sync.WaitGroup
	helperCtx     context.Context
	cancelHelpers context.CancelFunc

	// Owned by the Run goroutine.
	title     string
	stream    Stream
	bridge    Bridge
	narrator  Narrator
	recording bool
	narration narrationRef
	listen    listenRef
	elapsed   int
	timedOut  bool
	pending   *api.SaveRequest
	result    *Result
	startedAt time.Time
}

type narrationRef struct {
	token uint64
	index int
}

type listenRef struct {
	generation uint64
	index      int
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(deps Deps, opts Options) *Controller {
	if deps.Indicator == nil {
		deps.Indicator = noopIndicator{}
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Controller{
		deps:   deps,
		opts:   opts,
		logger: logger,
		store:  interview.NewStore(),
		events: newQueue(),
		state:  fsm.StateIdle,
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Snapshot returns the current interview state.
func (c *Controller) Snapshot() interview.State {
	return c.store.Snapshot()
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Run executes one interview from question fetch to upload, hangup, or
// context cancellation.
func (c *Controller) Run(ctx context.Context) Result {
	c.startedAt = c.opts.Now()
	c.helperCtx, c.cancelHelpers = context.WithCancel(ctx)
	defer c.cancelHelpers()
	defer c.events.close()

	if err := c.load(ctx); err != nil {
		return c.finish(Result{Err: err})
	}

	c.narrator = c.deps.Narrator(c.events)
	c.acquire(ctx, fsm.EventAcquire)
	return c.loop(ctx)
}

func (c *Controller) load(ctx context.Context) error {
	if c.deps.Backend == nil || c.deps.Media == nil || c.deps.Recorder == nil || c.deps.Bridge == nil || c.deps.Narrator == nil {
		return errors.New("session dependencies are incomplete")
	}
	iv, err := c.deps.Backend.GetInterview(ctx, c.opts.InterviewID)
	if err != nil {
		return fmt.Errorf("load interview %q: %w", c.opts.InterviewID, err)
	}
	if err := c.store.Initialize(iv.Questions); err != nil {
		return fmt.Errorf("interview %q: %w", c.opts.InterviewID, err)
	}
	c.title = iv.Title
	c.logger.Info("interview loaded", "interview_id", c.opts.InterviewID, "questions", len(iv.Questions))
	return nil
}

func (c *Controller) loop(ctx context.Context) Result {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	for {
		c.publish()
		if c.result != nil {
			return c.finish(*c.result)
		}

		select {
		case <-ctx.Done():
			c.teardown()
			return c.finish(Result{Cancelled: true, Err: ctx.Err()})
		case <-ticker.C:
			c.onTick(ctx)
		case <-c.events.ready():
			for _, ev := range c.events.drain() {
				c.dispatch(ctx, ev)
				if c.result != nil {
					break
				}
			}
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case commandEvent:
		c.onCommand(ctx, ev.name)
	case narrationEnded:
		c.onNarrationEnded(ctx, ev)
	case transcriptUpdated:
		c.onTranscript(ev)
	case recognitionEnded:
		c.onRecognitionEnded(ctx, ev)
	case recognizerStopped:
		c.onRecognizerStopped(ctx, ev)
	case recorderStopped:
		c.onRecorderStopped(ctx, ev)
	case uploadDone:
		c.onUploadDone(ctx, ev)
	default:
		c.logger.Error("unknown session event", "event", fmt.Sprintf("%T", ev))
	}
}

func (c *Controller) onCommand(ctx context.Context, name string) {
	switch name {
	case ipc.CommandNext:
		c.navigate(ctx, intentNext)
	case ipc.CommandPrevious:
		c.navigate(ctx, intentPrevious)
	case ipc.CommandNarrate:
		c.replay(ctx)
	case ipc.CommandMute:
		c.toggleMute()
	case ipc.CommandRetry:
		c.retry(ctx)
	case ipc.CommandHangup:
		c.teardown()
		c.result = &Result{Cancelled: true}
	}
}

func (c *Controller) onTick(ctx context.Context) {
	state := c.State()
	if !state.Active() {
		return
	}
	c.elapsed++
	c.store.Tick(c.elapsed)

	if c.opts.MaxDurationS <= 0 || c.elapsed < c.opts.MaxDurationS || c.timedOut {
		return
	}
	c.logger.Info("interview time limit reached", "elapsed_s", c.elapsed)
	c.timedOut = true
	if state == fsm.StateTransitioning {
		return
	}
	c.beginTransition(ctx, intentFinalize)
}

func (c *Controller) toggleMute() {
	if c.stream == nil {
		return
	}
	muted := c.stream.ToggleMute()
	_ = c.store.SetFlag(interview.FlagMuted, muted)
	c.logger.Info("microphone mute toggled", "muted", muted)
}

func (c *Controller) publish() {
	info := c.streamInfo()
	c.deps.Observer.Observe(View{
		Phase:       c.State(),
		Title:       c.title,
		AudioDevice: info.AudioDevice,
		State:       c.store.Snapshot(),
	})
}

// spawn runs blocking work off the loop. fn posts its own completion event.
func (c *Controller) spawn(fn func(context.Context)) {
	c.helpers.Add(1)
	go func() {
		defer c.helpers.Done()
		fn(c.helperCtx)
	}()
}

func (c *Controller) finish(result Result) Result {
	result.State = c.State()
	result.InterviewID = c.opts.InterviewID
	result.Title = c.title
	result.TimedOut = result.TimedOut || c.timedOut
	result.StartedAt = c.startedAt
	result.FinishedAt = c.opts.Now()
	if result.AudioDevice == "" {
		result.AudioDevice = c.streamInfo().AudioDevice
	}
	if result.Metadata.InterviewID == "" && len(c.store.Snapshot().Questions) > 0 {
		result.Metadata = interview.BuildMetadata(c.opts.InterviewID, c.store.Snapshot(), result.FinishedAt)
	}
	return result
}

// Handle serves IPC commands for the running session. Commands are queued
// for the session loop; the response only reports acceptance.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	state := c.State()
	switch req.Command {
	case ipc.CommandStatus:
		return c.status(state)
	case ipc.CommandNext, ipc.CommandPrevious, ipc.CommandNarrate, ipc.CommandMute:
		if !state.Active() {
			return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot %s from state %s", req.Command, state)}
		}
		if req.Command != ipc.CommandMute && c.store.Snapshot().IsProcessing {
			return ipc.Response{OK: false, State: string(state), Error: "question transition in progress"}
		}
	case ipc.CommandRetry:
		if state != fsm.StateError {
			return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("nothing to retry in state %s", state)}
		}
	case ipc.CommandHangup:
		if state == fsm.StateStopped {
			return ipc.Response{OK: false, State: string(state), Error: "session already stopped"}
		}
	default:
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}

	c.events.post(commandEvent{name: req.Command})
	return ipc.Response{OK: true, State: string(state), Message: req.Command + " requested"}
}

func (c *Controller) status(state fsm.State) ipc.Response {
	st := c.store.Snapshot()
	resp := ipc.Response{
		OK:        true,
		State:     string(state),
		Message:   "status",
		Total:     len(st.Questions),
		Elapsed:   st.ElapsedSeconds,
		Muted:     st.IsMuted,
		Answered:  len(st.Transcripts),
		LastError: st.ErrorMessage,
	}
	if len(st.Questions) > 0 {
		resp.Question = st.CurrentQuestionIndex + 1
	}
	return resp
}
