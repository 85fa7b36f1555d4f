package session

import (
	"context"
	"time"

	"github.com/souhaylelhammadi/entretien/internal/fsm"
	"github.com/souhaylelhammadi/entretien/internal/interview"
)

type intent int

const (
	intentNext intent = iota + 1
	intentPrevious
	intentReplay
	intentFinalize
)

func (i intent) String() string {
	switch i {
	case intentNext:
		return "next"
	case intentPrevious:
		return "previous"
	case intentReplay:
		return "replay"
	case intentFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// navigate is a no-op before the session started, during another
// transition, and for previous on the first question.
func (c *Controller) navigate(ctx context.Context, in intent) {
	st := c.store.Snapshot()
	if !st.Started || st.IsProcessing || !c.State().Active() {
		return
	}
	if in == intentPrevious && st.CurrentQuestionIndex == 0 {
		return
	}
	c.beginTransition(ctx, in)
}

// replay narrates the current question again. While narrating it skips the
// rest of the narration and starts listening instead.
func (c *Controller) replay(ctx context.Context) {
	st := c.store.Snapshot()
	if !st.Started || st.IsProcessing {
		return
	}
	switch c.State() {
	case fsm.StateNarrating:
		c.cancelNarration()
		c.startListening(ctx, fsm.EventNarrated)
	case fsm.StateListening:
		c.beginTransition(ctx, intentReplay)
	case fsm.StateRecording:
		c.narrateCurrent(ctx)
	}
}

// beginTransition persists the live answer and drains the recognizer off
// the loop. The move itself happens on recognizerStopped.
func (c *Controller) beginTransition(ctx context.Context, in intent) {
	if err := c.transition(fsm.EventNavigate); err != nil {
		c.logger.Warn("transition rejected", "intent", in.String(), "error", err)
		return
	}
	st := c.store.Snapshot()
	index := st.CurrentQuestionIndex
	_ = c.store.SetFlag(interview.FlagProcessing, true)
	c.persist(index, st.LiveTranscript)
	c.cancelNarration()
	c.listen = listenRef{}
	_ = c.store.SetFlag(interview.FlagListening, false)

	var settle time.Duration
	if in == intentNext || in == intentPrevious {
		settle = c.opts.SettleDelay
	}
	bridge := c.bridge
	c.spawn(func(hctx context.Context) {
		ev := recognizerStopped{intent: in, index: index}
		if bridge != nil {
			ev.result, ev.err = bridge.Stop(hctx)
		}
		if settle > 0 {
			timer := time.NewTimer(settle)
			select {
			case <-timer.C:
			case <-hctx.Done():
				timer.Stop()
			}
		}
		c.events.post(ev)
	})
}

func (c *Controller) onRecognizerStopped(ctx context.Context, ev recognizerStopped) {
	if c.State() != fsm.StateTransitioning {
		return
	}
	if ev.err != nil {
		c.logger.Warn("recognizer stop failed", "question_index", ev.index, "error", ev.err)
	}
	if ev.result.Generation != 0 && ev.result.QuestionIndex == ev.index {
		c.persist(ev.index, ev.result.Text)
	}
	c.store.SetInterim("")

	if c.timedOut || ev.intent == intentFinalize {
		c.beginFinalize(ctx)
		return
	}

	switch ev.intent {
	case intentNext:
		if c.store.Snapshot().IsLastQuestion() {
			c.beginFinalize(ctx)
			return
		}
		if err := c.store.Advance(); err != nil {
			c.logger.Error("advance failed", "error", err)
		}
		c.deps.Indicator.CueNext(ctx)
	case intentPrevious:
		if err := c.store.Retreat(); err != nil {
			c.logger.Error("retreat failed", "error", err)
		}
		c.store.RestoreLive()
	}

	_ = c.store.SetFlag(interview.FlagProcessing, false)
	c.logger.Info("question active", "intent", ev.intent.String(), "question_index", c.store.Snapshot().CurrentQuestionIndex)
	c.narrateCurrent(ctx)
}

// persist overwrites the recorded answer for index. Empty text never
// replaces a recorded answer.
func (c *Controller) persist(index int, text string) {
	if text == "" {
		return
	}
	if err := c.store.RecordTranscript(index, text); err != nil {
		c.logger.Error("persist transcript failed", "question_index", index, "error", err)
	}
}

func (c *Controller) narrateCurrent(ctx context.Context) {
	st := c.store.Snapshot()
	question, ok := st.CurrentQuestion()
	if !ok {
		return
	}
	if err := c.transition(fsm.EventNarrate); err != nil {
		c.logger.Warn("narration rejected", "error", err)
		return
	}
	c.listen = listenRef{}
	_ = c.store.SetFlag(interview.FlagListening, false)
	_ = c.store.SetFlag(interview.FlagSpeaking, true)
	c.deps.Indicator.ShowNarrating(ctx)

	token := c.narrator.Speak(ctx, question.Text)
	c.narration = narrationRef{token: token, index: st.CurrentQuestionIndex}
	c.logger.Debug("narration started", "token", token, "question_index", st.CurrentQuestionIndex)
}

// cancelNarration forgets the current utterance before cancelling it, so
// its end event is treated as stale.
func (c *Controller) cancelNarration() {
	c.narration = narrationRef{}
	if c.narrator != nil {
		c.narrator.Cancel()
	}
	_ = c.store.SetFlag(interview.FlagSpeaking, false)
}

func (c *Controller) onNarrationEnded(ctx context.Context, ev narrationEnded) {
	if c.narration.token == 0 || ev.end.Token != c.narration.token {
		return
	}
	index := c.narration.index
	c.narration = narrationRef{}
	_ = c.store.SetFlag(interview.FlagSpeaking, false)

	if ev.end.Cancelled || c.State() != fsm.StateNarrating {
		return
	}
	if ev.end.Err != nil {
		c.logger.Warn("narration failed; listening anyway", "question_index", index, "error", ev.end.Err)
		c.deps.Indicator.ShowError(ctx, "Narration failed")
	}
	if c.store.Snapshot().CurrentQuestionIndex != index {
		return
	}
	c.startListening(ctx, fsm.EventNarrated)
}

func (c *Controller) startListening(ctx context.Context, event fsm.Event) {
	if c.bridge == nil {
		return
	}
	if err := c.transition(event); err != nil {
		c.logger.Warn("listening rejected", "error", err)
		return
	}
	st := c.store.Snapshot()
	index := st.CurrentQuestionIndex
	generation, err := c.bridge.Start(ctx, index, st.LiveTranscript)
	if err != nil {
		c.logger.Warn("recognizer start failed", "question_index", index, "error", err)
		c.deps.Indicator.ShowError(ctx, "Speech recognition unavailable")
		_ = c.transition(fsm.EventListenEnded)
		return
	}
	c.listen = listenRef{generation: generation, index: index}
	_ = c.store.SetFlag(interview.FlagListening, true)
	c.deps.Indicator.ShowListening(ctx)
}

func (c *Controller) onTranscript(ev transcriptUpdated) {
	u := ev.update
	if u.Generation != c.listen.generation || u.QuestionIndex != c.listen.index || c.listen.generation == 0 {
		return
	}
	c.store.SetLive(u.Text)
	c.store.SetInterim(u.Interim)
}

func (c *Controller) onRecognitionEnded(ctx context.Context, ev recognitionEnded) {
	e := ev.end
	if e.Generation != c.listen.generation || e.QuestionIndex != c.listen.index || c.listen.generation == 0 {
		return
	}
	c.listen = listenRef{}
	if e.Text != "" {
		c.store.SetLive(e.Text)
	}
	c.store.SetInterim("")
	_ = c.store.SetFlag(interview.FlagListening, false)
	_ = c.transition(fsm.EventListenEnded)

	if e.Err != nil {
		c.logger.Warn("recognition ended with error", "question_index", e.QuestionIndex, "error", e.Err)
		return
	}
	if c.opts.RestartWithinQuestion {
		c.logger.Info("restarting recognizer within question", "question_index", e.QuestionIndex)
		c.startListening(ctx, fsm.EventListen)
	}
}
