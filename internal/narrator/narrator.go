// Package narrator reads interview questions aloud, one utterance at a time.
package narrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// Synthesizer speaks text and blocks until playback ended or ctx was cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Utterance identifies one Speak call.
type Utterance struct {
	Token uint64
	Text  string
}

// End reports how an utterance finished.
type End struct {
	Utterance
	Cancelled bool
	Err       error
}

// Natural reports a completed utterance that was neither cancelled nor failed.
func (e End) Natural() bool {
	return !e.Cancelled && e.Err == nil
}

// Listener observes utterance boundaries. Calls come from narrator goroutines.
type Listener interface {
	OnStart(Utterance)
	OnEnd(End)
}

// Narrator keeps at most one utterance in flight; a new Speak preempts.
type Narrator struct {
	synth    Synthesizer
	listener Listener
	logger   *slog.Logger

	opMu    sync.Mutex
	mu      sync.Mutex
	token   uint64
	current *utterance
}

type utterance struct {
	Utterance
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a narrator over synth.
func New(synth Synthesizer, listener Listener, logger *slog.Logger) *Narrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Narrator{synth: synth, listener: listener, logger: logger}
}

// Speak cancels any in-flight utterance, waits for its end signal, and
// starts text. It returns the new utterance token.
func (n *Narrator) Speak(ctx context.Context, text string) uint64 {
	n.opMu.Lock()
	defer n.opMu.Unlock()

	n.stopCurrent()

	n.mu.Lock()
	n.token++
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	u := &utterance{
		Utterance: Utterance{Token: n.token, Text: text},
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	n.current = u
	n.mu.Unlock()

	go n.play(runCtx, u)
	return u.Token
}

// Toggle cancels when speaking, otherwise speaks text. It reports whether a
// new utterance started.
func (n *Narrator) Toggle(ctx context.Context, text string) (uint64, bool) {
	if n.Speaking() {
		n.Cancel()
		return 0, false
	}
	return n.Speak(ctx, text), true
}

// Cancel stops the in-flight utterance and waits for its end signal. It is
// safe to call with nothing playing.
func (n *Narrator) Cancel() {
	n.opMu.Lock()
	defer n.opMu.Unlock()
	n.stopCurrent()
}

// Speaking reports whether an utterance is in flight.
func (n *Narrator) Speaking() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current != nil
}

func (n *Narrator) stopCurrent() {
	n.mu.Lock()
	u := n.current
	n.mu.Unlock()
	if u == nil {
		return
	}
	u.cancel()
	<-u.done
}

func (n *Narrator) play(ctx context.Context, u *utterance) {
	defer close(u.done)
	defer u.cancel()

	if n.listener != nil {
		n.listener.OnStart(u.Utterance)
	}

	err := n.synth.Speak(ctx, u.Text)
	end := End{Utterance: u.Utterance}
	switch {
	case ctx.Err() != nil:
		end.Cancelled = true
	case err != nil:
		end.Err = err
		n.logger.Warn("narration failed", "token", u.Token, "error", err)
	}
	if errors.Is(err, context.Canceled) {
		end.Cancelled = true
		end.Err = nil
	}

	n.mu.Lock()
	if n.current == u {
		n.current = nil
	}
	n.mu.Unlock()

	if n.listener != nil {
		n.listener.OnEnd(end)
	}
}
