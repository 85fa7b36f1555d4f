// Package speech bridges the microphone to a streaming speech recognizer,
// one question at a time.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/souhaylelhammadi/entretien/internal/transcript"
)

// ErrRecognition wraps every recognizer failure reported to a Sink.
var ErrRecognition = errors.New("speech recognition failed")

const defaultDrainTimeout = 10 * time.Second

// Result is one recognizer response.
type Result struct {
	Transcript string
	IsFinal    bool
}

// Recognizer is one live streaming recognition session.
type Recognizer interface {
	SendAudio(ctx context.Context, pcm []byte) error
	// CloseSend asks the server to flush; Recv returns io.EOF afterwards.
	CloseSend(ctx context.Context) error
	Recv(ctx context.Context) (Result, error)
	Close() error
}

// Dialer opens a new Recognizer.
type Dialer func(ctx context.Context) (Recognizer, error)

// AudioFeed supplies PCM chunks.
type AudioFeed interface {
	Subscribe() (<-chan []byte, func())
}

// Update is delivered for every recognized fragment.
type Update struct {
	Generation    uint64
	QuestionIndex int
	// Text is the merged final transcript for the question so far.
	Text    string
	Interim string
	Final   bool
}

// End reports a recognizer that stopped on its own.
type End struct {
	Generation    uint64
	QuestionIndex int
	Text          string
	Err           error
}

// Sink receives bridge output. Calls come from bridge goroutines.
type Sink interface {
	OnTranscript(Update)
	OnRecognitionEnd(End)
}

// StopResult is the drained state of a stopped recognizer.
type StopResult struct {
	Generation    uint64
	QuestionIndex int
	Text          string
	Latency       time.Duration
}

// Options configures a Bridge.
type Options struct {
	Dial         Dialer
	Feed         AudioFeed
	Sink         Sink
	Logger       *slog.Logger
	Transcript   transcript.Options
	DrainTimeout time.Duration
}

// Bridge owns at most one active recognizer.
type Bridge struct {
	opts   Options
	logger *slog.Logger

	// opMu serializes Restart and Stop; mu guards active only.
	opMu       sync.Mutex
	mu         sync.Mutex
	active     *run
	generation uint64
}

type run struct {
	gen   uint64
	index int
	rec   Recognizer

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	sendDone    chan struct{}
	recvDone    chan struct{}

	mu       sync.Mutex
	segments []string
	stopping bool
	sendErr  error
}

// New builds a bridge. Dial and Feed are required.
func New(opts Options) (*Bridge, error) {
	if opts.Dial == nil {
		return nil, errors.New("speech recognizer dialer is required")
	}
	if opts.Feed == nil {
		return nil, errors.New("speech audio feed is required")
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bridge{opts: opts, logger: logger}, nil
}

// Start begins recognition for questionIndex, seeded with text already
// recorded for it. Any active recognizer is stopped and discarded first.
func (b *Bridge) Start(ctx context.Context, questionIndex int, seed string) (uint64, error) {
	return b.Restart(ctx, questionIndex, seed)
}

// Restart guarantees at most one active recognizer: the previous one is
// drained before the new one is dialed.
func (b *Bridge) Restart(ctx context.Context, questionIndex int, seed string) (uint64, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if previous := b.takeActive(); previous != nil {
		b.drain(ctx, previous)
	}

	rec, err := b.opts.Dial(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: dial recognizer: %w", ErrRecognition, err)
	}

	b.generation++
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		gen:      b.generation,
		index:    questionIndex,
		rec:      rec,
		ctx:      runCtx,
		cancel:   cancel,
		sendDone: make(chan struct{}),
		recvDone: make(chan struct{}),
	}
	if seed = transcript.Clean(seed); seed != "" {
		r.segments = []string{seed}
	}

	chunks, unsubscribe := b.opts.Feed.Subscribe()
	var once sync.Once
	r.unsubscribe = func() { once.Do(unsubscribe) }

	b.mu.Lock()
	b.active = r
	b.mu.Unlock()

	go b.sendLoop(r, chunks)
	go b.recvLoop(r)

	b.logger.Debug("recognizer started", "generation", r.gen, "question_index", questionIndex)
	return r.gen, nil
}

// Active reports whether a recognizer is running.
func (b *Bridge) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active != nil
}

// Stop closes the audio feed, asks the recognizer to flush, and blocks
// until its results drained. Stopping with nothing active returns a zero
// result.
func (b *Bridge) Stop(ctx context.Context) (StopResult, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	r := b.takeActive()
	if r == nil {
		return StopResult{}, nil
	}
	return b.drain(ctx, r), nil
}

func (b *Bridge) takeActive() *run {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.active
	b.active = nil
	return r
}

func (b *Bridge) drain(ctx context.Context, r *run) StopResult {
	started := time.Now()

	r.mu.Lock()
	r.stopping = true
	r.mu.Unlock()

	r.unsubscribe()
	<-r.sendDone

	drainCtx, cancel := context.WithTimeout(ctx, b.opts.DrainTimeout)
	defer cancel()

	if err := r.rec.CloseSend(drainCtx); err != nil {
		b.logger.Debug("recognizer close send failed", "generation", r.gen, "error", err)
	}

	select {
	case <-r.recvDone:
	case <-drainCtx.Done():
		b.logger.Warn("recognizer drain timed out", "generation", r.gen, "error", drainCtx.Err())
	}
	r.cancel()
	_ = r.rec.Close()
	<-r.recvDone

	result := StopResult{
		Generation:    r.gen,
		QuestionIndex: r.index,
		Text:          b.assemble(r),
		Latency:       time.Since(started),
	}
	b.logger.Debug("recognizer stopped",
		"generation", r.gen,
		"question_index", r.index,
		"latency_ms", result.Latency.Milliseconds(),
	)
	return result
}

func (b *Bridge) sendLoop(r *run, chunks <-chan []byte) {
	defer close(r.sendDone)
	for chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		if err := r.rec.SendAudio(r.ctx, chunk); err != nil {
			r.mu.Lock()
			r.sendErr = err
			r.mu.Unlock()
			r.unsubscribe()
			for range chunks {
			}
			return
		}
	}
}

func (b *Bridge) recvLoop(r *run) {
	defer close(r.recvDone)
	for {
		res, err := r.rec.Recv(r.ctx)
		if err != nil {
			b.finish(r, err)
			return
		}
		b.apply(r, res)
	}
}

func (b *Bridge) apply(r *run, res Result) {
	text := transcript.Clean(res.Transcript)
	if text == "" {
		return
	}

	r.mu.Lock()
	update := Update{Generation: r.gen, QuestionIndex: r.index, Final: res.IsFinal}
	if res.IsFinal {
		r.segments = transcript.Merge(r.segments, text)
	} else {
		update.Interim = text
	}
	r.mu.Unlock()

	update.Text = b.assemble(r)
	if b.opts.Sink != nil {
		b.opts.Sink.OnTranscript(update)
	}
}

// finish handles the end of the receive loop. Ends caused by Stop are
// silent; anything else is reported to the sink.
func (b *Bridge) finish(r *run, err error) {
	r.mu.Lock()
	stopping := r.stopping
	sendErr := r.sendErr
	r.mu.Unlock()
	if stopping {
		return
	}

	b.mu.Lock()
	if b.active == r {
		b.active = nil
	}
	b.mu.Unlock()
	r.unsubscribe()
	r.cancel()
	_ = r.rec.Close()

	end := End{Generation: r.gen, QuestionIndex: r.index, Text: b.assemble(r)}
	switch {
	case errors.Is(err, io.EOF) && sendErr == nil:
		b.logger.Info("recognizer ended", "generation", r.gen, "question_index", r.index)
	default:
		if sendErr != nil {
			err = errors.Join(sendErr, err)
		}
		end.Err = fmt.Errorf("%w: %w", ErrRecognition, err)
		b.logger.Warn("recognizer failed", "generation", r.gen, "question_index", r.index, "error", err)
	}
	if b.opts.Sink != nil {
		b.opts.Sink.OnRecognitionEnd(end)
	}
}

func (b *Bridge) assemble(r *run) string {
	r.mu.Lock()
	segments := append([]string(nil), r.segments...)
	r.mu.Unlock()
	return transcript.Assemble(segments, b.opts.Transcript)
}
