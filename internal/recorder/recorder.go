// Package recorder accumulates a camera segment into one artifact in
// fixed-interval chunks.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultInterval is the chunk cadence.
	DefaultInterval = time.Second

	readBufferSize = 32 << 10
)

var (
	// ErrEmptyRecording indicates Stop produced a zero-byte artifact.
	ErrEmptyRecording = errors.New("recording is empty")
	// ErrAlreadyRecording is returned by Start while a run is active.
	ErrAlreadyRecording = errors.New("recorder already recording")
	// ErrNotRecording is returned by Stop outside a run.
	ErrNotRecording = errors.New("recorder not recording")
)

// State is the recorder lifecycle position.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopped   State = "stopped"
)

// Source is a finite byte stream that can be asked to end.
type Source interface {
	io.Reader
	Finish() error
}

// Artifact is the recorded blob of one run.
type Artifact struct {
	Data     []byte
	Chunks   int
	Duration time.Duration
}

// Size reports the artifact length in bytes.
func (a Artifact) Size() int {
	return len(a.Data)
}

// Recorder owns the artifact of the current run.
type Recorder struct {
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	state    State
	chunks   [][]byte
	size     int
	pending  []byte
	readErr  error
	source   Source
	started  time.Time
	readDone chan struct{}
	tickStop chan struct{}
	tickDone chan struct{}
}

// New returns an idle recorder. A non-positive interval uses DefaultInterval.
func New(interval time.Duration, logger *slog.Logger) *Recorder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{
		interval: interval,
		logger:   logger,
		now:      time.Now,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins a new artifact read from src.
func (r *Recorder) Start(src Source) error {
	if src == nil {
		return errors.New("recorder source is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording {
		return ErrAlreadyRecording
	}

	r.state = StateRecording
	r.chunks = nil
	r.size = 0
	r.pending = nil
	r.readErr = nil
	r.source = src
	r.started = r.now()
	r.readDone = make(chan struct{})
	r.tickStop = make(chan struct{})
	r.tickDone = make(chan struct{})

	go r.readLoop(src, r.readDone)
	go r.tickLoop(r.tickStop, r.tickDone)
	return nil
}

func (r *Recorder) readLoop(src Source, done chan struct{}) {
	defer close(done)
	buf := make([]byte, readBufferSize)
	for {
		n, err := src.Read(buf)
		r.mu.Lock()
		current := r.readDone == done
		if current && n > 0 {
			r.pending = append(r.pending, buf[:n]...)
		}
		if current && err != nil && !errors.Is(err, io.EOF) {
			r.readErr = err
		}
		r.mu.Unlock()
		if err != nil || !current {
			return
		}
	}
}

func (r *Recorder) tickLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			r.flushLocked()
			r.mu.Unlock()
		}
	}
}

func (r *Recorder) flushLocked() {
	if len(r.pending) == 0 {
		return
	}
	chunk := r.pending
	r.pending = nil
	r.chunks = append(r.chunks, chunk)
	r.size += len(chunk)
}

// Blob coalesces the chunks recorded so far.
func (r *Recorder) Blob() Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coalesceLocked()
}

func (r *Recorder) coalesceLocked() Artifact {
	data := make([]byte, 0, r.size)
	for _, chunk := range r.chunks {
		data = append(data, chunk...)
	}
	var elapsed time.Duration
	if !r.started.IsZero() {
		elapsed = r.now().Sub(r.started)
	}
	return Artifact{Data: data, Chunks: len(r.chunks), Duration: elapsed}
}

// Stop ends the run: it asks the source to finish, waits for it to drain
// (bounded by ctx), and coalesces the final artifact.
func (r *Recorder) Stop(ctx context.Context) (Artifact, error) {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return Artifact{}, ErrNotRecording
	}
	src := r.source
	readDone := r.readDone
	tickStop := r.tickStop
	tickDone := r.tickDone
	r.mu.Unlock()

	if err := src.Finish(); err != nil {
		r.logger.Warn("recorder source finish failed", "error", err)
	}

	var drainErr error
	select {
	case <-readDone:
	case <-ctx.Done():
		drainErr = fmt.Errorf("wait for recording to drain: %w", ctx.Err())
	}
	close(tickStop)
	<-tickDone

	r.mu.Lock()
	r.flushLocked()
	artifact := r.coalesceLocked()
	readErr := r.readErr
	r.state = StateStopped
	r.source = nil
	r.readDone = nil
	r.mu.Unlock()

	r.logger.Info("recording stopped",
		"bytes", artifact.Size(),
		"chunks", artifact.Chunks,
		"duration_ms", artifact.Duration.Milliseconds(),
	)
	if readErr != nil {
		r.logger.Warn("recording source read failed", "error", readErr)
	}

	if artifact.Size() == 0 {
		return artifact, errors.Join(ErrEmptyRecording, drainErr)
	}
	if drainErr != nil {
		r.logger.Warn("recording truncated", "error", drainErr)
	}
	return artifact, nil
}
