package recorder

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pipeSource is a Source whose Finish closes the write side.
type pipeSource struct {
	*io.PipeReader
	w        *io.PipeWriter
	finished int
	mu       sync.Mutex
}

func newPipeSource() *pipeSource {
	r, w := io.Pipe()
	return &pipeSource{PipeReader: r, w: w}
}

func (p *pipeSource) Finish() error {
	p.mu.Lock()
	p.finished++
	p.mu.Unlock()
	return p.w.Close()
}

func (p *pipeSource) write(t *testing.T, data string) {
	t.Helper()
	_, err := p.w.Write([]byte(data))
	require.NoError(t, err)
}

func TestRecorderChunksOnIntervalAndCoalesces(t *testing.T) {
	rec := New(10*time.Millisecond, nil)
	src := newPipeSource()
	require.NoError(t, rec.Start(src))
	require.Equal(t, StateRecording, rec.State())

	src.write(t, "abc")
	require.Eventually(t, func() bool { return rec.Blob().Chunks == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "abc", string(rec.Blob().Data))

	src.write(t, "def")
	require.Eventually(t, func() bool { return rec.Blob().Chunks == 2 }, time.Second, 5*time.Millisecond)

	artifact, err := rec.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, "abcdef", string(artifact.Data))
	require.Equal(t, 6, artifact.Size())
	require.Equal(t, StateStopped, rec.State())
	require.Equal(t, 1, src.finished)
}

func TestRecorderStopFlushesTail(t *testing.T) {
	rec := New(time.Hour, nil)
	src := newPipeSource()
	require.NoError(t, rec.Start(src))
	src.write(t, "tail")

	artifact, err := rec.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tail", string(artifact.Data))
	require.Equal(t, 1, artifact.Chunks)
}

func TestRecorderStopEmptyIsError(t *testing.T) {
	rec := New(time.Hour, nil)
	require.NoError(t, rec.Start(newPipeSource()))

	artifact, err := rec.Stop(context.Background())
	require.ErrorIs(t, err, ErrEmptyRecording)
	require.Zero(t, artifact.Size())
}

func TestRecorderStartWhileRecordingFails(t *testing.T) {
	rec := New(time.Hour, nil)
	require.NoError(t, rec.Start(newPipeSource()))
	require.ErrorIs(t, rec.Start(newPipeSource()), ErrAlreadyRecording)
}

func TestRecorderStopWhenIdleFails(t *testing.T) {
	rec := New(0, nil)
	_, err := rec.Stop(context.Background())
	require.ErrorIs(t, err, ErrNotRecording)
	require.Equal(t, StateIdle, rec.State())
}

func TestRecorderRestartBeginsNewArtifact(t *testing.T) {
	rec := New(time.Hour, nil)
	first := newPipeSource()
	require.NoError(t, rec.Start(first))
	first.write(t, "one")
	_, err := rec.Stop(context.Background())
	require.NoError(t, err)

	second := newPipeSource()
	require.NoError(t, rec.Start(second))
	second.write(t, "two")
	artifact, err := rec.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, "two", string(artifact.Data))
}

// stuckSource never ends, even after Finish.
type stuckSource struct {
	data chan []byte
}

func (s *stuckSource) Read(p []byte) (int, error) {
	chunk := <-s.data
	return copy(p, chunk), nil
}

func (s *stuckSource) Finish() error { return nil }

func TestRecorderStopHonorsContextWhenSourceHangs(t *testing.T) {
	rec := New(time.Hour, nil)
	src := &stuckSource{data: make(chan []byte, 1)}
	src.data <- []byte("partial")
	require.NoError(t, rec.Start(src))
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.pending) > 0
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	artifact, err := rec.Stop(ctx)
	require.NoError(t, err)
	require.Equal(t, "partial", string(artifact.Data))
}

func TestRecorderStopDetachesHungReader(t *testing.T) {
	rec := New(time.Hour, nil)
	src := &stuckSource{data: make(chan []byte, 1)}
	require.NoError(t, rec.Start(src))
	rec.mu.Lock()
	readDone := rec.readDone
	rec.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rec.Stop(ctx)
	require.ErrorIs(t, err, ErrEmptyRecording)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	src.data <- []byte("late")
	select {
	case <-readDone:
	case <-time.After(time.Second):
		t.Fatal("reader kept running after stop")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Empty(t, rec.pending)
	require.Nil(t, rec.readDone)
}

type errSource struct{}

func (errSource) Read([]byte) (int, error) { return 0, errors.New("pipe broke") }
func (errSource) Finish() error            { return nil }

func TestRecorderSourceErrorYieldsEmptyRecording(t *testing.T) {
	rec := New(time.Hour, nil)
	require.NoError(t, rec.Start(errSource{}))
	_, err := rec.Stop(context.Background())
	require.ErrorIs(t, err, ErrEmptyRecording)
}
