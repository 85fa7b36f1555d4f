package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	// SampleRate is the capture rate used for speech recognition.
	SampleRate = 16000

	chunkSizeBytes = 640 // 20ms @ 16kHz mono s16
	subscriberBuf  = 256
)

// CaptureOptions tunes a capture stream.
type CaptureOptions struct {
	// KeepRaw retains every captured byte for debug dumps.
	KeepRaw   bool
	MediaName string
}

// Capture streams fixed-size PCM chunks from one Pulse source to any number
// of subscribers. Muting replaces samples with silence without stopping the
// stream.
type Capture struct {
	device Device

	client *pulse.Client
	stream *pulse.RecordStream

	stopCh chan struct{}

	mu      sync.Mutex
	subs    map[int]chan []byte
	nextSub int
	pending []byte
	keepRaw bool
	rawPCM  []byte
	stopped bool

	muted   atomic.Bool
	bytes   atomic.Int64
	dropped atomic.Int64
}

// StartCapture opens a 16kHz mono s16 record stream on selected.
func StartCapture(ctx context.Context, selected Device, opts CaptureOptions) (*Capture, error) {
	client, err := newClient("audio-input-microphone")
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := newCapture(selected, opts)
	capture.client = client

	name := opts.MediaName
	if name == "" {
		name = "entretien interview"
	}
	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName(name),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	stream.Start()

	go func() {
		select {
		case <-ctx.Done():
			_ = capture.Stop()
		case <-capture.stopCh:
		}
	}()

	return capture, nil
}

func newCapture(device Device, opts CaptureOptions) *Capture {
	return &Capture{
		device:  device,
		stopCh:  make(chan struct{}),
		subs:    map[int]chan []byte{},
		keepRaw: opts.KeepRaw,
	}
}

// Device returns the source being captured.
func (c *Capture) Device() Device {
	return c.device
}

// Subscribe returns a channel of PCM chunks and a cancel func that closes it.
// Slow subscribers lose chunks rather than stalling capture.
func (c *Capture) Subscribe() (<-chan []byte, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan []byte, subscriberBuf)
	if c.stopped {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// SetMuted toggles silence substitution.
func (c *Capture) SetMuted(muted bool) {
	c.muted.Store(muted)
}

// Muted reports whether captured audio is currently replaced with silence.
func (c *Capture) Muted() bool {
	return c.muted.Load()
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// DroppedChunks reports chunks discarded for slow subscribers.
func (c *Capture) DroppedChunks() int64 {
	return c.dropped.Load()
}

// RawPCM returns a copy of all retained PCM when KeepRaw was set.
func (c *Capture) RawPCM() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.rawPCM...)
}

// Stop halts the stream, flushes residual PCM, and closes every subscriber.
// It is safe to call more than once.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		c.broadcastLocked(append([]byte(nil), c.pending...))
		c.pending = nil
	}
	for id, sub := range c.subs {
		close(sub)
		delete(c.subs, id)
	}
	return nil
}

// Close is an alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return 0, io.EOF
	}

	data := buffer
	if c.muted.Load() {
		data = make([]byte, len(buffer))
	}
	if c.keepRaw {
		c.rawPCM = append(c.rawPCM, data...)
	}
	c.pending = append(c.pending, data...)
	c.bytes.Add(int64(len(buffer)))

	for len(c.pending) >= chunkSizeBytes {
		chunk := make([]byte, chunkSizeBytes)
		copy(chunk, c.pending[:chunkSizeBytes])
		c.pending = c.pending[chunkSizeBytes:]
		c.broadcastLocked(chunk)
	}
	return len(buffer), nil
}

func (c *Capture) broadcastLocked(chunk []byte) {
	for _, sub := range c.subs {
		select {
		case sub <- chunk:
		default:
			c.dropped.Add(1)
		}
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
