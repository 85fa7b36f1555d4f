package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/souhaylelhammadi/entretien/internal/audio"
)

const (
	defaultStartupGrace = 300 * time.Millisecond
	finishTimeout       = 5 * time.Second
	stderrLimit         = 4 << 10
)

// commandVideo runs the configured capture command once per segment. The
// command reads mic PCM (s16le, mono, 16kHz) on stdin and writes the
// container stream on stdout.
type commandVideo struct {
	device   string
	argv     []string
	mimeType string
	grace    time.Duration
}

func openCommandVideo(cfg Config) (VideoTrack, error) {
	if len(cfg.CaptureArgv) == 0 {
		return nil, errors.New("video.capture_cmd is empty")
	}
	if cfg.VideoDevice != "" && strings.HasPrefix(cfg.VideoDevice, "/dev/") {
		if _, err := os.Stat(cfg.VideoDevice); err != nil {
			return nil, fmt.Errorf("camera device %s: %w", cfg.VideoDevice, err)
		}
	}
	if _, err := exec.LookPath(cfg.CaptureArgv[0]); err != nil {
		return nil, fmt.Errorf("capture command %q not found: %w", cfg.CaptureArgv[0], err)
	}

	grace := cfg.StartupGrace
	if grace <= 0 {
		grace = defaultStartupGrace
	}
	return &commandVideo{
		device:   cfg.VideoDevice,
		argv:     append([]string(nil), cfg.CaptureArgv...),
		mimeType: cfg.MimeType,
		grace:    grace,
	}, nil
}

func (v *commandVideo) Device() string   { return v.device }
func (v *commandVideo) MimeType() string { return v.mimeType }

// ExpandArgv substitutes {device} and {rate} placeholders.
func ExpandArgv(argv []string, device string) []string {
	replacer := strings.NewReplacer(
		"{device}", device,
		"{rate}", strconv.Itoa(audio.SampleRate),
	)
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = replacer.Replace(arg)
	}
	return out
}

func (v *commandVideo) Start(_ context.Context, feed AudioTrack) (Segment, error) {
	argv := ExpandArgv(v.argv, v.device)
	// Segments outlive the caller's ctx; Finish/Close end them.
	cmd := exec.Command(argv[0], argv[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdin: %w", err)
	}
	// A plain pipe keeps unread output readable after the process exits.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdout: %w", err)
	}
	cmd.Stdout = stdoutW
	seg := &commandSegment{
		cmd:    cmd,
		stdout: stdout,
		stdin:  stdin,
		exited: make(chan struct{}),
		stderr: &limitedBuffer{limit: stderrLimit},
	}
	cmd.Stderr = seg.stderr

	err = cmd.Start()
	_ = stdoutW.Close()
	if err != nil {
		_ = stdout.Close()
		return nil, fmt.Errorf("start capture command %q: %w", argv[0], err)
	}

	var chunks <-chan []byte
	seg.unsubscribe = func() {}
	if feed != nil {
		chunks, seg.unsubscribe = feed.Subscribe()
	}
	go seg.feed(chunks)
	go func() {
		seg.waitErr = cmd.Wait()
		close(seg.exited)
	}()

	select {
	case <-seg.exited:
		seg.unsubscribe()
		_ = stdout.Close()
		return nil, fmt.Errorf("capture command exited at startup: %s", seg.describeExit())
	case <-time.After(v.grace):
	}
	return seg, nil
}

type commandSegment struct {
	cmd         *exec.Cmd
	stdout      *os.File
	stdin       io.WriteCloser
	stderr      *limitedBuffer
	unsubscribe func()

	exited  chan struct{}
	waitErr error

	finishOnce sync.Once
	closeOnce  sync.Once
}

func (s *commandSegment) feed(chunks <-chan []byte) {
	defer s.stdin.Close()
	if chunks == nil {
		return
	}
	for chunk := range chunks {
		if _, err := s.stdin.Write(chunk); err != nil {
			s.unsubscribe()
			for range chunks {
			}
			return
		}
	}
}

func (s *commandSegment) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *commandSegment) Finish() error {
	var err error
	s.finishOnce.Do(func() {
		s.unsubscribe()
		select {
		case <-s.exited:
			return
		default:
		}
		if s.cmd.Process != nil {
			if sigErr := s.cmd.Process.Signal(syscall.SIGINT); sigErr != nil && !errors.Is(sigErr, os.ErrProcessDone) {
				err = fmt.Errorf("interrupt capture command: %w", sigErr)
			}
		}
	})
	return err
}

func (s *commandSegment) Close() error {
	err := s.Finish()
	s.closeOnce.Do(func() {
		select {
		case <-s.exited:
		case <-time.After(finishTimeout):
			_ = s.cmd.Process.Kill()
			<-s.exited
		}
		_ = s.stdout.Close()
	})
	return err
}

func (s *commandSegment) describeExit() string {
	msg := strings.TrimSpace(s.stderr.String())
	if s.waitErr != nil {
		if msg == "" {
			return s.waitErr.Error()
		}
		return s.waitErr.Error() + ": " + msg
	}
	if msg == "" {
		return "no output"
	}
	return msg
}

type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
