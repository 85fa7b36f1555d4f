// Package media acquires the camera and microphone for an interview session.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/souhaylelhammadi/entretien/internal/audio"
)

// AudioTrack is the live microphone feed.
type AudioTrack interface {
	Subscribe() (<-chan []byte, func())
	SetMuted(bool)
	Muted() bool
	Stop() error
}

// Segment is one container stream produced by the camera capture.
type Segment interface {
	io.Reader
	// Finish asks the capture to end; Read returns io.EOF once drained.
	Finish() error
	Close() error
}

// VideoTrack produces recording segments from the camera.
type VideoTrack interface {
	Start(ctx context.Context, feed AudioTrack) (Segment, error)
	Device() string
	MimeType() string
}

// Info describes an acquired stream for preview surfaces.
type Info struct {
	ID          string
	VideoDevice string
	AudioDevice string
	MimeType    string
}

// Preview renders stream liveness while a session runs.
type Preview interface {
	Bind(Info)
	Unbind()
}

type noopPreview struct{}

func (noopPreview) Bind(Info) {}
func (noopPreview) Unbind()   {}

// Config selects devices and the capture command.
type Config struct {
	AudioInput    string
	AudioFallback string
	KeepRawAudio  bool

	VideoDevice  string
	CaptureArgv  []string
	MimeType     string
	StartupGrace time.Duration
}

// Acquirer opens camera and microphone tracks.
type Acquirer struct {
	cfg     Config
	logger  *slog.Logger
	preview Preview

	openAudio func(context.Context, Config) (AudioTrack, string, error)
	openVideo func(Config) (VideoTrack, error)
}

// NewAcquirer builds an acquirer over Pulse and the capture command.
func NewAcquirer(cfg Config, preview Preview, logger *slog.Logger) *Acquirer {
	if preview == nil {
		preview = noopPreview{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Acquirer{
		cfg:       cfg,
		logger:    logger,
		preview:   preview,
		openAudio: openPulseAudio,
		openVideo: openCommandVideo,
	}
}

// Acquire requests both tracks, starts the first recording segment so a
// busy or missing camera fails here, and binds the preview.
func (a *Acquirer) Acquire(ctx context.Context) (*Stream, error) {
	video, err := a.openVideo(a.cfg)
	if err != nil {
		return nil, accessError("camera", err)
	}

	mic, micName, err := a.openAudio(ctx, a.cfg)
	if err != nil {
		return nil, accessError("microphone", err)
	}

	stream := &Stream{
		id:      uuid.NewString(),
		audio:   mic,
		video:   video,
		preview: a.preview,
		logger:  a.logger,
	}

	first, err := video.Start(ctx, mic)
	if err != nil {
		_ = mic.Stop()
		return nil, accessError("camera", err)
	}
	stream.pending = first

	stream.info = Info{
		ID:          stream.id,
		VideoDevice: video.Device(),
		AudioDevice: micName,
		MimeType:    video.MimeType(),
	}
	a.preview.Bind(stream.info)
	a.logger.Info("media acquired",
		"stream_id", stream.id,
		"video_device", stream.info.VideoDevice,
		"audio_device", micName,
	)
	return stream, nil
}

func openPulseAudio(ctx context.Context, cfg Config) (AudioTrack, string, error) {
	selection, err := audio.SelectDevice(ctx, cfg.AudioInput, cfg.AudioFallback)
	if err != nil {
		return nil, "", err
	}
	// The capture outlives Acquire's ctx; Release stops it.
	capture, err := audio.StartCapture(context.WithoutCancel(ctx), selection.Device, audio.CaptureOptions{
		KeepRaw:   cfg.KeepRawAudio,
		MediaName: "entretien interview",
	})
	if err != nil {
		return nil, "", err
	}
	name := selection.Device.Description
	if name == "" {
		name = selection.Device.ID
	}
	return capture, name, nil
}

// Stream owns the acquired tracks until Release.
type Stream struct {
	id      string
	audio   AudioTrack
	video   VideoTrack
	preview Preview
	logger  *slog.Logger
	info    Info

	mu       sync.Mutex
	pending  Segment
	active   Segment
	released bool
}

// Info returns the stream description.
func (s *Stream) Info() Info {
	if s == nil {
		return Info{}
	}
	return s.info
}

// Audio returns the microphone track.
func (s *Stream) Audio() AudioTrack {
	if s == nil {
		return nil
	}
	return s.audio
}

// NextSegment returns the segment started by Acquire on first use and a
// fresh camera segment afterwards.
func (s *Stream) NextSegment(ctx context.Context) (Segment, error) {
	if s == nil {
		return nil, errors.New("no media stream")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, errors.New("media stream released")
	}
	if s.pending != nil {
		s.active, s.pending = s.pending, nil
		return s.active, nil
	}
	segment, err := s.video.Start(ctx, s.audio)
	if err != nil {
		return nil, accessError("camera", err)
	}
	s.active = segment
	return segment, nil
}

// ToggleMute flips every audio track and returns the new muted state.
// It is a no-op without a stream.
func (s *Stream) ToggleMute() bool {
	if s == nil || s.audio == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return s.audio.Muted()
	}
	muted := !s.audio.Muted()
	s.audio.SetMuted(muted)
	return muted
}

// Muted reports the audio track state.
func (s *Stream) Muted() bool {
	if s == nil || s.audio == nil {
		return false
	}
	return s.audio.Muted()
}

// Release stops every track. Safe to call repeatedly or on a nil stream.
func (s *Stream) Release() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	segments := []Segment{s.pending, s.active}
	s.pending, s.active = nil, nil
	s.mu.Unlock()

	var errs []error
	for _, segment := range segments {
		if segment == nil {
			continue
		}
		if err := segment.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close camera segment: %w", err))
		}
	}
	if s.audio != nil {
		if err := s.audio.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop microphone: %w", err))
		}
	}
	s.preview.Unbind()
	s.logger.Info("media released", "stream_id", s.id)
	return errors.Join(errs...)
}
