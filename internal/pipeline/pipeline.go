// Package pipeline assembles the concrete session dependencies from config.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/souhaylelhammadi/entretien/internal/api"
	"github.com/souhaylelhammadi/entretien/internal/audio"
	"github.com/souhaylelhammadi/entretien/internal/config"
	"github.com/souhaylelhammadi/entretien/internal/media"
	"github.com/souhaylelhammadi/entretien/internal/narrator"
	"github.com/souhaylelhammadi/entretien/internal/recorder"
	"github.com/souhaylelhammadi/entretien/internal/session"
	"github.com/souhaylelhammadi/entretien/internal/speech"
	"github.com/souhaylelhammadi/entretien/internal/transcript"
)

// Options carries the surfaces the app owns.
type Options struct {
	InterviewID string
	Tokens      api.TokenSource
	Preview     media.Preview
	Indicator   session.Indicator
	Observer    session.Observer
	Logger      *slog.Logger
	Now         func() time.Time
}

// Runtime is one assembled session plus the debug sinks it opened.
type Runtime struct {
	Deps    session.Deps
	Options session.Options
	Client  *api.Client

	cfg    config.Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	asrDump *os.File
}

// New validates credentials and wires every session dependency.
func New(cfg config.Config, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	client, err := api.NewClient(api.Options{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    time.Duration(cfg.API.TimeoutMS) * time.Millisecond,
		HealthPath: cfg.API.HealthPath,
		Tokens:     opts.Tokens,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(os.Getenv(cfg.ASR.APIKeyEnv))
	synth, err := newSynthesizer(cfg, apiKey)
	if err != nil {
		return nil, err
	}

	r := &Runtime{Client: client, cfg: cfg, logger: logger, now: now}
	dialer, err := r.newDialer(apiKey)
	if err != nil {
		return nil, err
	}

	acquirer := media.NewAcquirer(media.Config{
		AudioInput:    cfg.Audio.Input,
		AudioFallback: cfg.Audio.Fallback,
		KeepRawAudio:  cfg.Debug.EnableAudioDump,
		VideoDevice:   cfg.Video.Device,
		CaptureArgv:   cfg.Video.Capture.Argv,
		MimeType:      cfg.Video.MimeType,
	}, opts.Preview, logger)

	transcriptOpts := transcript.Options{
		CapitalizeSentences: cfg.Transcript.CapitalizeSentences,
		Language:            cfg.ASR.LanguageCode,
	}

	r.Deps = session.Deps{
		Backend: client,
		Media: session.MediaFunc(func(ctx context.Context) (session.Stream, error) {
			stream, err := acquirer.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			if cfg.Debug.EnableAudioDump {
				return &dumpStream{Stream: stream, runtime: r}, nil
			}
			return stream, nil
		}),
		Recorder: recorder.New(time.Duration(cfg.Interview.ChunkIntervalMS)*time.Millisecond, logger),
		Bridge: func(feed speech.AudioFeed, sink speech.Sink) (session.Bridge, error) {
			bridge, err := speech.New(speech.Options{
				Dial:       dialer,
				Feed:       feed,
				Sink:       sink,
				Logger:     logger,
				Transcript: transcriptOpts,
			})
			if err != nil {
				return nil, err
			}
			return bridge, nil
		},
		Narrator: func(listener narrator.Listener) session.Narrator {
			return narrator.New(synth, listener, logger)
		},
		Indicator: opts.Indicator,
		Observer:  opts.Observer,
	}
	r.Options = session.Options{
		InterviewID:           opts.InterviewID,
		Filename:              cfg.Video.Filename,
		MaxDurationS:          cfg.Interview.MaxDurationS,
		SettleDelay:           time.Duration(cfg.Interview.SettleDelayMS) * time.Millisecond,
		RestartWithinQuestion: cfg.ASR.RestartWithinQuestion,
		Logger:                logger,
		Now:                   now,
	}
	return r, nil
}

// Close flushes debug sinks.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.asrDump == nil {
		return nil
	}
	err := r.asrDump.Close()
	r.asrDump = nil
	return err
}

func newSynthesizer(cfg config.Config, apiKey string) (narrator.Synthesizer, error) {
	switch cfg.TTS.Backend {
	case "command":
		return narrator.CommandSynthesizer{Argv: cfg.TTS.Command.Argv, Voice: cfg.TTS.Voice}, nil
	case "deepgram":
		if apiKey == "" {
			return nil, fmt.Errorf("tts.backend deepgram needs %s", cfg.ASR.APIKeyEnv)
		}
		return narrator.DeepgramSynthesizer{Endpoint: cfg.TTS.Endpoint, APIKey: apiKey, Voice: cfg.TTS.Voice}, nil
	default:
		return nil, fmt.Errorf("unsupported tts backend %q", cfg.TTS.Backend)
	}
}

func (r *Runtime) newDialer(apiKey string) (speech.Dialer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("speech recognition needs %s to be set", r.cfg.ASR.APIKeyEnv)
	}
	phrases, warnings, err := config.BuildSpeechPhrases(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("build speech keywords: %w", err)
	}
	for _, w := range warnings {
		r.logger.Warn("speech keywords", "warning", w.Message)
	}
	keywords := make([]speech.Keyword, 0, len(phrases))
	for _, phrase := range phrases {
		keywords = append(keywords, speech.Keyword{Phrase: phrase.Phrase, Boost: float64(phrase.Boost)})
	}

	var debugSink io.Writer
	if r.cfg.Debug.EnableASRDump {
		file, err := createDebugFile("asr", "jsonl", r.now())
		if err != nil {
			return nil, err
		}
		r.asrDump = file
		debugSink = &lockedWriter{w: file}
	}

	return speech.NewDeepgramDialer(speech.DeepgramConfig{
		Endpoint:             r.cfg.ASR.Endpoint,
		APIKey:               apiKey,
		Model:                r.cfg.ASR.Model,
		LanguageCode:         r.cfg.ASR.LanguageCode,
		SampleRate:           audio.SampleRate,
		AutomaticPunctuation: r.cfg.ASR.AutomaticPunctuation,
		Keywords:             keywords,
		DebugSink:            debugSink,
	})
}

// writeDebugAudio writes the retained microphone PCM as FLAC.
func (r *Runtime) writeDebugAudio(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	file, err := createDebugFile("audio", "flac", r.now())
	if err != nil {
		r.logger.Warn("unable to create debug audio dump", "error", err)
		return
	}
	defer file.Close()

	if err := writeFLAC(file, pcm, audio.SampleRate); err != nil {
		r.logger.Warn("unable to write debug audio dump", "error", err)
		return
	}
	r.logger.Debug("debug audio dump written", "path", file.Name(), "bytes", len(pcm))
}

// dumpStream saves the microphone recording when the stream is released.
type dumpStream struct {
	*media.Stream
	runtime *Runtime
	once    sync.Once
}

type rawAudio interface {
	RawPCM() []byte
}

func (d *dumpStream) Release() error {
	var pcm []byte
	d.once.Do(func() {
		if raw, ok := d.Stream.Audio().(rawAudio); ok {
			pcm = raw.RawPCM()
		}
	})
	err := d.Stream.Release()
	d.runtime.writeDebugAudio(pcm)
	return err
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
