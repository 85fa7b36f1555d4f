package session

import (
	"context"

	"github.com/souhaylelhammadi/entretien/internal/api"
	"github.com/souhaylelhammadi/entretien/internal/fsm"
	"github.com/souhaylelhammadi/entretien/internal/interview"
	"github.com/souhaylelhammadi/entretien/internal/media"
	"github.com/souhaylelhammadi/entretien/internal/narrator"
	"github.com/souhaylelhammadi/entretien/internal/recorder"
	"github.com/souhaylelhammadi/entretien/internal/speech"
)

// Backend is the subset of the API client a session needs.
type Backend interface {
	GetInterview(ctx context.Context, id string) (api.Interview, error)
	SaveInterview(ctx context.Context, req api.SaveRequest) (api.SaveResult, error)
}

// Stream is one acquired camera and microphone pair.
type Stream interface {
	Info() media.Info
	Audio() media.AudioTrack
	NextSegment(ctx context.Context) (media.Segment, error)
	ToggleMute() bool
	Release() error
}

// Media acquires a Stream.
type Media interface {
	Acquire(ctx context.Context) (Stream, error)
}

// MediaFunc adapts a function to the Media interface.
type MediaFunc func(ctx context.Context) (Stream, error)

func (f MediaFunc) Acquire(ctx context.Context) (Stream, error) {
	return f(ctx)
}

// Recorder turns the camera segment into the uploaded artifact.
type Recorder interface {
	Start(src recorder.Source) error
	Stop(ctx context.Context) (recorder.Artifact, error)
}

// Bridge is the speech recognizer handle.
type Bridge interface {
	Start(ctx context.Context, questionIndex int, seed string) (uint64, error)
	Stop(ctx context.Context) (speech.StopResult, error)
}

// BridgeFactory builds a Bridge once the microphone is live.
type BridgeFactory func(feed speech.AudioFeed, sink speech.Sink) (Bridge, error)

// Narrator reads questions aloud.
type Narrator interface {
	Speak(ctx context.Context, text string) uint64
	Cancel()
	Speaking() bool
}

// NarratorFactory builds a Narrator reporting to listener.
type NarratorFactory func(listener narrator.Listener) Narrator

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowRecording(context.Context)
	ShowNarrating(context.Context)
	ShowListening(context.Context)
	ShowUploading(context.Context)
	ShowError(context.Context, string)
	CueStart(context.Context)
	CueNext(context.Context)
	CueComplete(context.Context)
	CueCancel(context.Context)
	Hide(context.Context)
}

// View is one published session snapshot.
type View struct {
	Phase       fsm.State
	Title       string
	AudioDevice string
	State       interview.State
}

// Observer receives a View after every applied event. Calls come from the
// session loop and must not block.
type Observer interface {
	Observe(View)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(View)

func (f ObserverFunc) Observe(v View) {
	f(v)
}

// Deps is everything a Controller drives.
type Deps struct {
	Backend   Backend
	Media     Media
	Recorder  Recorder
	Bridge    BridgeFactory
	Narrator  NarratorFactory
	Indicator Indicator
	Observer  Observer
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowRecording(context.Context)     {}
func (noopIndicator) ShowNarrating(context.Context)     {}
func (noopIndicator) ShowListening(context.Context)     {}
func (noopIndicator) ShowUploading(context.Context)     {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueStart(context.Context)          {}
func (noopIndicator) CueNext(context.Context)           {}
func (noopIndicator) CueComplete(context.Context)       {}
func (noopIndicator) CueCancel(context.Context)         {}
func (noopIndicator) Hide(context.Context)              {}

type noopObserver struct{}

func (noopObserver) Observe(View) {}
