package interview

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNoQuestions indicates a session was initialized without questions.
	ErrNoQuestions = errors.New("interview has no questions")
	// ErrNotInitialized indicates a mutation before Initialize.
	ErrNotInitialized = errors.New("session not initialized")
)

// Flag names one boolean field of State for SetFlag.
type Flag string

const (
	FlagRecording    Flag = "isRecording"
	FlagListening    Flag = "isListening"
	FlagSpeaking     Flag = "isSpeaking"
	FlagProcessing   Flag = "isProcessing"
	FlagMuted        Flag = "isMuted"
	FlagWebcamActive Flag = "webcamActive"
	FlagCameraError  Flag = "cameraError"
	FlagStarted      Flag = "started"
)

// Store is the single authoritative session state container.
//
// Every mutation replaces the whole snapshot under the lock, so readers only
// ever see complete states. A failed mutation records ErrorMessage and keeps
// all other fields as they were.
type Store struct {
	mu    sync.Mutex
	state State
}

// NewStore returns an empty, uninitialized store.
func NewStore() *Store {
	return &Store{state: State{Transcripts: map[int]TranscriptEntry{}}}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Initialize loads the ordered question list and resets progress.
func (s *Store) Initialize(questions []Question) error {
	return s.update(func(st *State) error {
		if len(questions) == 0 {
			return ErrNoQuestions
		}
		ordered := append([]Question(nil), questions...)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

		*st = State{
			Questions:    ordered,
			Transcripts:  map[int]TranscriptEntry{},
			WebcamActive: st.WebcamActive,
			CameraError:  st.CameraError,
		}
		return nil
	})
}

// Advance moves the pointer to the next question.
func (s *Store) Advance() error {
	return s.update(func(st *State) error {
		if len(st.Questions) == 0 {
			return ErrNotInitialized
		}
		if st.CurrentQuestionIndex >= len(st.Questions)-1 {
			return fmt.Errorf("cannot advance past question %d of %d", st.CurrentQuestionIndex+1, len(st.Questions))
		}
		st.CurrentQuestionIndex++
		st.LiveTranscript = ""
		st.InterimTranscript = ""
		return nil
	})
}

// Retreat moves the pointer to the previous question.
func (s *Store) Retreat() error {
	return s.update(func(st *State) error {
		if len(st.Questions) == 0 {
			return ErrNotInitialized
		}
		if st.CurrentQuestionIndex <= 0 {
			return errors.New("cannot retreat before the first question")
		}
		st.CurrentQuestionIndex--
		st.LiveTranscript = ""
		st.InterimTranscript = ""
		return nil
	})
}

// RecordTranscript writes (or overwrites) the transcript entry for index.
func (s *Store) RecordTranscript(index int, text string) error {
	return s.update(func(st *State) error {
		if index < 0 || index >= len(st.Questions) {
			return fmt.Errorf("transcript index %d out of range [0,%d)", index, len(st.Questions))
		}
		st.Transcripts[index] = TranscriptEntry{
			QuestionIndex: index,
			QuestionText:  st.Questions[index].Text,
			AnswerText:    strings.TrimSpace(text),
		}
		return nil
	})
}

// SetFlag sets one named boolean field.
func (s *Store) SetFlag(name Flag, value bool) error {
	return s.update(func(st *State) error {
		switch name {
		case FlagRecording:
			st.IsRecording = value
		case FlagListening:
			st.IsListening = value
		case FlagSpeaking:
			st.IsSpeaking = value
		case FlagProcessing:
			st.IsProcessing = value
		case FlagMuted:
			st.IsMuted = value
		case FlagWebcamActive:
			st.WebcamActive = value
		case FlagCameraError:
			st.CameraError = value
		case FlagStarted:
			st.Started = value
		default:
			return fmt.Errorf("unknown flag %q", name)
		}
		return nil
	})
}

// SetLive replaces the final transcript text of the active question.
func (s *Store) SetLive(text string) {
	_ = s.update(func(st *State) error {
		st.LiveTranscript = text
		return nil
	})
}

// SetInterim replaces the display-only interim text.
func (s *Store) SetInterim(text string) {
	_ = s.update(func(st *State) error {
		st.InterimTranscript = text
		return nil
	})
}

// RestoreLive loads the recorded transcript for the active question into
// the live slot, or clears it when nothing was recorded.
func (s *Store) RestoreLive() {
	_ = s.update(func(st *State) error {
		st.InterimTranscript = ""
		st.LiveTranscript = ""
		if entry, ok := st.Transcripts[st.CurrentQuestionIndex]; ok {
			st.LiveTranscript = entry.AnswerText
		}
		return nil
	})
}

// Tick records elapsed session seconds.
func (s *Store) Tick(seconds int) {
	_ = s.update(func(st *State) error {
		st.ElapsedSeconds = seconds
		return nil
	})
}

// SetError records a user-facing error message.
func (s *Store) SetError(message string) {
	_ = s.update(func(st *State) error {
		st.ErrorMessage = message
		return nil
	})
}

// ClearError drops the current error message.
func (s *Store) ClearError() {
	s.SetError("")
}

// Reset discards all session state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Transcripts: map[int]TranscriptEntry{}}
}

func (s *Store) update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if err := fn(&next); err != nil {
		failed := s.state.clone()
		failed.ErrorMessage = err.Error()
		s.state = failed
		return err
	}
	s.state = next
	return nil
}
