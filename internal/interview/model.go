// Package interview holds the interview session data model and its state store.
package interview

import (
	"sort"
	"time"
)

// Question is one interview prompt as fetched from the backend.
type Question struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
	Type  string `json:"type,omitempty"`
}

// TranscriptEntry is the captured answer for one question.
type TranscriptEntry struct {
	QuestionIndex int    `json:"questionIndex"`
	QuestionText  string `json:"question"`
	AnswerText    string `json:"answer"`
}

// State is one immutable snapshot of a running session.
type State struct {
	Questions            []Question
	CurrentQuestionIndex int
	Transcripts          map[int]TranscriptEntry

	LiveTranscript    string
	InterimTranscript string

	IsRecording  bool
	IsListening  bool
	IsSpeaking   bool
	IsProcessing bool
	IsMuted      bool
	WebcamActive bool
	CameraError  bool
	Started      bool

	ElapsedSeconds int
	ErrorMessage   string
}

// CurrentQuestion returns the active question, if any.
func (s State) CurrentQuestion() (Question, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentQuestionIndex], true
}

// IsLastQuestion reports whether the pointer sits on the final question.
func (s State) IsLastQuestion() bool {
	return len(s.Questions) > 0 && s.CurrentQuestionIndex == len(s.Questions)-1
}

// Entry returns the recorded transcript for index.
func (s State) Entry(index int) (TranscriptEntry, bool) {
	entry, ok := s.Transcripts[index]
	return entry, ok
}

// Entries returns recorded transcripts ordered by question index.
func (s State) Entries() []TranscriptEntry {
	out := make([]TranscriptEntry, 0, len(s.Transcripts))
	for _, entry := range s.Transcripts {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionIndex < out[j].QuestionIndex })
	return out
}

func (s State) clone() State {
	out := s
	out.Questions = append([]Question(nil), s.Questions...)
	out.Transcripts = make(map[int]TranscriptEntry, len(s.Transcripts))
	for k, v := range s.Transcripts {
		out.Transcripts[k] = v
	}
	return out
}

// Metadata is the JSON document submitted alongside the recording.
type Metadata struct {
	InterviewID        string            `json:"interviewId"`
	Duration           int               `json:"duration"`
	QuestionCount      int               `json:"questionCount"`
	CompletedQuestions int               `json:"completedQuestions"`
	Transcriptions     []TranscriptEntry `json:"transcriptions"`
	Questions          []Question        `json:"questions"`
	Timestamp          time.Time         `json:"timestamp"`
}

// BuildMetadata assembles the finalize payload from a session snapshot.
func BuildMetadata(interviewID string, st State, now time.Time) Metadata {
	completed := 0
	if len(st.Questions) > 0 {
		completed = st.CurrentQuestionIndex + 1
	}
	return Metadata{
		InterviewID:        interviewID,
		Duration:           st.ElapsedSeconds,
		QuestionCount:      len(st.Questions),
		CompletedQuestions: completed,
		Transcriptions:     st.Entries(),
		Questions:          append([]Question(nil), st.Questions...),
		Timestamp:          now.UTC(),
	}
}
