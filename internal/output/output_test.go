package output

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/souhaylelhammadi/entretien/internal/api"
	"github.com/souhaylelhammadi/entretien/internal/interview"
	"github.com/souhaylelhammadi/entretien/internal/session"
)

func sampleResult() session.Result {
	return session.Result{
		InterviewID: "iv-42",
		Title:       "Backend engineer",
		Metadata: interview.Metadata{
			InterviewID:        "iv-42",
			Duration:           95,
			QuestionCount:      3,
			CompletedQuestions: 3,
			Transcriptions: []interview.TranscriptEntry{
				{QuestionIndex: 0, QuestionText: "Tell me about yourself.", AnswerText: "I build services."},
				{QuestionIndex: 2, QuestionText: "Why us?", AnswerText: "Your team ships."},
			},
		},
		Saved: api.SaveResult{VideoURL: "https://cdn.example.com/v.webm", Status: "completed"},
	}
}

func TestSummaryListsAnswers(t *testing.T) {
	text := Summary(sampleResult())
	require.Contains(t, text, "Backend engineer\n")
	require.Contains(t, text, "status: saved\n")
	require.Contains(t, text, "duration: 1m35s\n")
	require.Contains(t, text, "questions: 2/3 answered, 3 reached\n")
	require.Contains(t, text, "video: https://cdn.example.com/v.webm\n")
	require.Contains(t, text, "Q3. Why us?\n    Your team ships.\n")
}

func TestSummaryOutcomes(t *testing.T) {
	res := sampleResult()
	res.Title = ""
	res.Cancelled = true
	res.Saved = api.SaveResult{}
	text := Summary(res)
	require.Contains(t, text, "Interview iv-42\n")
	require.Contains(t, text, "status: hung up\n")
	require.NotContains(t, text, "video:")

	res.Err = errors.New("upload failed: Video file too large")
	require.Contains(t, Summary(res), "status: failed\nerror: upload failed: Video file too large\n")

	res.Err = context.Canceled
	require.Contains(t, Summary(res), "status: interrupted\n")

	timed := sampleResult()
	timed.TimedOut = true
	require.Contains(t, Summary(timed), "status: saved (time limit reached)\n")
}

func TestRenderWritesPlainTextWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleResult()))

	out := buf.String()
	require.Contains(t, out, "Backend engineer")
	require.Contains(t, out, "2/3 answered")
	require.Contains(t, out, "Q1. Tell me about yourself.")
	require.Contains(t, out, "  I build services.")
	require.NotContains(t, out, "\x1b[")
}

func TestCopierWritesText(t *testing.T) {
	var got string
	c := &Copier{write: func(text string) error {
		got = text
		return nil
	}}

	require.NoError(t, c.Copy("summary"))
	require.Equal(t, "summary", got)
}

func TestCopierSkipsEmptyAndReportsErrors(t *testing.T) {
	calls := 0
	c := &Copier{write: func(string) error {
		calls++
		return ErrClipboardUnsupported
	}}

	require.NoError(t, c.Copy(""))
	require.Zero(t, calls)
	require.ErrorIs(t, c.Copy("text"), ErrClipboardUnsupported)
	require.Equal(t, 1, calls)
}
