// Package output renders the finished-session summary and copies it to the clipboard.
package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/souhaylelhammadi/entretien/internal/session"
)

// Summary is the plain-text summary of one session result.
func Summary(result session.Result) string {
	var b strings.Builder
	meta := result.Metadata

	title := result.Title
	if title == "" {
		title = "Interview " + result.InterviewID
	}
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "status: %s\n", outcome(result))
	if result.Err != nil {
		fmt.Fprintf(&b, "error: %v\n", result.Err)
	}
	fmt.Fprintf(&b, "duration: %s\n", (time.Duration(meta.Duration) * time.Second).String())
	fmt.Fprintf(&b, "questions: %d/%d answered, %d reached\n", len(meta.Transcriptions), meta.QuestionCount, meta.CompletedQuestions)
	if result.Saved.VideoURL != "" {
		fmt.Fprintf(&b, "video: %s\n", result.Saved.VideoURL)
	}
	for _, entry := range meta.Transcriptions {
		fmt.Fprintf(&b, "\nQ%d. %s\n", entry.QuestionIndex+1, entry.QuestionText)
		fmt.Fprintf(&b, "    %s\n", entry.AnswerText)
	}
	return b.String()
}

// Render writes the styled summary for a terminal.
func Render(w io.Writer, result session.Result) error {
	r := lipgloss.NewRenderer(w)
	heading := r.NewStyle().Bold(true).Foreground(lipgloss.Color("75"))
	dim := r.NewStyle().Foreground(lipgloss.Color("245"))
	question := r.NewStyle().Bold(true)
	status := r.NewStyle().Foreground(lipgloss.Color("114"))
	if result.Err != nil {
		status = status.Foreground(lipgloss.Color("203"))
	} else if result.Cancelled {
		status = status.Foreground(lipgloss.Color("214"))
	}

	meta := result.Metadata
	title := result.Title
	if title == "" {
		title = "Interview " + result.InterviewID
	}

	lines := []string{
		heading.Render(title),
		status.Render(outcome(result)) + dim.Render(fmt.Sprintf("  %s · %d/%d answered",
			(time.Duration(meta.Duration)*time.Second).String(), len(meta.Transcriptions), meta.QuestionCount)),
	}
	if result.Saved.VideoURL != "" {
		lines = append(lines, dim.Render(result.Saved.VideoURL))
	}
	if result.Err != nil {
		lines = append(lines, status.Render(result.Err.Error()))
	}
	answer := r.NewStyle().PaddingLeft(2)
	for _, entry := range meta.Transcriptions {
		lines = append(lines, "", question.Render(fmt.Sprintf("Q%d. %s", entry.QuestionIndex+1, entry.QuestionText)))
		lines = append(lines, answer.Render(entry.AnswerText))
	}

	_, err := fmt.Fprintln(w, lipgloss.JoinVertical(lipgloss.Left, lines...))
	return err
}

func outcome(result session.Result) string {
	switch {
	case result.Cancelled && errors.Is(result.Err, context.Canceled):
		return "interrupted"
	case result.Err != nil:
		return "failed"
	case result.Cancelled:
		return "hung up"
	case result.TimedOut:
		return "saved (time limit reached)"
	default:
		return "saved"
	}
}
