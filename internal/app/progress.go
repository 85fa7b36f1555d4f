package app

import (
	"fmt"
	"io"
	"sync"

	"github.com/souhaylelhammadi/entretien/internal/fsm"
	"github.com/souhaylelhammadi/entretien/internal/session"
)

// progressPrinter is the line-oriented observer used when stdout is not a
// terminal. It prints phase and question changes only.
type progressPrinter struct {
	mu       sync.Mutex
	w        io.Writer
	phase    fsm.State
	question int
	errText  string
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, phase: fsm.StateIdle, question: -1}
}

func (p *progressPrinter) Observe(v session.View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := v.State
	if q, ok := st.CurrentQuestion(); ok && st.CurrentQuestionIndex != p.question {
		p.question = st.CurrentQuestionIndex
		fmt.Fprintf(p.w, "[%d/%d] %s\n", st.CurrentQuestionIndex+1, len(st.Questions), q.Text)
	}
	if v.Phase != p.phase {
		p.phase = v.Phase
		if v.Phase == fsm.StateFinalizing {
			fmt.Fprintln(p.w, "uploading recording...")
		}
	}
	if v.Phase != fsm.StateError {
		p.errText = ""
		return
	}
	if st.ErrorMessage != "" && st.ErrorMessage != p.errText {
		p.errText = st.ErrorMessage
		fmt.Fprintf(p.w, "error: %s (run `entretien retry` or `entretien hangup`)\n", st.ErrorMessage)
	}
}
