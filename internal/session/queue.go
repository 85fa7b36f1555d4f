package session

import (
	"sync"

	"github.com/souhaylelhammadi/entretien/internal/api"
	"github.com/souhaylelhammadi/entretien/internal/narrator"
	"github.com/souhaylelhammadi/entretien/internal/recorder"
	"github.com/souhaylelhammadi/entretien/internal/speech"
)

type event any

type commandEvent struct {
	name string
}

type narrationEnded struct {
	end narrator.End
}

type transcriptUpdated struct {
	update speech.Update
}

type recognitionEnded struct {
	end speech.End
}

type recognizerStopped struct {
	intent intent
	index  int
	result speech.StopResult
	err    error
}

type recorderStopped struct {
	artifact recorder.Artifact
	err      error
}

type uploadDone struct {
	result api.SaveResult
	err    error
}

// queue is an unbounded event inbox. Posting never blocks, so narrator and
// bridge callbacks can fire while the loop is inside a narrator or bridge call.
type queue struct {
	mu     sync.Mutex
	items  []event
	closed bool
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) post(ev event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue) ready() <-chan struct{} {
	return q.notify
}

func (q *queue) drain() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
}

func (q *queue) OnStart(narrator.Utterance) {}

func (q *queue) OnEnd(end narrator.End) {
	q.post(narrationEnded{end: end})
}

func (q *queue) OnTranscript(update speech.Update) {
	q.post(transcriptUpdated{update: update})
}

func (q *queue) OnRecognitionEnd(end speech.End) {
	q.post(recognitionEnded{end: end})
}
