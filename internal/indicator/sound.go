package indicator

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/souhaylelhammadi/entretien/internal/audio"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueNext
	cueComplete
	cueCancel
)

const (
	cueSampleRate = 16000
	cueGap        = 22 * time.Millisecond
	cueFade       = 5 * time.Millisecond
	cueMediaName  = "entretien cue"
)

type playFunc func(ctx context.Context, samples []int16, sampleRate int, mediaName string) error

func playPCM(ctx context.Context, samples []int16, sampleRate int, mediaName string) error {
	return audio.PlayPCM(ctx, samples, sampleRate, mediaName)
}

// note is a sine tone pitched in semitones from A4.
type note struct {
	semitones int
	duration  time.Duration
	gain      float64
}

func (n note) frequency() float64 {
	return 440 * math.Pow(2, float64(n.semitones)/12)
}

// Rising for start and completion, falling for hangup.
var cueNotes = map[cueKind][]note{
	cueStart:    {{12, 70 * time.Millisecond, 0.18}, {17, 70 * time.Millisecond, 0.18}},
	cueNext:     {{14, 60 * time.Millisecond, 0.14}},
	cueComplete: {{9, 65 * time.Millisecond, 0.18}, {14, 65 * time.Millisecond, 0.18}, {19, 110 * time.Millisecond, 0.18}},
	cueCancel:   {{3, 75 * time.Millisecond, 0.18}, {-2, 90 * time.Millisecond, 0.18}},
}

var renderedCues = sync.OnceValue(func() map[cueKind][]int16 {
	out := make(map[cueKind][]int16, len(cueNotes))
	for kind, notes := range cueNotes {
		out[kind] = renderNotes(notes)
	}
	return out
})

func emitCue(ctx context.Context, kind cueKind, play playFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return play(ctx, samples, cueSampleRate, cueMediaName)
}

func cueSamples(kind cueKind) []int16 {
	return renderedCues()[kind]
}

// renderNotes concatenates notes with a short silence between them.
func renderNotes(notes []note) []int16 {
	var pcm []int16
	gap := sampleCount(cueGap)
	for i, n := range notes {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, renderNote(n)...)
	}
	return pcm
}

// renderNote synthesizes one note with raised-cosine fades at both ends.
func renderNote(n note) []int16 {
	count := sampleCount(n.duration)
	if count == 0 || n.gain <= 0 {
		return nil
	}

	fade := max(min(sampleCount(cueFade), count/2), 1)
	step := 2 * math.Pi * n.frequency() / cueSampleRate
	pcm := make([]int16, count)
	for i := range pcm {
		edge := min(i, count-1-i)
		level := n.gain
		if edge < fade {
			level *= 0.5 - 0.5*math.Cos(math.Pi*float64(edge)/float64(fade))
		}
		pcm[i] = int16(math.Round(math.Sin(step*float64(i)) * level * math.MaxInt16))
	}
	return pcm
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
