// Package transcript merges recognized speech segments into answer text.
package transcript

import "strings"

// Options controls answer normalization.
type Options struct {
	CapitalizeSentences bool
	// Language is a BCP-47 code; English enables standalone "i" fixes.
	Language string
}

// Assemble joins final segments and applies configured normalization.
func Assemble(segments []string, opts Options) string {
	normalized := Clean(strings.Join(segments, " "))
	if normalized == "" {
		return ""
	}
	if opts.CapitalizeSentences {
		normalized = capitalizeSentenceStarts(normalized)
		if isEnglish(opts.Language) {
			normalized = capitalizePronounI(normalized)
		}
	}
	return normalized
}

// Merge appends one final segment, collapsing repeats and extensions of the
// previous segment so re-sent finals do not duplicate text.
func Merge(segments []string, next string) []string {
	next = Clean(next)
	if next == "" {
		return segments
	}
	if len(segments) == 0 {
		return append(segments, next)
	}

	last := segments[len(segments)-1]
	switch {
	case next == last, strings.HasPrefix(last, next):
		return segments
	case strings.HasPrefix(next, last):
		segments[len(segments)-1] = next
		return segments
	default:
		return append(segments, next)
	}
}

// Clean trims and collapses internal whitespace.
func Clean(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

func isEnglish(language string) bool {
	language = strings.ToLower(strings.TrimSpace(language))
	return language == "" || language == "en" || strings.HasPrefix(language, "en-")
}
