package transcript

import (
	"strings"
	"unicode"
)

// abbreviations never end a sentence.
var abbreviations = map[string]struct{}{
	"e.g": {}, "i.e": {}, "cf": {}, "vs": {}, "etc": {},
	"dr": {}, "mr": {}, "mrs": {}, "ms": {}, "prof": {},
	"m": {}, "mme": {}, "mlle": {}, "p.ex": {}, "env": {}, "ex": {},
}

func capitalizeSentenceStarts(text string) string {
	runes := []rune(text)
	atStart := true
	for i, r := range runes {
		switch {
		case atStart && unicode.IsLetter(r):
			runes[i] = unicode.ToUpper(r)
			atStart = false
		case atStart && unicode.IsDigit(r):
			atStart = false
		case r == '!' || r == '?':
			atStart = true
		case r == '.':
			atStart = endsSentence(runes, i)
		}
	}
	return string(runes)
}

// endsSentence reports whether the period at idx closes a sentence.
func endsSentence(runes []rune, idx int) bool {
	if idx+1 < len(runes) && !unicode.IsSpace(runes[idx+1]) {
		// 3.5, example.com, e.g.
		return false
	}
	start := idx
	for start > 0 && (unicode.IsLetter(runes[start-1]) || runes[start-1] == '.') {
		start--
	}
	token := strings.ToLower(strings.Trim(string(runes[start:idx]), "."))
	if _, ok := abbreviations[token]; ok {
		return false
	}
	// Single-letter initialisms such as "U.S." keep going.
	if strings.Count(string(runes[start:idx]), ".") > 0 && len([]rune(token)) <= 3 {
		return false
	}
	return true
}

func capitalizePronounI(text string) string {
	words := strings.Split(text, " ")
	for i, word := range words {
		core := strings.TrimRight(word, ",;:!?.\"')")
		lower := strings.ToLower(core)
		if lower == "i" || strings.HasPrefix(lower, "i'") || strings.HasPrefix(lower, "i’") {
			words[i] = "I" + word[1:]
		}
	}
	return strings.Join(words, " ")
}
