package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Placeholders understood by the command templates.
var (
	capturePlaceholders = []string{"{device}", "{rate}"}
	speakPlaceholders   = []string{"{text}", "{voice}"}
)

var placeholderPattern = regexp.MustCompile(`\{[a-z_]+\}`)

// argvTokenizer splits a command template shell-style: whitespace separates
// words, single or double quotes group, backslash escapes one rune.
type argvTokenizer struct {
	words   []string
	word    strings.Builder
	inWord  bool
	quote   rune
	escaped bool
}

func (t *argvTokenizer) push(r rune) {
	t.word.WriteRune(r)
	t.inWord = true
}

func (t *argvTokenizer) endWord() {
	if !t.inWord {
		return
	}
	t.words = append(t.words, t.word.String())
	t.word.Reset()
	t.inWord = false
}

func (t *argvTokenizer) feed(r rune) {
	switch {
	case t.escaped:
		t.escaped = false
		t.push(r)
	case r == '\\' && t.quote != '\'':
		t.escaped = true
	case t.quote != 0 && r == t.quote:
		t.quote = 0
	case t.quote != 0:
		t.push(r)
	case r == '"' || r == '\'':
		t.quote = r
		t.inWord = true
	case unicode.IsSpace(r):
		t.endWord()
	default:
		t.push(r)
	}
}

// parseArgv turns a command template into argv. A blank or commented-out
// template yields nil.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var t argvTokenizer
	for _, r := range input {
		t.feed(r)
	}
	switch {
	case t.escaped:
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	case t.quote != 0:
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}
	t.endWord()
	return t.words, nil
}

func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(err)
	}
	return argv
}

// unknownPlaceholders lists {name} tokens in argv that are not in allowed.
func unknownPlaceholders(argv []string, allowed []string) []string {
	known := make(map[string]bool, len(allowed))
	for _, p := range allowed {
		known[p] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, arg := range argv {
		for _, p := range placeholderPattern.FindAllString(arg, -1) {
			if !known[p] && !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}

func hasPlaceholder(argv []string, placeholder string) bool {
	for _, arg := range argv {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}

// checkCommandTemplate reports unknown placeholders as warnings.
func checkCommandTemplate(key string, argv []string, allowed []string) []Warning {
	unknown := unknownPlaceholders(argv, allowed)
	if len(unknown) == 0 {
		return nil
	}
	return []Warning{{Message: fmt.Sprintf("%s has unknown placeholders %s (known: %s); they are passed through verbatim",
		key, strings.Join(unknown, ", "), strings.Join(allowed, ", "))}}
}
