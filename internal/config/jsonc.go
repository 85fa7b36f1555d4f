package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncScan int

const (
	scanValue jsoncScan = iota
	scanString
	scanLineComment
	scanBlockComment
)

// normalizeJSONC blanks comments and trailing commas so the result is plain
// JSON. Replaced bytes become spaces and line breaks are kept, so decoder
// offsets still point into the original text.
func normalizeJSONC(content string) (string, error) {
	out := []byte(content)
	state := scanValue
	escaped := false
	pendingComma := -1

	blank := func(i int) {
		if out[i] != '\n' && out[i] != '\r' && out[i] != '\t' {
			out[i] = ' '
		}
	}
	opens := func(i int, next byte) bool {
		return i+1 < len(out) && out[i] == '/' && out[i+1] == next
	}

	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch state {
		case scanString:
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				state = scanValue
			}

		case scanLineComment:
			if ch == '\n' || ch == '\r' {
				state = scanValue
				continue
			}
			blank(i)

		case scanBlockComment:
			if ch == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				state = scanValue
				continue
			}
			blank(i)

		default:
			switch {
			case opens(i, '/'):
				out[i], out[i+1] = ' ', ' '
				i++
				state = scanLineComment
			case opens(i, '*'):
				out[i], out[i+1] = ' ', ' '
				i++
				state = scanBlockComment
			case isJSONWhitespace(ch):
			case ch == ',':
				pendingComma = i
			default:
				if pendingComma >= 0 && (ch == '}' || ch == ']') {
					out[pendingComma] = ' '
				}
				pendingComma = -1
				if ch == '"' {
					state = scanString
				}
			}
		}
	}

	if state == scanBlockComment {
		return "", errors.New("unterminated block comment in JSONC")
	}
	return string(out), nil
}

func isJSONWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\r' || ch == '\t'
}

// decodeStrict decodes exactly one JSON object into dst, rejecting unknown
// fields and trailing values. Errors carry the line and column.
func decodeStrict(content string, dst any) error {
	decoder := json.NewDecoder(strings.NewReader(content))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return locateJSONError(content, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return locateJSONError(content, err)
	}
	return nil
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	switch {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return errors.New("multiple JSON values are not allowed")
	default:
		return err
	}
}

func locateJSONError(content string, err error) error {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return err
	}
	line, col := lineColumn(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

// lineColumn converts a decoder offset (bytes consumed) into the 1-based
// position of the last consumed byte.
func lineColumn(content string, offset int64) (int, int) {
	end := int(offset) - 1
	if end < 0 {
		end = 0
	}
	if end > len(content)-1 {
		end = max(len(content)-1, 0)
	}
	prefix := content[:end]
	line := strings.Count(prefix, "\n") + 1
	col := len(prefix) - strings.LastIndexByte(prefix, '\n')
	return line, col
}
