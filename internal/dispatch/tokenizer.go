// Package dispatch implements the command-dispatch pipeline: it tokenizes a
// raw message line, walks a command tree applying per-node permission checks,
// invokes the resolved leaf's signature contract, and interprets the result.
package dispatch

import (
	"errors"
	"strings"
	"unicode"
)

// ErrUnterminatedQuote is returned when a quoted token is never closed.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// Tokenize splits a command line using shell-style quoting rules: tokens are
// separated by whitespace, single- and double-quoted substrings are kept as
// one token, and a backslash escapes the next character (inside double
// quotes it only escapes `"` and `\`). Single quotes are literal inside.
func Tokenize(line string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inToken := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			if inToken {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inToken = false
			}

		case r == '\\':
			if i+1 >= len(runes) {
				return nil, errors.New("trailing backslash")
			}
			i++
			cur.WriteRune(runes[i])
			inToken = true

		case r == '\'':
			inToken = true
			i++
			for {
				if i >= len(runes) {
					return nil, ErrUnterminatedQuote
				}
				if runes[i] == '\'' {
					break
				}
				cur.WriteRune(runes[i])
				i++
			}

		case r == '"':
			inToken = true
			i++
			for {
				if i >= len(runes) {
					return nil, ErrUnterminatedQuote
				}
				if runes[i] == '"' {
					break
				}
				if runes[i] == '\\' && i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\\') {
					i++
				}
				cur.WriteRune(runes[i])
				i++
			}

		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}
