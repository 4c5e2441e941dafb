package pgnstream

import (
	"strings"

	"github.com/pkg/errors"
)

// Move is one main-line move token and the comments that follow it.
type Move struct {
	SAN        string
	Comment    string // comments after the move, joined by a space
	HasComment bool
}

// tokenize splits movetext into main-line moves. Recursive annotation
// variations, NAGs, move numbers and the game termination marker are dropped.
func tokenize(text []byte) ([]Move, error) {
	var moves []Move
	depth := 0
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '{':
			end := indexByteFrom(text, i+1, '}')
			if end < 0 {
				return nil, errors.New("unterminated comment")
			}
			if depth == 0 && len(moves) > 0 {
				addComment(&moves[len(moves)-1], string(text[i+1:end]))
			}
			i = end + 1

		case c == '}':
			return nil, errors.New("unbalanced comment")

		case c == ';':
			end := indexByteFrom(text, i+1, '\n')
			if end < 0 {
				end = len(text)
			}
			if depth == 0 && len(moves) > 0 {
				addComment(&moves[len(moves)-1], string(text[i+1:end]))
			}
			i = end

		case c == '(':
			depth++
			i++

		case c == ')':
			if depth == 0 {
				return nil, errors.New("unbalanced variation")
			}
			depth--
			i++

		case c == '$':
			i++
			for i < len(text) && text[i] >= '0' && text[i] <= '9' {
				i++
			}

		default:
			start := i
			for i < len(text) && !isDelimiter(text[i]) {
				i++
			}
			if depth > 0 {
				continue
			}
			tok := string(text[start:i])
			if isTermination(tok) {
				return moves, nil
			}
			if san := cleanSAN(tok); san != "" {
				moves = append(moves, Move{SAN: san})
			}
		}
	}
	if depth != 0 {
		return nil, errors.New("unterminated variation")
	}
	return moves, nil
}

func addComment(m *Move, text string) {
	text = strings.TrimSpace(text)
	if m.HasComment {
		m.Comment += " " + text
	} else {
		m.Comment = text
	}
	m.HasComment = true
}

func indexByteFrom(b []byte, from int, c byte) int {
	for i := from; i < len(b); i++ {
		if b[i] == c {
			return i
		}
	}
	return -1
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '{', '}', '(', ')', ';', '$':
		return true
	}
	return false
}

func isTermination(tok string) bool {
	switch tok {
	case "1-0", "0-1", "1/2-1/2", "*":
		return true
	}
	return false
}

// cleanSAN strips a leading move number ("12." or "12...") and trailing
// annotation glyphs ("!", "?"). Check and mate markers are kept.
func cleanSAN(tok string) string {
	j := 0
	for j < len(tok) && tok[j] >= '0' && tok[j] <= '9' {
		j++
	}
	if j < len(tok) && tok[j] == '.' {
		for j < len(tok) && tok[j] == '.' {
			j++
		}
		tok = tok[j:]
	} else if j == len(tok) {
		return ""
	}
	return strings.TrimRight(tok, "!?")
}
