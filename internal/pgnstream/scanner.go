// Package pgnstream reads game and puzzle records as pull-based streams.
//
// Scanner yields one PGN game per call with its headers parsed and its
// movetext kept raw; the movetext is only tokenised when the consumer asks
// for the moves, so filtered games cost no move parsing at all.
package pgnstream

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedHeader reports a tag pair line that cannot be parsed.
var ErrMalformedHeader = errors.New("malformed PGN header")

const maxLineSize = 16 * 1024 * 1024

// Header is one PGN tag pair.
type Header struct {
	Key   string
	Value string
}

// Game is one PGN game record.
type Game struct {
	Headers  []Header
	Line     int // line number of the first line of the game
	movetext []byte
}

// Header returns the value of the first tag pair named key.
func (g *Game) Header(key string) (string, bool) {
	for _, h := range g.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

func (g *Game) hasHeader(key string) bool {
	_, ok := g.Header(key)
	return ok
}

// Moves tokenises the main line of the game. Variations are skipped.
func (g *Game) Moves() ([]Move, error) {
	moves, err := tokenize(g.movetext)
	if err != nil {
		return nil, errors.Wrapf(err, "game at line %d", g.Line)
	}
	return moves, nil
}

// Scanner reads PGN games one at a time.
type Scanner struct {
	r       *bufio.Reader
	line    int
	pending string // header line that already belongs to the next game
	hasPend bool
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 1<<20)}
}

// Next returns the next game, or io.EOF when the input is exhausted.
func (s *Scanner) Next() (*Game, error) {
	g := &Game{}
	var body bytes.Buffer
	inComment := false
	started := false
	closed := false // blank line after the tag pairs

	for {
		line, err := s.readLine()
		if err == io.EOF {
			if !started {
				return nil, io.EOF
			}
			g.movetext = body.Bytes()
			return g, nil
		}
		if err != nil {
			return nil, err
		}

		trimmed := strings.TrimSpace(line)
		if !inComment && strings.HasPrefix(trimmed, "[") {
			// A game may have no movetext; its tag pairs still end at a blank
			// line or at the next Event tag.
			if body.Len() > 0 || closed || (strings.HasPrefix(trimmed, "[Event ") && g.hasHeader("Event")) {
				s.unread(line)
				g.movetext = body.Bytes()
				return g, nil
			}
			h, err := parseHeader(trimmed)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", s.line)
			}
			if !started {
				g.Line = s.line
				started = true
			}
			g.Headers = append(g.Headers, h)
			continue
		}
		if trimmed == "" && !inComment {
			closed = len(g.Headers) > 0
			continue
		}
		if !started {
			g.Line = s.line
			started = true
		}
		inComment = commentOpenAfter(line, inComment)
		body.WriteString(line)
		body.WriteByte('\n')
	}
}

func (s *Scanner) readLine() (string, error) {
	if s.hasPend {
		s.hasPend = false
		return s.pending, nil
	}
	line, err := s.r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	if len(line) > maxLineSize {
		return "", errors.Errorf("line %d exceeds %d bytes", s.line+1, maxLineSize)
	}
	if s.line == 0 {
		line = strings.TrimPrefix(line, "\ufeff")
	}
	s.line++
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *Scanner) unread(line string) {
	s.pending = line
	s.hasPend = true
}

// commentOpenAfter reports whether a brace comment is still open at the end of line.
func commentOpenAfter(line string, open bool) bool {
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case open && c == '}':
			open = false
		case !open && c == '{':
			open = true
		case !open && c == ';':
			return false
		}
	}
	return open
}

// parseHeader parses a line of the form [Key "Value"].
func parseHeader(line string) (Header, error) {
	if len(line) < 2 || line[0] != '[' || line[len(line)-1] != ']' {
		return Header{}, errors.Wrap(ErrMalformedHeader, line)
	}
	inner := strings.TrimSpace(line[1 : len(line)-1])
	sp := strings.IndexAny(inner, " \t")
	if sp <= 0 {
		return Header{}, errors.Wrap(ErrMalformedHeader, line)
	}
	key := inner[:sp]
	raw := strings.TrimSpace(inner[sp:])
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return Header{}, errors.Wrap(ErrMalformedHeader, line)
	}
	raw = raw[1 : len(raw)-1]

	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
		}
		b.WriteByte(raw[i])
	}
	return Header{Key: key, Value: b.String()}, nil
}
