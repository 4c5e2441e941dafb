package replay

import (
	"strings"

	"github.com/notnil/chess"
	"github.com/pkg/errors"
)

// ErrUnresolvedMove reports a move token that is not legal in its position.
var ErrUnresolvedMove = errors.New("move cannot be resolved")

var sanNoise = strings.NewReplacer("+", "", "#", "", "!", "", "?", "")

// UCINotation.Decode does not check legality, so both resolvers match the
// token against the encodings of the legal moves instead.
var (
	algebraic   chess.AlgebraicNotation
	uciNotation chess.UCINotation
)

// resolveSAN finds the legal move of pos written as san.
func resolveSAN(pos *chess.Position, san string) (*chess.Move, error) {
	want := normalizeSAN(san)
	for _, m := range pos.ValidMoves() {
		if sanNoise.Replace(algebraic.Encode(pos, m)) == want {
			return m, nil
		}
	}
	return nil, errors.Wrapf(ErrUnresolvedMove, "%q in %s", san, pos)
}

func normalizeSAN(san string) string {
	s := sanNoise.Replace(san)
	switch s {
	case "0-0":
		return "O-O"
	case "0-0-0":
		return "O-O-O"
	}
	// Promotions written without "=", e.g. "e8Q" or "dxe1N".
	if n := len(s); n >= 3 && strings.IndexByte("QRBN", s[n-1]) >= 0 &&
		(s[n-2] == '1' || s[n-2] == '8') && s[0] >= 'a' && s[0] <= 'h' {
		return s[:n-1] + "=" + s[n-1:]
	}
	return s
}

// resolveUCI finds the legal move of pos written in UCI notation (e.g. "e7e8q").
func resolveUCI(pos *chess.Position, uci string) (*chess.Move, error) {
	want := strings.ToLower(uci)
	for _, m := range pos.ValidMoves() {
		if uciNotation.Encode(pos, m) == want {
			return m, nil
		}
	}
	return nil, errors.Wrapf(ErrUnresolvedMove, "%q in %s", uci, pos)
}

// positionFromFEN parses a FEN into a position.
func positionFromFEN(fen string) (*chess.Position, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, errors.Wrapf(err, "parse FEN %q", fen)
	}
	return chess.NewGame(opt).Position(), nil
}
