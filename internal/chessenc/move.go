package chessenc

import (
	"fmt"

	"github.com/notnil/chess"
)

// MoveCode is a move label: from*64 + to.
// Castling is stored as the king's two-square hop (e1g1, e1c1, e8g8, e8c8),
// never as king-takes-rook. Promotions are not distinguished.
type MoveCode uint16

// NumMoveCodes is the size of the move label space.
const NumMoveCodes = NumSquares * NumSquares

// EncodeMove returns the label of a played move.
// A move without an origin square is not a played move and panics.
func EncodeMove(m *chess.Move) MoveCode {
	if m == nil || m.S1() == chess.NoSquare || m.S2() == chess.NoSquare {
		panic(fmt.Sprintf("chessenc: cannot encode move %v without origin and destination", m))
	}
	from := m.S1()
	to := m.S2()
	switch {
	case m.HasTag(chess.KingSideCastle):
		to = castleTarget(from, 2)
	case m.HasTag(chess.QueenSideCastle):
		to = castleTarget(from, -2)
	}
	return NewMoveCode(from, to)
}

// castleTarget shifts the king two files toward the castling side.
func castleTarget(king chess.Square, files int) chess.Square {
	file := int(king)%8 + files
	if file < 0 || file > 7 {
		panic(fmt.Sprintf("chessenc: castling king on %v cannot move %d files", king, files))
	}
	return chess.Square(int(king)/8*8 + file)
}

// NewMoveCode builds a code from raw squares.
func NewMoveCode(from, to chess.Square) MoveCode {
	return MoveCode(int(from)*NumSquares + int(to))
}

// Squares decodes the origin and destination squares.
func (c MoveCode) Squares() (from, to chess.Square) {
	return chess.Square(int(c) / NumSquares), chess.Square(int(c) % NumSquares)
}

// UCI renders the code as a UCI move without promotion suffix (e.g. "e2e4").
func (c MoveCode) UCI() string {
	from, to := c.Squares()
	return squareName(from) + squareName(to)
}

func squareName(sq chess.Square) string {
	return string([]byte{byte('a' + int(sq)%8), byte('1' + int(sq)/8)})
}
