// Package chessenc encodes chess positions and their labels into the
// fixed-width numeric form stored in the training shards.
package chessenc

import (
	"fmt"

	"github.com/notnil/chess"
)

// Input layout:
//   bit 0:            side to move (1 = white)
//   bits 1+13*sq ...: one block of 13 flags per square, squares a1..h8
//     flag 0:              empty square
//     flag 1+color*6+kind: piece (color white=0, black=1; kind pawn..king = 0..5)
const (
	NumSquares = 64
	NumKinds   = 6
	BlockSize  = 1 + 2*NumKinds
	InputLen   = 1 + BlockSize*NumSquares // 833
	InputBytes = (InputLen + 7) / 8       // 105
)

// kindOrder maps a piece kind index to its notnil type.
var kindOrder = [NumKinds]chess.PieceType{
	chess.Pawn, chess.Knight, chess.Bishop, chess.Rook, chess.Queen, chess.King,
}

// Input is an encoded position, packed eight flags per byte (LSB first).
// It is comparable and hashable as a plain byte array.
type Input [InputBytes]byte

// EncodePosition returns the encoded input for pos.
func EncodePosition(pos *chess.Position) Input {
	var in Input
	if pos.Turn() == chess.White {
		in.set(0)
	}
	board := pos.Board()
	for sq := 0; sq < NumSquares; sq++ {
		in.set(1 + sq*BlockSize + blockOffset(board.Piece(chess.Square(sq))))
	}
	return in
}

func blockOffset(p chess.Piece) int {
	if p == chess.NoPiece {
		return 0
	}
	off := 1 + kindIndex(p.Type())
	if p.Color() == chess.Black {
		off += NumKinds
	}
	return off
}

func kindIndex(t chess.PieceType) int {
	for i, k := range kindOrder {
		if k == t {
			return i
		}
	}
	panic(fmt.Sprintf("chessenc: unknown piece type %d", t))
}

func (in *Input) set(i int) {
	in[i>>3] |= 1 << uint(i&7)
}

// Bit reports flag i of the input.
func (in *Input) Bit(i int) bool {
	return in[i>>3]&(1<<uint(i&7)) != 0
}

// WhiteToMove reports the side-to-move flag.
func (in *Input) WhiteToMove() bool {
	return in.Bit(0)
}

// Square decodes the block of sq. An empty square yields NoPieceType and
// NoColor; ok is false when the block does not hold exactly one flag.
func (in *Input) Square(sq chess.Square) (kind chess.PieceType, color chess.Color, ok bool) {
	base := 1 + int(sq)*BlockSize
	set := -1
	for off := 0; off < BlockSize; off++ {
		if !in.Bit(base + off) {
			continue
		}
		if set >= 0 {
			return chess.NoPieceType, chess.NoColor, false
		}
		set = off
	}
	switch {
	case set < 0:
		return chess.NoPieceType, chess.NoColor, false
	case set == 0:
		return chess.NoPieceType, chess.NoColor, true
	case set <= NumKinds:
		return kindOrder[set-1], chess.White, true
	default:
		return kindOrder[set-1-NumKinds], chess.Black, true
	}
}

// Unpack writes one byte (0 or 1) per flag into dst, which must hold InputLen bytes.
func (in *Input) Unpack(dst []byte) {
	_ = dst[InputLen-1]
	for i := 0; i < InputLen; i++ {
		dst[i] = in[i>>3] >> uint(i&7) & 1
	}
}

// Bools returns the flags as a boolean slice.
func (in *Input) Bools() []bool {
	out := make([]bool, InputLen)
	for i := range out {
		out[i] = in.Bit(i)
	}
	return out
}
