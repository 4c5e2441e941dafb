package chessenc

import "github.com/notnil/chess"

// Material counts both sides' material in pawn units:
// 3 per minor piece, 5 per rook, 9 per queen, 1 per pawn. Kings are free.
// The starting position counts 78.
func Material(board *chess.Board) int {
	total := 0
	for sq := 0; sq < NumSquares; sq++ {
		total += pieceValue(board.Piece(chess.Square(sq)).Type())
	}
	return total
}

func pieceValue(t chess.PieceType) int {
	switch t {
	case chess.Pawn:
		return 1
	case chess.Knight, chess.Bishop:
		return 3
	case chess.Rook:
		return 5
	case chess.Queen:
		return 9
	default:
		return 0
	}
}
