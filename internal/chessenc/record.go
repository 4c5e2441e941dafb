package chessenc

// Record is one encoded (input, label) pair, the unit of dedup and storage.
// Exactly one of Move and Eval is meaningful, depending on the label kind
// of the run.
type Record struct {
	Input Input
	Move  MoveCode
	Eval  float32 // squashed into [0,1]
}
